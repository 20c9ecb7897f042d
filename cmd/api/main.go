package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/Examina/internal/app"
	"github.com/markdave123-py/Examina/internal/config"
	"github.com/markdave123-py/Examina/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadConfig()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer application.Close()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = application.Server.Shutdown(shutdownCtx)
	}()

	if err := application.Server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
