package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/Examina/internal/app"
	"github.com/markdave123-py/Examina/internal/config"
	"github.com/markdave123-py/Examina/internal/logger"
)

func main() {
	testMode := flag.Bool("test", false, "process only the first document set and re-raise errors")
	reset := flag.Bool("reset", false, "delete persisted questions for -year/-paper before ingesting; with no -year, wipes everything and rebuilds the vector index")
	year := flag.Int("year", 0, "year scope for -reset (0 means all years)")
	paper := flag.String("paper", "", "paper scope for -reset (empty means all papers)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer application.Close()

	if *reset {
		deleted, err := application.Store.DeleteScope(ctx, *year, *paper)
		if err != nil {
			log.Fatal().Err(err).Msg("reset failed")
		}
		// Scoped resets rely on upsert overwrite: re-ingesting the scope
		// rewrites its vectors in place, since ids are the natural keys.
		// Vectors are only ever cleared wholesale, on a full reset.
		if *year == 0 && *paper == "" {
			if err := application.Index.Truncate(ctx); err != nil {
				log.Fatal().Err(err).Msg("index truncate failed")
			}
		}
		log.Info().Int64("deleted", deleted).Int("year", *year).Str("paper", *paper).
			Msg("scope reset")
	}

	reports, err := application.Orchestrator.IngestAll(ctx, *testMode)
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}

	var persisted, skipped, failed int
	for _, r := range reports {
		persisted += r.Persisted
		skipped += r.Skipped
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("sets", len(reports)).Int("persisted", persisted).
		Int("skipped", skipped).Int("failed_sets", failed).Msg("ingestion run complete")

	if failed > 0 {
		os.Exit(1)
	}
}
