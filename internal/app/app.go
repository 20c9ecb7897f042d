package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Examina/internal/config"
	db "github.com/markdave123-py/Examina/internal/core/database"
	"github.com/markdave123-py/Examina/internal/core/llm"
	"github.com/markdave123-py/Examina/internal/core/objectstore"
	"github.com/markdave123-py/Examina/internal/core/raster"
	"github.com/markdave123-py/Examina/internal/extraction"
	"github.com/markdave123-py/Examina/internal/pipeline"
	"github.com/markdave123-py/Examina/internal/search"
)

// App wires every collaborator once and hands the same instances to the
// orchestrator and the search path. The shared Embedder keeps index-time and
// query-time embeddings in the same space.
type App struct {
	Store        *db.QuestionStore
	Index        *db.VectorIndex
	Objects      *objectstore.S3Store
	Generator    *llm.GeminiGenerator
	Embedder     *llm.GeminiEmbedder
	Orchestrator *pipeline.Orchestrator
	Searcher     *search.Searcher
	Server       *Server
	Log          zerolog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	sqlDB, err := db.Open(appCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	store := db.NewQuestionStore(sqlDB)
	index := db.NewVectorIndex(sqlDB)
	log.Info().Msg("database initialized and bootstrapped")

	objects, err := objectstore.NewS3Store(appCtx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}
	log.Info().Str("bucket", cfg.BucketName).Msg("object store ready")

	generator, err := llm.NewGeminiGenerator(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("generator: %w", err)
	}
	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.GenerateRPM)), 1)
	extractor := extraction.NewExtractor(generator, limiter, log, extraction.Options{
		Retries:       cfg.ExtractRetries,
		Backoff:       cfg.RetryBackoff,
		Timeout:       cfg.GenTimeout,
		MinRegionSpan: cfg.MinRegionSpan,
	})

	figures := pipeline.NewFigureExtractor(
		raster.NewFitzRasterizer(), objects, log,
		cfg.FigurePrefix, cfg.RasterScale, cfg.FigurePadPct,
	)

	orchestrator := pipeline.NewOrchestrator(
		objects,
		extraction.NewChunker(cfg.ChunkPages),
		extractor,
		store,
		embedder,
		index,
		figures,
		cfg.PapersPrefix,
		log,
		pipeline.Options{SchemePause: cfg.SchemePause, EmbedBatch: cfg.EmbedBatch},
	)

	searcher := search.NewSearcher(embedder, index, log, cfg.TopK, cfg.MaxContextBytes)
	server := NewServer(cfg, searcher, store, log)

	return &App{
		Store:        store,
		Index:        index,
		Objects:      objects,
		Generator:    generator,
		Embedder:     embedder,
		Orchestrator: orchestrator,
		Searcher:     searcher,
		Server:       server,
		Log:          log,
	}, nil
}

func (a *App) Close() {
	if a.Generator != nil {
		_ = a.Generator.Close()
	}
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
