package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	PapersPrefix string
	FigurePrefix string

	AIAPIKey   string
	GenModel   string
	EmbedModel string
	EmbedDim   int

	// Ingestion tuning.
	ChunkPages     int           // pages per extraction chunk
	GenerateRPM    int           // requests-per-minute ceiling for generation calls
	GenTimeout     time.Duration // per-attempt generation timeout
	ExtractRetries int           // retries after the first failed attempt
	RetryBackoff   time.Duration
	SchemePause    time.Duration // courtesy pause between question and scheme passes
	EmbedBatch     int

	// Figure extraction tuning (empirically tuned, hence configurable).
	RasterScale   float64
	FigurePadPct  int // crop padding, percent of box size per side
	MinRegionSpan int // minimum bounding-box span on the 0-1000 scale

	// Retrieval tuning.
	TopK            int
	MaxContextBytes int

	Port      string
	LogLevel  string
	LogFormat string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "examina-papers"),
		PapersPrefix: getEnv("PAPERS_PREFIX", "papers/"),
		FigurePrefix: getEnv("FIGURE_PREFIX", "figures/"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),

		ChunkPages:     getEnvInt("CHUNK_PAGES", 4),
		GenerateRPM:    getEnvInt("GENERATE_RPM", 10),
		GenTimeout:     time.Duration(getEnvInt("GEN_TIMEOUT_SECONDS", 120)) * time.Second,
		ExtractRetries: getEnvInt("EXTRACT_RETRIES", 2),
		RetryBackoff:   time.Duration(getEnvInt("RETRY_BACKOFF_SECONDS", 5)) * time.Second,
		SchemePause:    time.Duration(getEnvInt("SCHEME_PAUSE_SECONDS", 10)) * time.Second,
		EmbedBatch:     getEnvInt("EMBED_BATCH", 16),

		RasterScale:   float64(getEnvInt("RASTER_SCALE", 2)),
		FigurePadPct:  getEnvInt("FIGURE_PAD_PCT", 5),
		MinRegionSpan: getEnvInt("MIN_REGION_SPAN", 40),

		TopK:            getEnvInt("TOP_K", 5),
		MaxContextBytes: getEnvInt("MAX_CONTEXT_BYTES", 12000),

		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.AIAPIKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
