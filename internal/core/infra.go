package core

import (
	"context"
	"image"

	"github.com/markdave123-py/Examina/internal/models"
)

// QuestionStore abstracts question persistence so the pipeline never depends
// on a specific database. Absent records are (nil, nil), not an error.
type QuestionStore interface {
	FindByNaturalKey(ctx context.Context, key models.NaturalKey) (*models.QuestionRecord, error)
	Create(ctx context.Context, q *models.QuestionRecord) error
	ListByScope(ctx context.Context, year int, paper string) ([]models.QuestionRecord, error)

	// DeleteScope removes every question for a year, or a (year, paper) pair
	// when paper is non-empty. Used for explicit re-ingestion resets.
	DeleteScope(ctx context.Context, year int, paper string) (int64, error)

	Close() error
}

// VectorIndex stores and searches question embeddings. Upsert has overwrite
// semantics keyed by record id; implementations split oversized batches and
// report which sub-batch failed.
type VectorIndex interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int, filter models.Filter) ([]models.ScoredResult, error)
}

// ObjectStore is where source papers live and figure crops are written.
// Put returns a URL-like string the stored object can be referenced by.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
}

// Rasterizer renders one page of a PDF document to pixels. Scale 1.0 is the
// page's nominal 72-dpi size; figure extraction renders at >=2x for legibility.
type Rasterizer interface {
	RenderPage(document []byte, pageIndex int, scale float64) (image.Image, error)
}
