package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
)

// maxUpsertBatch caps a single upsert statement batch; larger inputs are
// split into sequential sub-batches.
const maxUpsertBatch = 100

// VectorIndex stores question embeddings in a pgvector table with JSONB
// metadata, queried by cosine distance.
type VectorIndex struct {
	db *sql.DB
}

func NewVectorIndex(sqlDB *sql.DB) *VectorIndex {
	return &VectorIndex{db: sqlDB}
}

// Upsert writes records in sub-batches of at most maxUpsertBatch. A failing
// sub-batch is reported with its offset range; earlier sub-batches stay
// committed.
func (v *VectorIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	for start := 0; start < len(records); start += maxUpsertBatch {
		end := start + maxUpsertBatch
		if end > len(records) {
			end = len(records)
		}
		if err := v.upsertBatch(ctx, records[start:end]); err != nil {
			return fmt.Errorf("upsert batch [%d:%d): %w", start, end, err)
		}
	}
	return nil
}

func (v *VectorIndex) upsertBatch(ctx context.Context, records []models.VectorRecord) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO question_vectors (id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metadata %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, pgvector.NewVector(r.Embedding), meta); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Query runs a nearest-neighbour search by cosine distance, reporting
// similarity as 1 - distance. Filter fields add equality constraints on the
// JSONB metadata.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, topK int, filter models.Filter) ([]models.ScoredResult, error) {
	if topK <= 0 {
		topK = 5
	}

	q := `
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM question_vectors
	`
	args := []any{pgvector.NewVector(vector)}

	where := ""
	addFilter := func(clause string, value any) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}
	if filter.Year != 0 {
		addFilter("(metadata->>'year')::int = $%d", filter.Year)
	}
	if filter.Paper != "" {
		addFilter("metadata->>'paper' = $%d", filter.Paper)
	}
	if filter.Topic != "" {
		addFilter("metadata->>'topic' = $%d", filter.Topic)
	}
	if filter.Difficulty != "" {
		addFilter("metadata->>'difficulty' = $%d", string(filter.Difficulty))
	}

	args = append(args, topK)
	q += where + fmt.Sprintf(" ORDER BY embedding <=> $1 ASC LIMIT $%d", len(args))

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredResult
	for rows.Next() {
		var (
			res  models.ScoredResult
			meta []byte
		)
		if err := rows.Scan(&res.ID, &meta, &res.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &res.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata %s: %w", res.ID, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Truncate drops every vector; used by the full-index rebuild path.
func (v *VectorIndex) Truncate(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, `TRUNCATE question_vectors`); err != nil {
		return fmt.Errorf("truncate vectors: %w", err)
	}
	return nil
}

var _ core.VectorIndex = (*VectorIndex)(nil)
