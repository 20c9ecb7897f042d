package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
)

// QuestionStore persists merged question records keyed by their natural key
// (year, paper, question_number). It is the source of truth for idempotency.
type QuestionStore struct {
	db *sql.DB
}

func NewQuestionStore(sqlDB *sql.DB) *QuestionStore {
	return &QuestionStore{db: sqlDB}
}

func (s *QuestionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// FindByNaturalKey returns (nil, nil) when no record exists.
func (s *QuestionStore) FindByNaturalKey(ctx context.Context, key models.NaturalKey) (*models.QuestionRecord, error) {
	const q = `
		SELECT id, year, paper, question_number, text, marks, topic, difficulty,
		       has_image, image_url, mark_scheme, examiner_remarks, created_at
		FROM questions
		WHERE year = $1 AND paper = $2 AND question_number = $3
	`
	var rec models.QuestionRecord
	err := s.db.QueryRowContext(ctx, q, key.Year, key.Paper, key.QuestionNumber).Scan(
		&rec.ID, &rec.Year, &rec.Paper, &rec.QuestionNumber, &rec.Text, &rec.Marks,
		&rec.Topic, &rec.Difficulty, &rec.HasImage, &rec.ImageURL, &rec.MarkScheme,
		&rec.ExaminerRemarks, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find question %s: %w", key.ID(), err)
	}
	return &rec, nil
}

func (s *QuestionStore) Create(ctx context.Context, rec *models.QuestionRecord) error {
	const q = `
		INSERT INTO questions
			(id, year, paper, question_number, text, marks, topic, difficulty,
			 has_image, image_url, mark_scheme, examiner_remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()))
	`
	var created any
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt
	}
	if _, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Year, rec.Paper, rec.QuestionNumber, rec.Text, rec.Marks,
		rec.Topic, rec.Difficulty, rec.HasImage, rec.ImageURL, rec.MarkScheme,
		rec.ExaminerRemarks, created,
	); err != nil {
		return fmt.Errorf("create question %s: %w", rec.Key().ID(), err)
	}
	return nil
}

func (s *QuestionStore) ListByScope(ctx context.Context, year int, paper string) ([]models.QuestionRecord, error) {
	q := `
		SELECT id, year, paper, question_number, text, marks, topic, difficulty,
		       has_image, image_url, mark_scheme, examiner_remarks, created_at
		FROM questions
		WHERE year = $1
	`
	args := []any{year}
	if paper != "" {
		q += ` AND paper = $2`
		args = append(args, paper)
	}
	q += ` ORDER BY question_number ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions %d/%s: %w", year, paper, err)
	}
	defer rows.Close()

	var out []models.QuestionRecord
	for rows.Next() {
		var rec models.QuestionRecord
		if err := rows.Scan(
			&rec.ID, &rec.Year, &rec.Paper, &rec.QuestionNumber, &rec.Text, &rec.Marks,
			&rec.Topic, &rec.Difficulty, &rec.HasImage, &rec.ImageURL, &rec.MarkScheme,
			&rec.ExaminerRemarks, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteScope removes every question in a (year, paper) scope. A zero year
// or empty paper widens the delete on that axis, so (0, "") wipes the table.
// Used by the re-ingestion reset path.
func (s *QuestionStore) DeleteScope(ctx context.Context, year int, paper string) (int64, error) {
	q := `DELETE FROM questions WHERE TRUE`
	var args []any
	if year != 0 {
		args = append(args, year)
		q += fmt.Sprintf(` AND year = $%d`, len(args))
	}
	if paper != "" {
		args = append(args, paper)
		q += fmt.Sprintf(` AND paper = $%d`, len(args))
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete questions %d/%s: %w", year, paper, err)
	}
	return res.RowsAffected()
}

var _ core.QuestionStore = (*QuestionStore)(nil)
