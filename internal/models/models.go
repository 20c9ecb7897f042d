package models

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the coarse difficulty label attached to every question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty labels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// NaturalKey identifies a question uniquely across the whole corpus.
// It is the idempotency key for persistence and the vector record id.
type NaturalKey struct {
	Year           int
	Paper          string
	QuestionNumber string
}

// ID renders the key as a stable string id, e.g. "2019/p1/3(b)(ii)".
func (k NaturalKey) ID() string {
	return fmt.Sprintf("%d/%s/%s", k.Year, k.Paper, k.QuestionNumber)
}

// BoundingRegion is a rectangle on the 0-1000 normalized scale used by the
// generation model, plus the page it was found on. Page is chunk-relative as
// extracted and must be translated to an absolute page number before use.
type BoundingRegion struct {
	YMin int `json:"ymin"`
	XMin int `json:"xmin"`
	YMax int `json:"ymax"`
	XMax int `json:"xmax"`
	Page int `json:"page"`
}

// Valid reports whether the region is a plausible figure box: positive spans
// on both axes, each at least minSpan on the 0-1000 scale. Tiny boxes are
// barcode/header noise and are rejected.
func (r BoundingRegion) Valid(minSpan int) bool {
	return r.YMax > r.YMin && r.XMax > r.XMin &&
		r.YMax-r.YMin >= minSpan && r.XMax-r.XMin >= minSpan &&
		r.YMin >= 0 && r.XMin >= 0 && r.YMax <= 1000 && r.XMax <= 1000
}

// QuestionRecord is one gradable unit extracted from a question paper.
// QuestionNumber is hierarchical, e.g. "1(b)(ii)".
type QuestionRecord struct {
	ID              string          `db:"id" json:"id"`
	Year            int             `db:"year" json:"year"`
	Paper           string          `db:"paper" json:"paper"`
	QuestionNumber  string          `db:"question_number" json:"question_number"`
	Text            string          `db:"text" json:"text"`
	Marks           int             `db:"marks" json:"marks"`
	Topic           string          `db:"topic" json:"topic"`
	Difficulty      Difficulty      `db:"difficulty" json:"difficulty"`
	HasImage        bool            `db:"has_image" json:"has_image"`
	Region          *BoundingRegion `db:"-" json:"figure_region,omitempty"`
	ImageURL        string          `db:"image_url" json:"image_url,omitempty"`
	MarkScheme      string          `db:"mark_scheme" json:"mark_scheme"`
	ExaminerRemarks string          `db:"examiner_remarks" json:"examiner_remarks,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Key returns the record's natural key.
func (q *QuestionRecord) Key() NaturalKey {
	return NaturalKey{Year: q.Year, Paper: q.Paper, QuestionNumber: q.QuestionNumber}
}

// IsParentOf reports whether q's question number is a proper hierarchical
// prefix of other's, i.e. other starts with q's number immediately followed
// by an opening paren ("3(a)" is a parent of "3(a)(i)" but not of "3(a)(i)x").
func (q *QuestionRecord) IsParentOf(other string) bool {
	return strings.HasPrefix(other, q.QuestionNumber+"(")
}

// MarkSchemeRecord is the transient counterpart extracted from a mark-scheme
// document. It only exists until merged into a QuestionRecord.
type MarkSchemeRecord struct {
	QuestionNumber  string `json:"questionNumber"`
	MarkScheme      string `json:"markScheme"`
	ExaminerRemarks string `json:"examinerRemarks,omitempty"`
}

// VectorMetadata is the flattened, index-queryable copy of a question's
// searchable fields stored alongside its embedding.
type VectorMetadata struct {
	Year            int        `json:"year"`
	Paper           string     `json:"paper"`
	QuestionNumber  string     `json:"question_number"`
	Topic           string     `json:"topic"`
	Difficulty      Difficulty `json:"difficulty"`
	Marks           int        `json:"marks"`
	Text            string     `json:"text"`
	MarkScheme      string     `json:"mark_scheme"`
	ExaminerRemarks string     `json:"examiner_remarks,omitempty"`
}

// VectorRecord is one upsert unit for the vector index. ID equals the
// question's NaturalKey.ID() so re-ingestion overwrites instead of duplicating.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  VectorMetadata
}

// ScoredResult is a single vector-search hit, ranked by Score descending.
type ScoredResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

// Filter restricts a vector query to matching metadata. Zero values mean
// "no constraint" on that field.
type Filter struct {
	Year       int        `json:"year,omitempty"`
	Paper      string     `json:"paper,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}
