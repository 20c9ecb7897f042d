package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
	"github.com/markdave123-py/Examina/internal/pipeline"
)

// NoContextSentinel is returned instead of an empty context block when no
// vectors match, so prompt assembly can branch on it explicitly.
const NoContextSentinel = "No relevant past questions were found."

// Searcher embeds a user query and retrieves the closest indexed questions.
// It must share the Embedder instance used at indexing time; mixing embedding
// models between index and query degrades relevance with no error signal.
type Searcher struct {
	embedder core.Embedder
	index    core.VectorIndex
	log      zerolog.Logger

	TopK            int
	MaxContextBytes int
}

func NewSearcher(embedder core.Embedder, index core.VectorIndex, log zerolog.Logger, topK, maxContextBytes int) *Searcher {
	if topK <= 0 {
		topK = 5
	}
	if maxContextBytes <= 0 {
		maxContextBytes = 12000
	}
	return &Searcher{
		embedder:        embedder,
		index:           index,
		log:             log.With().Str("component", "search").Logger(),
		TopK:            topK,
		MaxContextBytes: maxContextBytes,
	}
}

// Search embeds the query text and runs a filtered nearest-neighbour lookup.
// Results come back ranked by similarity score, descending.
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter models.Filter) ([]models.ScoredResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if topK <= 0 {
		topK = s.TopK
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: expected 1 vector, got %d", len(vectors))
	}

	results, err := s.index.Query(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	return results, nil
}

// FormatContext renders results as labeled sections for prompt injection,
// bounded by MaxContextBytes. A section that would overflow the budget is
// dropped whole rather than truncated mid-text. Zero results yield
// NoContextSentinel, never an empty string.
func (s *Searcher) FormatContext(results []models.ScoredResult) string {
	if len(results) == 0 {
		return NoContextSentinel
	}

	var b strings.Builder
	for _, r := range results {
		section := formatSection(r.Metadata)
		if b.Len() > 0 && b.Len()+len(section) > s.MaxContextBytes {
			s.log.Debug().Int("kept_bytes", b.Len()).Str("dropped", r.ID).
				Msg("context budget reached, dropping remaining results")
			break
		}
		b.WriteString(section)
	}
	if b.Len() == 0 {
		return NoContextSentinel
	}
	return b.String()
}

// BuildContext is the degrade-gracefully request path: any failure is logged
// and it returns the sentinel, never an error, so a serving prompt can always
// be assembled.
func (s *Searcher) BuildContext(ctx context.Context, query string, topK int, filter models.Filter) string {
	results, err := s.Search(ctx, query, topK, filter)
	if err != nil {
		s.log.Error().Err(err).Msg("search failed, serving without context")
		return NoContextSentinel
	}
	return s.FormatContext(results)
}

func formatSection(m models.VectorMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Question %s (%d %s, %d marks, %s, %s) ---\n",
		m.QuestionNumber, m.Year, m.Paper, m.Marks, m.Topic, m.Difficulty)
	b.WriteString(m.Text)
	b.WriteByte('\n')
	if m.MarkScheme != "" && m.MarkScheme != pipeline.SchemeNotFound {
		fmt.Fprintf(&b, "Mark scheme: %s\n", m.MarkScheme)
	}
	if m.ExaminerRemarks != "" {
		fmt.Fprintf(&b, "Examiner remarks: %s\n", m.ExaminerRemarks)
	}
	b.WriteByte('\n')
	return b.String()
}
