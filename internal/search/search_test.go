package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Examina/internal/models"
)

// hashEmbedder maps text deterministically into a small vector space so that
// identical texts embed identically and different texts rarely collide.
type hashEmbedder struct {
	dim int
	err error
}

func (h *hashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, h.dim)
		for j, r := range t {
			vec[(j+int(r))%h.dim] += float32(r%13) + 1
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEmbedder) Dimensions() int { return h.dim }

// cosineIndex is an in-memory vector index ranking by cosine similarity.
type cosineIndex struct {
	records []models.VectorRecord
	err     error
}

func (c *cosineIndex) Upsert(_ context.Context, records []models.VectorRecord) error {
	c.records = append(c.records, records...)
	return nil
}

func (c *cosineIndex) Query(_ context.Context, vector []float32, topK int, filter models.Filter) ([]models.ScoredResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []models.ScoredResult
	for _, r := range c.records {
		if filter.Year != 0 && r.Metadata.Year != filter.Year {
			continue
		}
		if filter.Paper != "" && r.Metadata.Paper != filter.Paper {
			continue
		}
		if filter.Topic != "" && r.Metadata.Topic != filter.Topic {
			continue
		}
		if filter.Difficulty != "" && r.Metadata.Difficulty != filter.Difficulty {
			continue
		}
		out = append(out, models.ScoredResult{ID: r.ID, Score: cosine(vector, r.Embedding), Metadata: r.Metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func seedIndex(t *testing.T, emb *hashEmbedder, index *cosineIndex, metas []models.VectorMetadata) {
	t.Helper()
	for _, m := range metas {
		vecs, err := emb.EmbedTexts(context.Background(), []string{m.Text})
		require.NoError(t, err)
		id := fmt.Sprintf("%d/%s/%s", m.Year, m.Paper, m.QuestionNumber)
		require.NoError(t, index.Upsert(context.Background(), []models.VectorRecord{
			{ID: id, Embedding: vecs[0], Metadata: m},
		}))
	}
}

func TestSearchRoundTrip(t *testing.T) {
	emb := &hashEmbedder{dim: 32}
	index := &cosineIndex{}
	seedIndex(t, emb, index, []models.VectorMetadata{
		{Year: 2019, Paper: "p1", QuestionNumber: "1(a)", Topic: "Algebra", Marks: 3,
			Text: "Solve the quadratic equation x^2 - 5x + 6 = 0.", MarkScheme: "M1 factorise, A1 x=2, A1 x=3"},
		{Year: 2020, Paper: "p2", QuestionNumber: "4", Topic: "Mechanics", Marks: 5,
			Text: "A particle moves with constant acceleration from rest.", MarkScheme: "M1 suvat"},
	})

	s := NewSearcher(emb, index, zerolog.Nop(), 5, 12000)
	results, err := s.Search(context.Background(), "Solve the quadratic equation x^2 - 5x + 6 = 0.", 5, models.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Querying with the indexed text itself must return that record on top
	// with near-perfect similarity.
	assert.Equal(t, "2019/p1/1(a)", results[0].ID)
	assert.Greater(t, results[0].Score, 0.99)
}

func TestSearchAppliesFilters(t *testing.T) {
	emb := &hashEmbedder{dim: 32}
	index := &cosineIndex{}
	seedIndex(t, emb, index, []models.VectorMetadata{
		{Year: 2019, Paper: "p1", QuestionNumber: "1", Topic: "Algebra", Text: "Expand the brackets."},
		{Year: 2020, Paper: "p1", QuestionNumber: "1", Topic: "Algebra", Text: "Expand the brackets fully."},
	})

	s := NewSearcher(emb, index, zerolog.Nop(), 5, 12000)
	results, err := s.Search(context.Background(), "Expand the brackets.", 5, models.Filter{Year: 2020})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2020, results[0].Metadata.Year)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := NewSearcher(&hashEmbedder{dim: 8}, &cosineIndex{}, zerolog.Nop(), 5, 12000)
	_, err := s.Search(context.Background(), "   ", 5, models.Filter{})
	assert.Error(t, err)
}

func TestFormatContextEmptyResultsYieldsSentinel(t *testing.T) {
	s := NewSearcher(&hashEmbedder{dim: 8}, &cosineIndex{}, zerolog.Nop(), 5, 12000)
	assert.Equal(t, NoContextSentinel, s.FormatContext(nil))

	// End to end: an index with no matching vectors must surface the
	// sentinel, not an empty string.
	got := s.BuildContext(context.Background(), "anything at all", 5, models.Filter{})
	assert.Equal(t, NoContextSentinel, got)
}

func TestFormatContextSections(t *testing.T) {
	s := NewSearcher(&hashEmbedder{dim: 8}, &cosineIndex{}, zerolog.Nop(), 5, 12000)
	got := s.FormatContext([]models.ScoredResult{{
		ID:    "2019/p1/1(a)",
		Score: 0.93,
		Metadata: models.VectorMetadata{
			Year: 2019, Paper: "p1", QuestionNumber: "1(a)", Topic: "Algebra",
			Difficulty: models.DifficultyEasy, Marks: 3,
			Text: "Solve 2x+1=7.", MarkScheme: "A1 x=3", ExaminerRemarks: "Well answered.",
		},
	}})

	assert.Contains(t, got, "Question 1(a) (2019 p1, 3 marks, Algebra, easy)")
	assert.Contains(t, got, "Solve 2x+1=7.")
	assert.Contains(t, got, "Mark scheme: A1 x=3")
	assert.Contains(t, got, "Examiner remarks: Well answered.")
}

func TestFormatContextHonoursByteBudget(t *testing.T) {
	s := NewSearcher(&hashEmbedder{dim: 8}, &cosineIndex{}, zerolog.Nop(), 5, 400)
	long := strings.Repeat("very long question text ", 20)

	var results []models.ScoredResult
	for i := 0; i < 5; i++ {
		results = append(results, models.ScoredResult{
			ID: fmt.Sprintf("2019/p1/%d", i+1),
			Metadata: models.VectorMetadata{
				Year: 2019, Paper: "p1", QuestionNumber: fmt.Sprintf("%d", i+1), Text: long,
			},
		})
	}

	got := s.FormatContext(results)
	assert.NotEqual(t, NoContextSentinel, got)
	// The first section always fits; later ones are dropped whole.
	assert.Contains(t, got, "Question 1 ")
	assert.NotContains(t, got, "Question 5 ")
	assert.LessOrEqual(t, len(got), 400+len(formatSection(results[0].Metadata)))
}

func TestBuildContextDegradesOnError(t *testing.T) {
	s := NewSearcher(&hashEmbedder{dim: 8, err: errors.New("quota exceeded")}, &cosineIndex{}, zerolog.Nop(), 5, 12000)
	got := s.BuildContext(context.Background(), "anything", 5, models.Filter{})
	assert.Equal(t, NoContextSentinel, got)
}
