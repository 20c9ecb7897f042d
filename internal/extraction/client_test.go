package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Examina/internal/models"
)

// fakeGenerator returns canned responses in sequence so retry behaviour can
// be asserted without network access.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeGenerator) GenerateDocument(_ context.Context, _ []byte, _ string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func newTestExtractor(gen *fakeGenerator) *Extractor {
	return NewExtractor(gen, nil, zerolog.Nop(), Options{
		Retries:       2,
		Backoff:       time.Millisecond,
		Timeout:       time.Second,
		MinRegionSpan: 40,
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced no language", "```\n[]\n```", `[]`},
		{"surrounding whitespace", "  \n```json\n[]\n```\n ", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestExtractQuestionsNormalizes(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n" + `[
		{"questionNumber":"1(a)","text":"Solve for x.","marks":3,"topic":"Algebra","difficulty":"easy","hasImage":false},
		{"questionNumber":"1(b)(i)","text":"Find the area. [Figure: shaded triangle]","marks":null,"topic":"","difficulty":"impossible","hasImage":true,
		 "figureRegion":{"ymin":100,"xmin":100,"ymax":500,"xmax":900,"page":1}}
	]` + "\n```"}}

	e := newTestExtractor(gen)
	records, err := e.ExtractQuestions(context.Background(), Chunk{StartPage: 4, EndPage: 8})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1(a)", records[0].QuestionNumber)
	assert.Equal(t, 3, records[0].Marks)

	// Null marks -> 0, blank topic -> General, unknown difficulty -> medium.
	assert.Equal(t, 0, records[1].Marks)
	assert.Equal(t, "General", records[1].Topic)
	assert.Equal(t, models.DifficultyMedium, records[1].Difficulty)

	// Chunk-relative page 1 within a chunk starting at page 4 is absolute page 5.
	require.NotNil(t, records[1].Region)
	assert.Equal(t, 5, records[1].Region.Page)
	assert.True(t, records[1].HasImage)
}

func TestExtractQuestionsRejectsTinyRegion(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`[
		{"questionNumber":"2","text":"Read the barcode.","marks":1,"topic":"General","difficulty":"easy","hasImage":true,
		 "figureRegion":{"ymin":10,"xmin":10,"ymax":20,"xmax":900,"page":0}}
	]`}}

	e := newTestExtractor(gen)
	records, err := e.ExtractQuestions(context.Background(), Chunk{StartPage: 0, EndPage: 4})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Undersized vertical span: demoted to no-image rather than producing a
	// degenerate crop downstream.
	assert.False(t, records[0].HasImage)
	assert.Nil(t, records[0].Region)
}

func TestExtractQuestionsFailFastValidation(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`[
		{"questionNumber":"1(a)","text":"Fine.","marks":2,"topic":"Algebra","difficulty":"easy","hasImage":false},
		{"questionNumber":"","text":"Orphan.","marks":1,"topic":"Algebra","difficulty":"easy","hasImage":false}
	]`}}

	e := newTestExtractor(gen)
	records, err := e.ExtractQuestions(context.Background(), Chunk{StartPage: 0, EndPage: 4})

	// One malformed element invalidates the whole chunk's batch.
	require.Error(t, err)
	assert.Nil(t, records)

	var exErr *Error
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, 0, exErr.StartPage)
	assert.Equal(t, 4, exErr.EndPage)
	// Validation failures are structural; no regeneration is attempted.
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateJSONRetriesMalformedResponse(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"this is not json",
		`[{"questionNumber":"1","text":"ok","marks":1,"topic":"Number","difficulty":"easy","hasImage":false}]`,
	}}

	e := newTestExtractor(gen)
	records, err := e.ExtractQuestions(context.Background(), Chunk{EndPage: 4})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateJSONExhaustsRetries(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"nope", "still nope", "nope again"}}

	e := newTestExtractor(gen)
	_, err := e.ExtractQuestions(context.Background(), Chunk{StartPage: 4, EndPage: 8})
	require.Error(t, err)

	var exErr *Error
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, 3, gen.calls) // initial attempt + 2 retries
}

func TestGenerateJSONRetriesRateLimit(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{"", `[{"questionNumber":"1","markScheme":"M1 A1","examinerRemarks":""}]`},
		errs:      []error{errors.New("googleapi: Error 429: rate limit exceeded"), nil},
	}

	e := newTestExtractor(gen)
	records, err := e.ExtractMarkSchemes(context.Background(), Chunk{EndPage: 4})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateJSONFatalOnNonRetryableError(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("googleapi: Error 400: invalid argument")}}

	e := newTestExtractor(gen)
	_, err := e.ExtractMarkSchemes(context.Background(), Chunk{EndPage: 4})
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}
