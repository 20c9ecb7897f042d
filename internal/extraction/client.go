package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
)

// Error is a chunk-scoped extraction failure. The orchestrator uses the page
// range to decide whether to skip the whole document set.
type Error struct {
	StartPage int
	EndPage   int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for pages %d-%d: %v", e.StartPage, e.EndPage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tunes the extraction client.
type Options struct {
	Retries       int           // retries after the first failed attempt
	Backoff       time.Duration // base delay between attempts
	Timeout       time.Duration // per-attempt generation timeout
	MinRegionSpan int           // minimum figure-box span on the 0-1000 scale
}

// Extractor turns a binary document chunk into typed records via a multimodal
// generation capability. The same client serves both record shapes; only the
// prompt and target schema differ.
type Extractor struct {
	gen     core.Generator
	limiter *rate.Limiter
	log     zerolog.Logger
	opts    Options
}

func NewExtractor(gen core.Generator, limiter *rate.Limiter, log zerolog.Logger, opts Options) *Extractor {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Extractor{gen: gen, limiter: limiter, log: log, opts: opts}
}

// Wire shapes. Model output is an untrusted format: parse permissively into
// these, validate strictly, and only then map to domain records.

type questionWire struct {
	QuestionNumber string                 `json:"questionNumber"`
	Text           string                 `json:"text"`
	Marks          *int                   `json:"marks"`
	Topic          string                 `json:"topic"`
	Difficulty     string                 `json:"difficulty"`
	HasImage       bool                   `json:"hasImage"`
	FigureRegion   *models.BoundingRegion `json:"figureRegion"`
}

type schemeWire struct {
	QuestionNumber  string `json:"questionNumber"`
	MarkScheme      string `json:"markScheme"`
	ExaminerRemarks string `json:"examinerRemarks"`
}

// ExtractQuestions extracts every question part found in the chunk. Figure
// regions come back chunk-relative and are translated to absolute page
// numbers here, at the boundary, so nothing downstream ever sees a relative
// page.
func (e *Extractor) ExtractQuestions(ctx context.Context, chunk Chunk) ([]models.QuestionRecord, error) {
	var wires []questionWire
	if err := e.generateJSON(ctx, chunk, questionPrompt, &wires); err != nil {
		return nil, err
	}

	records := make([]models.QuestionRecord, 0, len(wires))
	for i, w := range wires {
		// A malformed element means the whole response is suspect; abort the
		// chunk's batch rather than accepting the other records.
		if w.QuestionNumber == "" || strings.TrimSpace(w.Text) == "" {
			return nil, &Error{chunk.StartPage, chunk.EndPage,
				fmt.Errorf("record %d missing required fields", i)}
		}

		q := models.QuestionRecord{
			QuestionNumber: w.QuestionNumber,
			Text:           strings.TrimSpace(w.Text),
			Topic:          w.Topic,
			Difficulty:     models.Difficulty(w.Difficulty),
			HasImage:       w.HasImage,
		}
		if w.Marks != nil && *w.Marks > 0 {
			q.Marks = *w.Marks
		}
		if q.Topic == "" {
			q.Topic = "General"
		}
		if !q.Difficulty.Valid() {
			q.Difficulty = models.DifficultyMedium
		}

		// figureRegion present iff hasImage. Undersized boxes are noise
		// (barcodes, headers); demote those to no-image.
		switch {
		case q.HasImage && w.FigureRegion != nil && w.FigureRegion.Valid(e.opts.MinRegionSpan):
			region := *w.FigureRegion
			region.Page = chunk.AbsolutePage(region.Page)
			q.Region = &region
		case q.HasImage:
			e.log.Warn().Str("question", q.QuestionNumber).
				Interface("region", w.FigureRegion).
				Msg("dropping unusable figure region")
			q.HasImage = false
		}

		records = append(records, q)
	}
	return records, nil
}

// ExtractMarkSchemes extracts the marking guidance entries found in the chunk.
func (e *Extractor) ExtractMarkSchemes(ctx context.Context, chunk Chunk) ([]models.MarkSchemeRecord, error) {
	var wires []schemeWire
	if err := e.generateJSON(ctx, chunk, schemePrompt, &wires); err != nil {
		return nil, err
	}

	records := make([]models.MarkSchemeRecord, 0, len(wires))
	for i, w := range wires {
		if w.QuestionNumber == "" || strings.TrimSpace(w.MarkScheme) == "" {
			return nil, &Error{chunk.StartPage, chunk.EndPage,
				fmt.Errorf("record %d missing required fields", i)}
		}
		records = append(records, models.MarkSchemeRecord{
			QuestionNumber:  w.QuestionNumber,
			MarkScheme:      strings.TrimSpace(w.MarkScheme),
			ExaminerRemarks: strings.TrimSpace(w.ExaminerRemarks),
		})
	}
	return records, nil
}

// generateJSON runs one bounded, paced generation call per attempt and
// unmarshals the cleaned response into out. Malformed JSON and transient
// provider errors are retried; rate-limit errors back off harder each time.
func (e *Extractor) generateJSON(ctx context.Context, chunk Chunk, prompt string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= e.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := e.opts.Backoff
			if isRateLimited(lastErr) {
				delay = time.Duration(attempt+1) * e.opts.Backoff
			}
			e.log.Warn().Err(lastErr).
				Int("attempt", attempt).Dur("delay", delay).
				Ints("pages", []int{chunk.StartPage, chunk.EndPage}).
				Msg("retrying chunk extraction")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &Error{chunk.StartPage, chunk.EndPage, ctx.Err()}
			}
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return &Error{chunk.StartPage, chunk.EndPage, err}
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		raw, err := e.gen.GenerateDocument(attemptCtx, chunk.Data, prompt)
		cancel()
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return &Error{chunk.StartPage, chunk.EndPage, err}
		}

		if err := json.Unmarshal([]byte(StripFences(raw)), out); err != nil {
			// Malformed JSON from the model counts as transient; regenerate.
			lastErr = fmt.Errorf("parse response: %w", err)
			continue
		}
		return nil
	}

	return &Error{chunk.StartPage, chunk.EndPage, lastErr}
}

// StripFences removes a markdown code-fence wrapper from a model response.
// Structured-output mode is requested but the model still fences occasionally.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if isRateLimited(err) {
		return true
	}
	return containsAny(err.Error(),
		"500", "502", "503", "504", "unavailable",
		"connection reset", "timeout", "deadline exceeded", "temporary")
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "429", "rate limit", "quota", "resource exhausted")
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
