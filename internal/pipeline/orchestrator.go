package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/extraction"
	"github.com/markdave123-py/Examina/internal/models"
)

// Stage names the state a document set reached. Failed(stage) is recorded as
// the stage the failure occurred in plus a non-nil report error.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageExtracting Stage = "extracting"
	StageMerging    Stage = "merging"
	StagePersisting Stage = "persisting"
	StageIndexing   Stage = "indexing"
	StageComplete   Stage = "complete"
)

// StageError marks which pipeline stage a scope-level failure happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// IngestReport summarizes one document set's run.
type IngestReport struct {
	RunID     string
	Set       DocumentSet
	Stage     Stage
	Extracted int // questions extracted (pre-merge)
	Schemes   int // mark-scheme entries extracted
	Merged    int
	Skipped   int // already persisted, filtered by natural key
	Persisted int
	Indexed   int
	Err       error
}

// Options tunes the orchestrator.
type Options struct {
	SchemePause time.Duration // courtesy pause between question and scheme passes
	EmbedBatch  int           // texts per embedding call
}

// Chunker splits a source document into extraction-sized page chunks.
// *extraction.Chunker is the production implementation.
type Chunker interface {
	Split(ctx context.Context, document []byte) ([]extraction.Chunk, error)
}

// Orchestrator drives the pipeline per document set: extract, merge, persist,
// index. Document sets and chunks are processed sequentially on purpose; the
// generation provider enforces a low requests-per-minute ceiling and
// concurrent calls would only trigger throttling.
type Orchestrator struct {
	papers    core.ObjectStore
	chunker   Chunker
	extractor *extraction.Extractor
	store     core.QuestionStore
	embedder  core.Embedder
	index     core.VectorIndex
	figures   *FigureExtractor
	log       zerolog.Logger
	opts      Options

	papersPrefix string
}

func NewOrchestrator(
	papers core.ObjectStore,
	chunker Chunker,
	extractor *extraction.Extractor,
	store core.QuestionStore,
	embedder core.Embedder,
	index core.VectorIndex,
	figures *FigureExtractor,
	papersPrefix string,
	log zerolog.Logger,
	opts Options,
) *Orchestrator {
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = 16
	}
	return &Orchestrator{
		papers:       papers,
		chunker:      chunker,
		extractor:    extractor,
		store:        store,
		embedder:     embedder,
		index:        index,
		figures:      figures,
		papersPrefix: papersPrefix,
		log:          log,
		opts:         opts,
	}
}

// IngestAll discovers document sets and ingests each in turn. A failing set
// is reported and skipped; it never aborts the run. In test mode only the
// first set is processed and its error is returned instead of swallowed,
// for fast iteration on prompt and schema changes.
func (o *Orchestrator) IngestAll(ctx context.Context, testMode bool) ([]IngestReport, error) {
	sets, err := DiscoverSets(ctx, o.papers, o.papersPrefix, o.log)
	if err != nil {
		return nil, err
	}
	if testMode && len(sets) > 1 {
		sets = sets[:1]
	}

	reports := make([]IngestReport, 0, len(sets))
	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		report := o.IngestSet(ctx, set)
		reports = append(reports, report)

		if report.Err != nil {
			if testMode {
				return reports, report.Err
			}
			// Batch-level fault isolation: one bad document set must not
			// abort the rest of the corpus.
			o.log.Error().Err(report.Err).Str("scope", set.Scope()).
				Str("stage", string(report.Stage)).Msg("document set failed, continuing")
			continue
		}
		o.log.Info().Str("scope", set.Scope()).
			Int("persisted", report.Persisted).Int("skipped", report.Skipped).
			Int("indexed", report.Indexed).Msg("document set complete")
	}
	return reports, nil
}

// IngestSet runs one document set through the full state machine.
func (o *Orchestrator) IngestSet(ctx context.Context, set DocumentSet) IngestReport {
	report := IngestReport{RunID: uuid.NewString(), Set: set, Stage: StageDiscovered}
	log := o.log.With().Str("scope", set.Scope()).Str("run", report.RunID).Logger()

	fail := func(stage Stage, err error) IngestReport {
		report.Stage = stage
		report.Err = &StageError{Stage: stage, Err: err}
		return report
	}

	// Extract both documents; questions first, then the mark scheme after a
	// courtesy pause. Omitting the pause reliably trips provider throttling.
	report.Stage = StageExtracting
	questions, err := extractDocument(ctx, o, set.PaperKey, log, o.extractor.ExtractQuestions)
	if err != nil {
		return fail(StageExtracting, err)
	}
	report.Extracted = len(questions)

	if o.opts.SchemePause > 0 {
		select {
		case <-time.After(o.opts.SchemePause):
		case <-ctx.Done():
			return fail(StageExtracting, ctx.Err())
		}
	}

	schemes, err := extractDocument(ctx, o, set.SchemeKey, log, o.extractor.ExtractMarkSchemes)
	if err != nil {
		return fail(StageExtracting, err)
	}
	report.Schemes = len(schemes)

	report.Stage = StageMerging
	merged := Merge(questions, schemes, log)
	report.Merged = len(merged)

	// Idempotency filter: repeated runs over the same input are safe because
	// persistence is create-if-absent by natural key.
	report.Stage = StagePersisting
	fresh := make([]models.QuestionRecord, 0, len(merged))
	for i := range merged {
		merged[i].Year = set.Year
		merged[i].Paper = set.Paper
		existing, err := o.store.FindByNaturalKey(ctx, merged[i].Key())
		if err != nil {
			return fail(StagePersisting, err)
		}
		if existing != nil {
			report.Skipped++
			continue
		}
		fresh = append(fresh, merged[i])
	}

	paperData, err := o.papers.Get(ctx, set.PaperKey)
	if err != nil && anyHasImage(fresh) {
		return fail(StagePersisting, fmt.Errorf("reload paper for figures: %w", err))
	}

	o.cropFigures(ctx, paperData, fresh, log)

	// Persistence is per-question: a failure here must not roll back
	// already-written siblings.
	persisted := make([]models.QuestionRecord, 0, len(fresh))
	for i := range fresh {
		fresh[i].ID = uuid.NewString()
		if err := o.store.Create(ctx, &fresh[i]); err != nil {
			log.Error().Err(err).Str("question", fresh[i].QuestionNumber).
				Msg("persist failed, continuing with siblings")
			continue
		}
		persisted = append(persisted, fresh[i])
	}
	report.Persisted = len(persisted)

	report.Stage = StageIndexing
	indexed, err := o.indexQuestions(ctx, persisted)
	report.Indexed = indexed
	if err != nil {
		return fail(StageIndexing, err)
	}

	report.Stage = StageComplete
	return report
}

// extractChunks runs the extraction client over each chunk strictly in
// order, so chunk-relative page offsets accumulate safely.
func extractChunks[T any](
	ctx context.Context,
	chunks []extraction.Chunk,
	log zerolog.Logger,
	extract func(context.Context, extraction.Chunk) ([]T, error),
) ([]T, error) {
	var out []T
	for _, chunk := range chunks {
		records, err := extract(ctx, chunk)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("start", chunk.StartPage).Int("end", chunk.EndPage).
			Int("records", len(records)).Msg("chunk extracted")
		out = append(out, records...)
	}
	return out, nil
}

// extractDocument fetches one document from object storage, chunks it and
// extracts every chunk.
func extractDocument[T any](ctx context.Context, o *Orchestrator, key string, log zerolog.Logger, extract func(context.Context, extraction.Chunk) ([]T, error)) ([]T, error) {
	data, err := o.papers.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	chunks, err := o.chunker.Split(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	return extractChunks(ctx, chunks, log, extract)
}

// cropFigures runs figure extraction for flagged questions. Crops are local
// work (no provider limits), so they may run concurrently. A failed crop
// degrades the question to no-image; it never blocks persistence.
func (o *Orchestrator) cropFigures(ctx context.Context, paperData []byte, questions []models.QuestionRecord, log zerolog.Logger) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range questions {
		if !questions[i].HasImage || questions[i].Region == nil {
			continue
		}
		q := &questions[i]
		g.Go(func() error {
			url, err := o.figures.Crop(gctx, paperData, *q.Region, q.Key())
			if err != nil {
				log.Warn().Err(err).Str("question", q.QuestionNumber).
					Msg("figure extraction failed, persisting without image")
				q.HasImage = false
				q.Region = nil
				return nil
			}
			if url == "" {
				q.HasImage = false
				q.Region = nil
				return nil
			}
			q.ImageURL = url
			return nil
		})
	}
	_ = g.Wait()
}

// indexQuestions embeds persisted questions in batches and upserts them into
// the vector index. Returns how many records were upserted before any error.
func (o *Orchestrator) indexQuestions(ctx context.Context, questions []models.QuestionRecord) (int, error) {
	indexed := 0
	for start := 0; start < len(questions); start += o.opts.EmbedBatch {
		end := start + o.opts.EmbedBatch
		if end > len(questions) {
			end = len(questions)
		}
		batch := questions[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = embeddingText(&batch[i])
		}
		vectors, err := o.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return indexed, fmt.Errorf("embed size mismatch: got %d want %d", len(vectors), len(batch))
		}

		records := make([]models.VectorRecord, len(batch))
		for i := range batch {
			q := &batch[i]
			records[i] = models.VectorRecord{
				ID:        q.Key().ID(),
				Embedding: vectors[i],
				Metadata: models.VectorMetadata{
					Year:            q.Year,
					Paper:           q.Paper,
					QuestionNumber:  q.QuestionNumber,
					Topic:           q.Topic,
					Difficulty:      q.Difficulty,
					Marks:           q.Marks,
					Text:            q.Text,
					MarkScheme:      q.MarkScheme,
					ExaminerRemarks: q.ExaminerRemarks,
				},
			}
		}
		if err := o.index.Upsert(ctx, records); err != nil {
			return indexed, fmt.Errorf("upsert batch: %w", err)
		}
		indexed += len(records)
	}
	return indexed, nil
}

// embeddingText is the canonical searchable text for a question: the same
// rendering must be used for every indexed record so the embedding space
// stays consistent.
func embeddingText(q *models.QuestionRecord) string {
	var b strings.Builder
	b.WriteString("Topic: ")
	b.WriteString(q.Topic)
	b.WriteString("\nQuestion ")
	b.WriteString(q.QuestionNumber)
	b.WriteString(": ")
	b.WriteString(q.Text)
	if q.MarkScheme != "" && q.MarkScheme != SchemeNotFound {
		b.WriteString("\nMark scheme: ")
		b.WriteString(q.MarkScheme)
	}
	return b.String()
}

func anyHasImage(questions []models.QuestionRecord) bool {
	for i := range questions {
		if questions[i].HasImage {
			return true
		}
	}
	return false
}
