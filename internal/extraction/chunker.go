package extraction

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Chunk is a contiguous page range [StartPage, EndPage) of a source document
// plus the trimmed PDF payload covering exactly those pages. It is created by
// the Chunker, consumed by the extraction client and discarded afterwards.
type Chunk struct {
	StartPage int // zero-based, inclusive
	EndPage   int // zero-based, exclusive
	Data      []byte
}

// AbsolutePage translates a chunk-relative page number (as reported by the
// generation model, 0 = first page of the chunk) to an absolute page number
// in the source document.
func (c Chunk) AbsolutePage(relative int) int {
	return c.StartPage + relative
}

// Window is a half-open page range produced by PageWindows.
type Window struct {
	Start int
	End   int
}

// PageWindows splits pageCount pages into sequential, non-overlapping windows
// of at most chunkSize pages, exactly covering [0, pageCount). Zero pages
// yields zero windows.
func PageWindows(pageCount, chunkSize int) []Window {
	if pageCount <= 0 || chunkSize <= 0 {
		return nil
	}
	windows := make([]Window, 0, (pageCount+chunkSize-1)/chunkSize)
	for start := 0; start < pageCount; start += chunkSize {
		end := start + chunkSize
		if end > pageCount {
			end = pageCount
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows
}

// Chunker splits a multi-page PDF into fixed-size page windows so each
// generation call stays under the model's input limit.
type Chunker struct {
	ChunkSize int
}

func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 4
	}
	return &Chunker{ChunkSize: chunkSize}
}

// Split produces one Chunk per page window, each carrying a standalone PDF
// containing only that window's pages.
func (c *Chunker) Split(ctx context.Context, document []byte) ([]Chunk, error) {
	pages, err := api.PageCount(bytes.NewReader(document), nil)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	windows := PageWindows(pages, c.ChunkSize)
	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// pdfcpu page selections are 1-based and inclusive.
		sel := []string{fmt.Sprintf("%d-%d", w.Start+1, w.End)}
		var buf bytes.Buffer
		if err := api.Trim(bytes.NewReader(document), &buf, sel, nil); err != nil {
			return nil, fmt.Errorf("trim pages %d-%d: %w", w.Start+1, w.End, err)
		}
		chunks = append(chunks, Chunk{StartPage: w.Start, EndPage: w.End, Data: buf.Bytes()})
	}
	return chunks, nil
}
