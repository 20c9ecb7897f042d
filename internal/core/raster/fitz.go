package raster

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/markdave123-py/Examina/internal/core"
)

// FitzRasterizer renders PDF pages to pixel buffers via MuPDF. Page indexes
// are zero-based; scale multiplies the 72 DPI base resolution.
type FitzRasterizer struct{}

func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

func (r *FitzRasterizer) RenderPage(document []byte, pageIndex int, scale float64) (image.Image, error) {
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageIndex, doc.NumPage())
	}
	if scale <= 0 {
		scale = 1
	}

	img, err := doc.ImageDPI(pageIndex, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex, err)
	}
	return img, nil
}

var _ core.Rasterizer = (*FitzRasterizer)(nil)
