package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/Examina/internal/core"
	"github.com/markdave123-py/Examina/internal/models"
)

// FigureExtractor rasterizes a page and crops the figure region flagged by
// extraction, persisting the crop to object storage. It has no database
// dependency: (document, page, region) in, image URL out.
type FigureExtractor struct {
	ras    core.Rasterizer
	store  core.ObjectStore
	log    zerolog.Logger
	prefix string

	Scale  float64 // raster scale factor; >=2 keeps figures legible
	PadPct int     // padding per side, percent of box size
}

func NewFigureExtractor(ras core.Rasterizer, store core.ObjectStore, log zerolog.Logger, prefix string, scale float64, padPct int) *FigureExtractor {
	if scale < 1 {
		scale = 2
	}
	return &FigureExtractor{ras: ras, store: store, log: log, prefix: prefix, Scale: scale, PadPct: padPct}
}

// Crop renders the absolute page named by region.Page, crops the padded,
// clamped figure box and uploads it as PNG. Returns "" (not an error) when
// the crop degenerates; a missing figure never blocks persistence.
func (f *FigureExtractor) Crop(ctx context.Context, document []byte, region models.BoundingRegion, key models.NaturalKey) (string, error) {
	page, err := f.ras.RenderPage(document, region.Page, f.Scale)
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", region.Page, err)
	}

	bounds := page.Bounds()
	rect := regionToPixels(region, bounds.Dx(), bounds.Dy())
	rect = padAndClamp(rect, f.PadPct, bounds)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		f.log.Warn().Str("question", key.QuestionNumber).Int("page", region.Page).
			Msg("figure crop degenerated to empty box")
		return "", nil
	}

	crop := cropImage(page, rect)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return "", fmt.Errorf("encode figure: %w", err)
	}

	url, err := f.store.Put(ctx, FigureKey(f.prefix, key), buf.Bytes(), "image/png")
	if err != nil {
		return "", fmt.Errorf("store figure: %w", err)
	}
	return url, nil
}

// FigureKey is a deterministic function of the natural key, so re-running
// extraction for the same question overwrites the previous crop.
func FigureKey(prefix string, key models.NaturalKey) string {
	number := strings.NewReplacer("(", "-", ")", "").Replace(key.QuestionNumber)
	return fmt.Sprintf("%s%d/%s/%s.png", prefix, key.Year, key.Paper, number)
}

// regionToPixels maps a 0-1000 normalized box onto a rendered page of
// width x height pixels.
func regionToPixels(region models.BoundingRegion, width, height int) image.Rectangle {
	return image.Rect(
		region.XMin*width/1000,
		region.YMin*height/1000,
		region.XMax*width/1000,
		region.YMax*height/1000,
	)
}

// padAndClamp expands the box by padPct percent of its own size on each side,
// then clamps it to the page bounds. Padding avoids clipping stroke edges;
// clamping keeps the crop on-page.
func padAndClamp(rect image.Rectangle, padPct int, bounds image.Rectangle) image.Rectangle {
	padX := rect.Dx() * padPct / 100
	padY := rect.Dy() * padPct / 100
	padded := image.Rect(rect.Min.X-padX, rect.Min.Y-padY, rect.Max.X+padX, rect.Max.Y+padY)
	return padded.Intersect(bounds)
}

func cropImage(src image.Image, rect image.Rectangle) image.Image {
	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if s, ok := src.(subImager); ok {
		return s.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}
