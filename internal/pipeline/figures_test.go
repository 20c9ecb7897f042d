package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Examina/internal/models"
)

type fakeRasterizer struct {
	width, height int
	err           error
	lastPage      int
	lastScale     float64
}

func (f *fakeRasterizer) RenderPage(_ []byte, pageIndex int, scale float64) (image.Image, error) {
	f.lastPage = pageIndex
	f.lastScale = scale
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, f.width, f.height)), nil
}

type fakeObjectStore struct {
	objects map[string][]byte
	puts    []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return data, nil
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.objects[key] = data
	f.puts = append(f.puts, key)
	return "https://examina-papers.s3.us-east-2.amazonaws.com/" + key, nil
}

func TestRegionToPixels(t *testing.T) {
	rect := regionToPixels(models.BoundingRegion{YMin: 100, XMin: 250, YMax: 600, XMax: 750}, 1000, 2000)
	assert.Equal(t, image.Rect(250, 200, 750, 1200), rect)
}

func TestPadAndClamp(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 1000)

	t.Run("interior box is padded", func(t *testing.T) {
		got := padAndClamp(image.Rect(100, 100, 300, 300), 10, bounds)
		assert.Equal(t, image.Rect(80, 80, 320, 320), got)
	})

	t.Run("padding is clamped at page edges", func(t *testing.T) {
		got := padAndClamp(image.Rect(0, 0, 200, 200), 10, bounds)
		assert.Equal(t, image.Rect(0, 0, 220, 220), got)
	})

	t.Run("degenerate box yields empty rect", func(t *testing.T) {
		got := padAndClamp(image.Rect(500, 500, 500, 500), 10, bounds)
		assert.True(t, got.Empty())
	})
}

func TestFigureKeyDeterministic(t *testing.T) {
	key := models.NaturalKey{Year: 2019, Paper: "p1", QuestionNumber: "3(b)(ii)"}
	got := FigureKey("figures/", key)
	assert.Equal(t, "figures/2019/p1/3-b-ii.png", got)
	// Same key, same path: re-running overwrites instead of accumulating.
	assert.Equal(t, got, FigureKey("figures/", key))
}

func TestCropUploadsPNG(t *testing.T) {
	ras := &fakeRasterizer{width: 1200, height: 1600}
	store := newFakeObjectStore()
	fx := NewFigureExtractor(ras, store, zerolog.Nop(), "figures/", 2, 5)

	url, err := fx.Crop(context.Background(),
		[]byte("%PDF"),
		models.BoundingRegion{YMin: 100, XMin: 100, YMax: 500, XMax: 900, Page: 3},
		models.NaturalKey{Year: 2020, Paper: "p2", QuestionNumber: "1(a)"},
	)
	require.NoError(t, err)
	assert.Contains(t, url, "figures/2020/p2/1-a.png")
	assert.Equal(t, 3, ras.lastPage)
	assert.Equal(t, 2.0, ras.lastScale)

	data := store.objects["figures/2020/p2/1-a.png"]
	require.NotEmpty(t, data)
	// PNG magic bytes.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}

func TestCropDegenerateBoxReturnsEmpty(t *testing.T) {
	ras := &fakeRasterizer{width: 1000, height: 1000}
	store := newFakeObjectStore()
	fx := NewFigureExtractor(ras, store, zerolog.Nop(), "figures/", 2, 0)

	// A box entirely off the page intersects to nothing after clamping.
	url, err := fx.Crop(context.Background(),
		[]byte("%PDF"),
		models.BoundingRegion{YMin: 0, XMin: 0, YMax: 0, XMax: 0, Page: 0},
		models.NaturalKey{Year: 2020, Paper: "p2", QuestionNumber: "9"},
	)
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Empty(t, store.puts)
}

func TestCropRenderFailure(t *testing.T) {
	ras := &fakeRasterizer{err: errors.New("bad page")}
	fx := NewFigureExtractor(ras, newFakeObjectStore(), zerolog.Nop(), "figures/", 2, 5)

	_, err := fx.Crop(context.Background(), []byte("%PDF"),
		models.BoundingRegion{YMin: 10, XMin: 10, YMax: 500, XMax: 500, Page: 1},
		models.NaturalKey{Year: 2020, Paper: "p2", QuestionNumber: "2"},
	)
	require.Error(t, err)
}
