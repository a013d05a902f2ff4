package loader

import (
	"context"
	"errors"
	"testing"

	zarr "github.com/qri-io/zarr-loader"
)

func pyramidLevels(t *testing.T) []Array {
	t.Helper()
	shapes := [][]int{{4, 100, 150}, {4, 50, 75}, {4, 25, 38}}
	levels := make([]Array, len(shapes))
	for i, s := range shapes {
		levels[i] = newArray(t, "pyramid", s, []int{1, 32, 32})
	}
	return levels
}

func TestPyramidScenario(t *testing.T) {
	ctx := context.Background()
	lv := pyramidLevels(t)

	if _, err := New(Pyramid{Levels: []Array{lv[0], lv[2], lv[1]}}); !errors.Is(err, ErrPyramidShape) {
		t.Fatalf("expected ErrPyramidShape for levels out of order, got %v", err)
	}

	l, err := New(Pyramid{Levels: lv})
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsPyramid() || l.NumLevels() != 3 {
		t.Fatalf("expected a 3 level pyramid")
	}
	if md := l.Metadata(); md.MinZoom != -3 || md.ImageWidth != 150 || md.ImageHeight != 100 || md.TileSize != 32 {
		t.Errorf("unexpected metadata %+v", md)
	}

	if err := l.SetChannelSelections(Indices(0, 0, 0), Indices(1, 0, 0), Indices(3, 0, 0), Indices(2, 0, 0)); err != nil {
		t.Fatal(err)
	}
	for level := 0; level < 3; level++ {
		tile, err := l.GetTile(ctx, 0, 0, level)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if len(tile) != 4 {
			t.Errorf("level %d: expected 4 buffers, got %d", level, len(tile))
		}
		for i, b := range tile {
			if zarr.Len(b) != 32*32 {
				t.Errorf("level %d buffer %d: expected %d elements, got %d", level, i, 32*32, zarr.Len(b))
			}
		}

		r, err := l.GetRaster(ctx, level)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		shape := lv[level].Shape()
		if r.Width != shape[2] || r.Height != shape[1] {
			t.Errorf("level %d: raster %dx%d, want %dx%d", level, r.Width, r.Height, shape[2], shape[1])
		}
		if zarr.Len(r.Data[0]) != shape[1]*shape[2] {
			t.Errorf("level %d: raster has %d elements", level, zarr.Len(r.Data[0]))
		}
	}

	_, err = l.GetTile(ctx, 0, 0, 3)
	if !errors.Is(err, ErrLevelOutOfRange) {
		t.Errorf("expected ErrLevelOutOfRange, got %v", err)
	}
	if IsConfigurationError(err) {
		t.Error("out of range levels are not configuration errors")
	}
	if _, err := l.GetRaster(ctx, -1); !errors.Is(err, ErrLevelOutOfRange) {
		t.Errorf("expected ErrLevelOutOfRange, got %v", err)
	}
}

func TestPyramidValidation(t *testing.T) {
	f := func(shape ...int) Array {
		return &fakeArray{shape: shape, chunks: []int{1, 8, 8}, chunk: echo, plane: echo}
	}
	cases := []struct {
		name   string
		levels []Array
		ok     bool
	}{
		{"strictly decreasing", []Array{f(2, 64, 64), f(2, 32, 32), f(2, 16, 16)}, true},
		{"single level", []Array{f(2, 64, 64)}, true},
		{"equal level", []Array{f(2, 64, 64), f(2, 64, 64)}, false},
		{"equal width", []Array{f(2, 64, 64), f(2, 32, 64)}, false},
		{"equal height", []Array{f(2, 64, 64), f(2, 64, 32)}, false},
		{"increasing", []Array{f(2, 16, 16), f(2, 32, 32)}, false},
		{"rank change", []Array{f(2, 64, 64), f(32, 32)}, false},
		{"empty", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, err := New(Pyramid{Levels: c.levels})
			if c.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if l.Metadata().MinZoom != -len(c.levels) {
					t.Errorf("expected minZoom %d, got %d", -len(c.levels), l.Metadata().MinZoom)
				}
				return
			}
			if !errors.Is(err, ErrPyramidShape) {
				t.Fatalf("expected ErrPyramidShape, got %v", err)
			}
		})
	}
}

func TestSingleSourceIgnoresLevel(t *testing.T) {
	a := newArray(t, "img", []int{1, 64, 64}, []int{1, 32, 32})
	l, err := New(Single{Array: a})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.GetTile(context.Background(), 1, 1, 5); err != nil {
		t.Errorf("single sources should ignore the level: %v", err)
	}
	r, err := l.GetRaster(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if r.Width != 64 || r.Height != 64 {
		t.Errorf("expected base extents, got %dx%d", r.Width, r.Height)
	}
}

func TestPyramidRGBSpatialAxes(t *testing.T) {
	rgb := func(shape ...int) Array {
		return &fakeArray{shape: shape, chunks: []int{8, 8, 3}, chunk: echo, plane: echo}
	}
	// the color axis stays at 3 on every level and must not count as spatial
	l, err := New(Pyramid{Levels: []Array{rgb(64, 64, 3), rgb(32, 32, 3)}})
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsRGB() {
		t.Error("expected rgb detection on the base level")
	}
}
