package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

var metaOne = &ArrayMeta{
	Shape:  []int{2, 5, 7},
	Chunks: []int{1, 2, 3},
	Dtype:  Dtype{ByteOrder: BOLittleEndian, BasicType: BTUnsigned, ByteSize: 2},
}

// writeIota fills every chunk so that each element holds its own flat index
// in the full array.
func writeIota(t *testing.T, a *Array) {
	t.Helper()
	ctx := context.Background()
	shape, chunks := a.Shape(), a.Chunks()
	full := rowMajorStrides(shape)
	grid := GridShape(shape, chunks)
	zero := make([]int, len(shape))
	err := forEachIndex(zero, grid, func(cc []int) error {
		data := make([]uint16, a.chunkLen())
		local := rowMajorStrides(chunks)
		err := forEachIndex(zero, chunks, func(l []int) error {
			src, dst := 0, 0
			for i := range l {
				g := cc[i]*chunks[i] + l[i]
				if g >= shape[i] {
					return nil
				}
				src += g * full[i]
				dst += l[i] * local[i]
			}
			data[dst] = uint16(src)
			return nil
		})
		if err != nil {
			return err
		}
		return a.WriteChunk(ctx, cc, data)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := Create(ctx, s, "foo/bar", metaOne); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("expected only the .zarray key after Create, store has %d keys", s.Len())
	}

	z, err := Open(ctx, s, "/foo//bar/")
	if err != nil {
		t.Fatal(err)
	}
	if z.Path() != "foo/bar" {
		t.Errorf("path mismatch. want %q got %q", "foo/bar", z.Path())
	}
	if diff := cmp.Diff(metaOne.Shape, z.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if z.Dtype() != "<u2" {
		t.Errorf("dtype mismatch. want %q got %q", "<u2", z.Dtype())
	}
	if z.Meta().ZarrFormat != Version {
		t.Errorf("expected zarr_format %d, got %d", Version, z.Meta().ZarrFormat)
	}

	if _, err := Open(ctx, s, "missing"); !errors.Is(err, ErrNotfound) {
		t.Errorf("expected ErrNotfound opening a missing array, got %v", err)
	}
}

func TestRetrieveChunk(t *testing.T) {
	ctx := context.Background()
	a, err := Create(ctx, NewMemoryStore(), "arr", metaOne)
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.RetrieveChunk(ctx, []int{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(make([]uint16, 6), got); diff != "" {
		t.Errorf("unwritten chunk should decode to zeros (-want +got):\n%s", diff)
	}

	writeIota(t, a)
	got, err = a.RetrieveChunk(ctx, []int{1, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	// chunk rows 2..3, cols 6..8; col 7 and 8 are padding
	want := []uint16{35 + 14 + 6, 0, 0, 35 + 21 + 6, 0, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}

	if _, err := a.RetrieveChunk(ctx, []int{0, 0}); err == nil {
		t.Error("expected error for chunk coordinates of the wrong rank")
	}
	bad := [][]int{{2, 0, 0}, {0, 3, 0}, {0, 0, -1}}
	for _, c := range bad {
		if _, err := a.RetrieveChunk(ctx, c); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("expected ErrOutOfBounds for chunk coordinates %v, got %v", c, err)
		}
	}
}

func TestRetrieveFullPlane(t *testing.T) {
	ctx := context.Background()
	a, err := Create(ctx, NewMemoryStore(), "arr", metaOne)
	if err != nil {
		t.Fatal(err)
	}
	writeIota(t, a)

	got, err := a.RetrieveFullPlane(ctx, []int{1, All, All})
	if err != nil {
		t.Fatal(err)
	}
	want := make([]uint16, 35)
	for i := range want {
		want[i] = uint16(35 + i)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plane mismatch (-want +got):\n%s", diff)
	}

	got, err = a.RetrieveFullPlane(ctx, []int{All, 3, All})
	if err != nil {
		t.Fatal(err)
	}
	want = want[:0]
	for c := 0; c < 2; c++ {
		for x := 0; x < 7; x++ {
			want = append(want, uint16(c*35+3*7+x))
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("xz plane mismatch (-want +got):\n%s", diff)
	}

	got, err = a.RetrieveFullPlane(ctx, []int{0, 4, 6})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{34}, got); diff != "" {
		t.Errorf("point mismatch (-want +got):\n%s", diff)
	}

	if _, err := a.RetrieveFullPlane(ctx, []int{2, All, All}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestRetrieveFullPlaneFillValue(t *testing.T) {
	ctx := context.Background()
	m := &ArrayMeta{
		Shape:     []int{3, 3},
		Chunks:    []int{2, 2},
		Dtype:     Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4},
		FillValue: FillValueNaN,
	}
	a, err := Create(ctx, NewMemoryStore(), "f", m)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteChunk(ctx, []int{0, 0}, []float32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got, err := a.RetrieveFullPlane(ctx, []int{All, All})
	if err != nil {
		t.Fatal(err)
	}
	vals := got.([]float32)
	if vals[0] != 1 || vals[1] != 2 || vals[3] != 3 || vals[4] != 4 {
		t.Errorf("written chunk misplaced: %v", vals)
	}
	for _, i := range []int{2, 5, 6, 7, 8} {
		if !math.IsNaN(float64(vals[i])) {
			t.Errorf("element %d: expected NaN fill, got %v", i, vals[i])
		}
	}
}

func TestWriteChunkValidation(t *testing.T) {
	ctx := context.Background()
	a, err := Create(ctx, NewMemoryStore(), "arr", metaOne)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteChunk(ctx, []int{0, 0, 0}, make([]uint8, 6)); err == nil {
		t.Error("expected dtype mismatch error")
	}
	if err := a.WriteChunk(ctx, []int{0, 0, 0}, make([]uint16, 5)); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := *metaOne
	m.DimensionSeparator = "/"
	a, err := Create(ctx, s, "nested/arr", &m)
	if err != nil {
		t.Fatal(err)
	}
	writeIota(t, a)

	if _, err := s.Get(ctx, "nested/arr/1/2/2"); err != nil {
		t.Errorf("expected nested chunk key on disk: %v", err)
	}
	if _, err := s.Get(ctx, "nested/arr/9/9/9"); !errors.Is(err, ErrNotfound) {
		t.Errorf("expected ErrNotfound, got %v", err)
	}

	b, err := Open(ctx, s, "nested/arr")
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.RetrieveFullPlane(ctx, []int{0, 0, All})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{0, 1, 2, 3, 4, 5, 6}, got); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "img")
	a, err := Create(ctx, s, "arr", metaOne)
	if err != nil {
		t.Fatal(err)
	}
	writeIota(t, a)

	if !mr.Exists("img:arr/.zarray") {
		t.Error("expected prefixed .zarray key in redis")
	}
	if _, err := s.Get(ctx, "arr/7.7.7"); !errors.Is(err, ErrNotfound) {
		t.Errorf("expected ErrNotfound, got %v", err)
	}

	b, err := Open(ctx, s, "arr")
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.RetrieveChunk(ctx, []int{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{0, 1, 2, 7, 8, 9}, got); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenMultiscale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, shape := range [][]int{{4, 100, 150}, {4, 50, 75}} {
		m := &ArrayMeta{Shape: shape, Chunks: []int{1, 32, 32}, Dtype: metaOne.Dtype}
		if _, err := Create(ctx, s, "img/"+string(rune('0'+i)), m); err != nil {
			t.Fatal(err)
		}
	}
	attrs := Attributes{}
	if err := json.Unmarshal([]byte(`{"multiscales":[{"version":"0.4","datasets":[{"path":"0"},{"path":"1"}]}]}`), &attrs); err != nil {
		t.Fatal(err)
	}
	if err := CreateGroup(ctx, s, "img", attrs); err != nil {
		t.Fatal(err)
	}

	levels, err := OpenMultiscale(ctx, s, "img")
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if levels[1].Path() != "img/1" || levels[1].Shape()[2] != 75 {
		t.Errorf("unexpected second level %s", levels[1].Info())
	}

	if err := CreateGroup(ctx, s, "empty", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenMultiscale(ctx, s, "empty"); err == nil {
		t.Error("expected error for group without multiscales")
	}

	// attributes without a group document aren't a group
	if err := s.Put(ctx, "loose/.zattrs", strings.NewReader(`{"multiscales":[]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenMultiscale(ctx, s, "loose"); !errors.Is(err, ErrNotfound) {
		t.Errorf("expected ErrNotfound for missing .zgroup, got %v", err)
	}

	if err := s.Put(ctx, "v3/.zgroup", strings.NewReader(`{"zarr_format":3}`)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := OpenGroup(ctx, s, "v3"); err == nil {
		t.Error("expected error for unsupported zarr_format")
	}
}

func TestAttributesMultiscales(t *testing.T) {
	ms, err := Attributes{}.Multiscales()
	if err != nil || ms != nil {
		t.Fatalf("expected no multiscales, got %v %v", ms, err)
	}

	if _, err := (Attributes{"multiscales": "nope"}).Multiscales(); err == nil {
		t.Error("expected error for malformed multiscales")
	}
}

func TestCropChunk(t *testing.T) {
	// a [2, 2, 3] chunk holding 0..11
	chunk := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	shape := []int{2, 2, 3}

	got, err := CropChunk(chunk, shape, []int{1, All, All})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{6, 7, 8, 9, 10, 11}, got); diff != "" {
		t.Errorf("crop mismatch (-want +got):\n%s", diff)
	}

	got, err = CropChunk(chunk, shape, []int{All, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{5, 11}, got); diff != "" {
		t.Errorf("crop mismatch (-want +got):\n%s", diff)
	}

	got.([]uint16)[0] = 99
	if chunk[5] != 5 {
		t.Error("CropChunk shares memory with its input")
	}

	if _, err := CropChunk(chunk, shape, []int{2, All, All}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := CropChunk(chunk[:5], shape, []int{0, All, All}); err == nil {
		t.Error("expected error for a short chunk")
	}
}

func TestPath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"foo/bar", "foo/bar"},
		{`\foo\\bar\`, "foo/bar"},
		{"", ""},
	}
	for _, c := range cases {
		p, err := NewPath(c.in)
		if err != nil {
			t.Fatal(err)
		}
		if p.String() != c.want {
			t.Errorf("NewPath(%q) = %q, want %q", c.in, p.String(), c.want)
		}
	}
	if _, err := NewPath("a/../b"); err == nil {
		t.Error("expected error for relative segment")
	}

	base := make(Path, 1, 4)
	base[0] = "root"
	a, b := base.Join("a"), base.Join("b")
	if a.String() != "root/a" || b.String() != "root/b" {
		t.Errorf("Join must not alias: %q %q", a, b)
	}
}

func TestChunkKey(t *testing.T) {
	if got := ChunkKey([]int{1, 4}, "."); got != "1.4" {
		t.Errorf("want 1.4, got %s", got)
	}
	if got := ChunkKey([]int{0, 2, 3}, "/"); got != "0/2/3" {
		t.Errorf("want 0/2/3, got %s", got)
	}
	if diff := cmp.Diff([]int{2, 3, 3}, GridShape([]int{2, 5, 7}, []int{1, 2, 3})); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}
