// Package zarr reads chunked n-dimensional arrays stored in the zarr v2
// layout: a ".zarray" JSON document next to one key per chunk.
package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
)

const (
	// Version is the zarr storage format this package reads and writes.
	Version = 2
)

type Array struct {
	path  Path
	store Store
	meta  *ArrayMeta
}

// Create writes m as the ".zarray" document at path and returns the array.
// No chunks are written; unwritten chunks read as the fill value.
func Create(ctx context.Context, store Store, path string, m *ArrayMeta) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	meta := *m
	if meta.ZarrFormat == 0 {
		meta.ZarrFormat = Version
	}
	if meta.Order == "" {
		meta.Order = "C"
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	if err := putJSON(ctx, store, p.Join(string(MTArray)), &meta); err != nil {
		return nil, err
	}

	return &Array{path: p, store: store, meta: &meta}, nil
}

// Open reads the ".zarray" document at path.
func Open(ctx context.Context, store Store, path string) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	mp := p.Join(string(MTArray)).String()
	f, err := store.Get(ctx, mp)
	if err != nil {
		return nil, fmt.Errorf("opening array %q: %w", p.String(), err)
	}
	defer f.Close()

	meta := &ArrayMeta{}
	if err := json.NewDecoder(f).Decode(meta); err != nil {
		return nil, fmt.Errorf("reading %q: %w", mp, err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("reading %q: %w", mp, err)
	}

	return &Array{path: p, store: store, meta: meta}, nil
}

// CreateGroup writes ".zgroup" at path, plus ".zattrs" when attrs is not nil.
func CreateGroup(ctx context.Context, store Store, path string, attrs Attributes) error {
	p, err := NewPath(path)
	if err != nil {
		return err
	}
	if err := putJSON(ctx, store, p.Join(string(MTGroup)), &Group{ZarrFormat: Version}); err != nil {
		return err
	}
	if attrs == nil {
		return nil
	}
	return putJSON(ctx, store, p.Join(string(MTAttributes)), attrs)
}

// OpenGroup reads the ".zgroup" and ".zattrs" documents at path. A group
// without ".zattrs" has empty attributes.
func OpenGroup(ctx context.Context, store Store, path string) (*Group, Attributes, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, nil, err
	}

	g := &Group{}
	if err := getJSON(ctx, store, p.Join(string(MTGroup)), g); err != nil {
		return nil, nil, fmt.Errorf("opening group %q: %w", p.String(), err)
	}
	if g.ZarrFormat != Version {
		return nil, nil, fmt.Errorf("opening group %q: unsupported zarr_format %d", p.String(), g.ZarrFormat)
	}

	attrs := Attributes{}
	err = getJSON(ctx, store, p.Join(string(MTAttributes)), &attrs)
	if err != nil && !errors.Is(err, ErrNotfound) {
		return nil, nil, err
	}
	return g, attrs, nil
}

// OpenMultiscale opens every resolution level listed by the first entry of
// the "multiscales" attribute of the group at path, highest resolution first.
func OpenMultiscale(ctx context.Context, store Store, path string) ([]*Array, error) {
	_, attrs, err := OpenGroup(ctx, store, path)
	if err != nil {
		return nil, err
	}
	ms, err := attrs.Multiscales()
	if err != nil {
		return nil, fmt.Errorf("opening multiscale group %q: %w", path, err)
	}
	if len(ms) == 0 || len(ms[0].Datasets) == 0 {
		return nil, fmt.Errorf("opening multiscale group %q: no multiscale datasets", path)
	}

	p, _ := NewPath(path)
	levels := make([]*Array, 0, len(ms[0].Datasets))
	for _, ds := range ms[0].Datasets {
		a, err := Open(ctx, store, p.Join(ds.Path).String())
		if err != nil {
			return nil, err
		}
		levels = append(levels, a)
	}
	return levels, nil
}

func putJSON(ctx context.Context, store Store, key Path, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key.String(), bytes.NewReader(data))
}

func getJSON(ctx context.Context, store Store, key Path, v interface{}) error {
	f, err := store.Get(ctx, key.String())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("reading %q: %w", key.String(), err)
	}
	return nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %q shape=%v chunks=%v dtype=%s>", a.Path(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype)
}

func (a *Array) Path() string {
	return a.path.String()
}

// Meta returns a copy of the array metadata.
func (a *Array) Meta() ArrayMeta {
	return *a.meta
}

func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

func (a *Array) Chunks() []int {
	return append([]int(nil), a.meta.Chunks...)
}

func (a *Array) Dtype() string {
	return a.meta.Dtype.String()
}

func (a *Array) chunkLen() int {
	return product(a.meta.Chunks)
}

func (a *Array) checkChunkCoords(coords []int) error {
	if len(coords) != len(a.meta.Shape) {
		return fmt.Errorf("chunk coordinates %v have %d axes, array has %d", coords, len(coords), len(a.meta.Shape))
	}
	grid := GridShape(a.meta.Shape, a.meta.Chunks)
	for i, c := range coords {
		if c < 0 || c >= grid[i] {
			return fmt.Errorf("%w: chunk coordinate %d on axis %d with %d chunks", ErrOutOfBounds, c, i, grid[i])
		}
	}
	return nil
}

// WriteChunk stores data, a typed slice holding exactly one chunk of
// elements in C order, as the uncompressed chunk at coords.
func (a *Array) WriteChunk(ctx context.Context, coords []int, data interface{}) error {
	if err := a.checkChunkCoords(coords); err != nil {
		return err
	}
	if !a.meta.Compressor.IsNone() {
		return fmt.Errorf("writing %s compressed chunks is not supported", a.meta.Compressor.ID)
	}
	want, err := a.meta.Dtype.NewSlice(0)
	if err != nil {
		return err
	}
	if reflect.TypeOf(data) != reflect.TypeOf(want) {
		return fmt.Errorf("chunk data is %T, array dtype %s needs %T", data, a.meta.Dtype, want)
	}
	if n := Len(data); n != a.chunkLen() {
		return fmt.Errorf("chunk data has %d elements, chunk holds %d", n, a.chunkLen())
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, a.meta.Dtype.binaryOrder(), data); err != nil {
		return err
	}
	return a.store.Put(ctx, a.chunkPath(coords).String(), buf)
}

// RetrieveChunk decodes the chunk at coords. The result is a typed slice
// holding one full chunk, edge padding included. Missing chunks decode to
// the fill value.
func (a *Array) RetrieveChunk(ctx context.Context, coords []int) (interface{}, error) {
	if err := a.checkChunkCoords(coords); err != nil {
		return nil, err
	}
	return a.readChunk(ctx, coords)
}

// RetrieveFullPlane decodes the elements addressed by sel. Each entry is
// either a concrete element index, which drops the axis from the result, or
// All, which keeps the whole axis. The result is C ordered over the kept axes.
func (a *Array) RetrieveFullPlane(ctx context.Context, sel []int) (interface{}, error) {
	ix, err := newBasicIndexer(sel, a.meta.Shape, a.meta.Chunks)
	if err != nil {
		return nil, err
	}

	out, err := a.meta.Dtype.NewSlice(ix.outLen())
	if err != nil {
		return nil, err
	}
	if err := fill(out, a.meta.FillValue); err != nil {
		return nil, err
	}

	dst := reflect.ValueOf(out)
	outStrides := ix.outStrides()
	srcStrides := rowMajorStrides(a.meta.Chunks)

	err = ix.each(func(p chunkProjection) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, ok, err := a.loadChunk(ctx, p.ChunkCoords)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return copyProjection(dst, reflect.ValueOf(chunk), p, outStrides, srcStrides)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// copyProjection copies the part of chunk src described by p into dst, one
// run along the last axis at a time.
func copyProjection(dst, src reflect.Value, p chunkProjection, outStrides, srcStrides []int) error {
	last := len(p.Dims) - 1
	tail := p.Dims[last]
	run := tail.DimChunkHi - tail.DimChunkLo
	lo := make([]int, last)
	hi := make([]int, last)
	for i := 0; i < last; i++ {
		lo[i], hi[i] = p.Dims[i].DimChunkLo, p.Dims[i].DimChunkHi
	}
	return forEachIndex(lo, hi, func(idx []int) error {
		s := tail.DimChunkLo
		d := tail.DimOutSel * outStrides[last]
		for i, l := range idx {
			s += l * srcStrides[i]
			d += (p.Dims[i].DimOutSel + l - p.Dims[i].DimChunkLo) * outStrides[i]
		}
		reflect.Copy(dst.Slice(d, d+run), src.Slice(s, s+run))
		return nil
	})
}

// CropChunk returns the block of a decoded chunk selected by sel. Entries
// are offsets within the chunk, which drop the axis, or All, which keeps the
// whole chunk axis. The result is a new C ordered slice of the same type.
func CropChunk(chunk interface{}, chunkShape, sel []int) (interface{}, error) {
	ix, err := newBasicIndexer(sel, chunkShape, chunkShape)
	if err != nil {
		return nil, err
	}
	src := reflect.ValueOf(chunk)
	if src.Kind() != reflect.Slice {
		return nil, fmt.Errorf("chunk is %T, not a slice", chunk)
	}
	if n := product(chunkShape); src.Len() != n {
		return nil, fmt.Errorf("chunk has %d elements, chunk shape %v holds %d", src.Len(), chunkShape, n)
	}

	dst := reflect.MakeSlice(src.Type(), ix.outLen(), ix.outLen())
	outStrides := ix.outStrides()
	srcStrides := rowMajorStrides(chunkShape)
	err = ix.each(func(p chunkProjection) error {
		return copyProjection(dst, src, p, outStrides, srcStrides)
	})
	if err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

func (a *Array) readChunk(ctx context.Context, coords []int) (interface{}, error) {
	chunk, ok, err := a.loadChunk(ctx, coords)
	if err != nil {
		return nil, err
	}
	if !ok {
		if chunk, err = a.meta.Dtype.NewSlice(a.chunkLen()); err != nil {
			return nil, err
		}
		if err := fill(chunk, a.meta.FillValue); err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

// loadChunk reports ok == false when the chunk has never been written.
func (a *Array) loadChunk(ctx context.Context, coords []int) (chunk interface{}, ok bool, err error) {
	key := a.chunkPath(coords).String()
	f, err := a.store.Get(ctx, key)
	if errors.Is(err, ErrNotfound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r, err := a.meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %q: %w", key, err)
	}
	defer r.Close()

	chunk, err = a.meta.Dtype.NewSlice(a.chunkLen())
	if err != nil {
		return nil, false, err
	}
	if err := binary.Read(r, a.meta.Dtype.binaryOrder(), chunk); err != nil {
		return nil, false, fmt.Errorf("decoding chunk %q: %w", key, err)
	}
	return chunk, true, nil
}

func (a *Array) chunkPath(coords []int) Path {
	return a.path.Join(ChunkKey(coords, a.meta.separator()))
}

// Path is a normalized logical path within a store, split on "/".
type Path []string

// NewPath normalizes posix the way zarr requires: backslashes become forward
// slashes, leading, trailing and repeated slashes are dropped. "." and ".."
// segments are rejected.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	var p Path
	for _, seg := range strings.Split(posix, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative segment %q", posix, seg)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return path.Join(p...)
}

// Join returns a new path; p is never modified.
func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	for _, e := range elems {
		for _, seg := range strings.Split(e, "/") {
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}
