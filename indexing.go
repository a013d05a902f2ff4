package zarr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// All selects every element along an axis in RetrieveFullPlane.
const All = -1

// ErrOutOfBounds is returned (wrapped) for chunk coordinates or element
// indices outside an array.
var ErrOutOfBounds = errors.New("out of bounds")

// GridShape returns the number of chunks along each axis,
// ceil(shape[i] / chunks[i]).
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey joins chunk coordinates with sep, e.g. [1 4] -> "1.4".
func ChunkKey(coords []int, sep string) string {
	if len(coords) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, c := range coords {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

type chunkDimProjection struct {
	// Index of chunk.
	DimChunkIX int
	// Selection of items from chunk array, [DimChunkLo, DimChunkHi).
	DimChunkLo int
	DimChunkHi int
	// Position of DimChunkLo in target (output) array. Unused for dropped axes.
	DimOutSel int
}

type dimIndexer interface {
	projections() []chunkDimProjection
	// kept reports whether the axis survives into the output.
	kept() bool
}

// IntDimIndexer selects a single item along an axis; the axis is dropped from
// the output.
type IntDimIndexer struct {
	Sel         int
	DimChunkLen int
}

func (ix IntDimIndexer) projections() []chunkDimProjection {
	c := ix.Sel / ix.DimChunkLen
	lo := ix.Sel - c*ix.DimChunkLen
	return []chunkDimProjection{{DimChunkIX: c, DimChunkLo: lo, DimChunkHi: lo + 1}}
}

func (IntDimIndexer) kept() bool { return false }

// SliceDimIndexer selects a whole axis, one projection per chunk. The last
// chunk is cropped to the axis length.
type SliceDimIndexer struct {
	DimLen      int
	DimChunkLen int
}

func (ix SliceDimIndexer) projections() []chunkDimProjection {
	n := (ix.DimLen + ix.DimChunkLen - 1) / ix.DimChunkLen
	ps := make([]chunkDimProjection, 0, n)
	for c := 0; c < n; c++ {
		start := c * ix.DimChunkLen
		hi := ix.DimChunkLen
		if rest := ix.DimLen - start; rest < hi {
			hi = rest
		}
		ps = append(ps, chunkDimProjection{DimChunkIX: c, DimChunkLo: 0, DimChunkHi: hi, DimOutSel: start})
	}
	return ps
}

func (SliceDimIndexer) kept() bool { return true }

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// Per-axis selection within the chunk and placement in the output.
	Dims []chunkDimProjection
}

// basicIndexer turns a selection of concrete indices and All markers into
// per-axis indexers.
type basicIndexer struct {
	dims     []dimIndexer
	outShape []int
}

func newBasicIndexer(sel, shape, chunks []int) (*basicIndexer, error) {
	if len(sel) != len(shape) {
		return nil, fmt.Errorf("selection %v has %d axes, array has %d", sel, len(sel), len(shape))
	}
	bi := &basicIndexer{dims: make([]dimIndexer, len(sel))}
	for i, s := range sel {
		switch {
		case s == All:
			bi.dims[i] = SliceDimIndexer{DimLen: shape[i], DimChunkLen: chunks[i]}
			bi.outShape = append(bi.outShape, shape[i])
		case s >= 0 && s < shape[i]:
			bi.dims[i] = IntDimIndexer{Sel: s, DimChunkLen: chunks[i]}
		default:
			return nil, fmt.Errorf("%w: index %d on axis %d with size %d", ErrOutOfBounds, s, i, shape[i])
		}
	}
	return bi, nil
}

// outStrides returns row-major strides of the output indexed by array axis.
// Dropped axes get stride 0.
func (bi *basicIndexer) outStrides() []int {
	strides := make([]int, len(bi.dims))
	stride := 1
	j := len(bi.outShape) - 1
	for i := len(bi.dims) - 1; i >= 0; i-- {
		if bi.dims[i].kept() {
			strides[i] = stride
			stride *= bi.outShape[j]
			j--
		}
	}
	return strides
}

func (bi *basicIndexer) outLen() int {
	n := 1
	for _, s := range bi.outShape {
		n *= s
	}
	return n
}

// each calls fn for every chunk touched by the selection, in row-major chunk
// order.
func (bi *basicIndexer) each(fn func(p chunkProjection) error) error {
	per := make([][]chunkDimProjection, len(bi.dims))
	lo := make([]int, len(bi.dims))
	hi := make([]int, len(bi.dims))
	for i, d := range bi.dims {
		per[i] = d.projections()
		hi[i] = len(per[i])
	}
	return forEachIndex(lo, hi, func(idx []int) error {
		p := chunkProjection{
			ChunkCoords: make([]int, len(idx)),
			Dims:        make([]chunkDimProjection, len(idx)),
		}
		for i, k := range idx {
			p.Dims[i] = per[i][k]
			p.ChunkCoords[i] = per[i][k].DimChunkIX
		}
		return fn(p)
	})
}

// forEachIndex visits every multi-index in the box [lo, hi) in row-major
// order. An empty box of rank zero is visited once. The idx slice is reused
// between calls.
func forEachIndex(lo, hi []int, fn func(idx []int) error) error {
	for i := range lo {
		if hi[i] <= lo[i] {
			return nil
		}
	}
	idx := make([]int, len(lo))
	copy(idx, lo)
	for {
		if err := fn(idx); err != nil {
			return err
		}
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < hi[i] {
				break
			}
			idx[i] = lo[i]
		}
		if i < 0 {
			return nil
		}
	}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// rowMajorStrides returns the element strides of a C-ordered block.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
