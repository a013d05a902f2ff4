// Package loader gives rendering code tile and raster access to chunked,
// optionally multi-resolution image arrays, one buffer per selected channel.
//
// A Loader is safe for concurrent use. SetChannelSelections swaps the whole
// channel set at once; requests already running keep the set they started
// with.
package loader

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Array is the chunked array a Loader reads from. *zarr.Array implements it.
type Array interface {
	Shape() []int
	Chunks() []int
	Dtype() string
	// RetrieveChunk decodes the chunk at the given chunk coordinates.
	RetrieveChunk(ctx context.Context, coords []int) (interface{}, error)
	// RetrieveFullPlane decodes every element matched by sel, where
	// zarr.All (-1) keeps a whole axis and other entries are element indices.
	RetrieveFullPlane(ctx context.Context, sel []int) (interface{}, error)
}

// Metadata describes the base resolution of a source for tiled rendering.
type Metadata struct {
	ImageWidth  int        `json:"imageWidth"`
	ImageHeight int        `json:"imageHeight"`
	TileSize    int        `json:"tileSize"`
	MinZoom     int        `json:"minZoom"`
	Dtype       string     `json:"dtype"`
	Scale       float64    `json:"scale"`
	Translate   [2]float64 `json:"translate"`
}

// Loader serves tiles and rasters of one Source for a swappable channel set.
type Loader struct {
	res  *resolver
	dims dimensionSet
	rgb  bool
	norm normalizer

	// x and y are the spatial axis positions.
	x, y int

	scale     float64
	translate [2]float64

	// selections holds the committed channel set. It is replaced, never
	// mutated.
	selections atomic.Pointer[[][]int]

	log zerolog.Logger
	obs Observer
}

// New validates src and the options and returns a Loader whose channel set
// is a single all-zero selection.
func New(src Source, opts ...Option) (*Loader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	res, err := newResolver(src)
	if err != nil {
		return nil, err
	}
	shape := res.base().Shape()

	rgb := DetectRGB(shape)
	if o.rgb != nil {
		rgb = *o.rgb
	}
	if err := res.checkLevels(rgb); err != nil {
		return nil, err
	}

	dims, err := validateDimensions(o.dims, len(shape))
	if err != nil {
		return nil, err
	}

	l := &Loader{
		res:       res,
		dims:      dims,
		rgb:       rgb,
		norm:      normalizer{rank: len(shape), dims: dims, rgb: rgb},
		scale:     o.scale,
		translate: o.translate,
		log:       o.log,
		obs:       o.observer,
	}
	l.x, l.y = spatialAxes(len(shape), rgb)

	initial := [][]int{make([]int, len(shape))}
	l.selections.Store(&initial)

	l.log.Debug().
		Ints("shape", shape).
		Bool("rgb", rgb).
		Bool("pyramid", res.isPyramid()).
		Int("levels", res.numLevels()).
		Msg("loader ready")
	return l, nil
}

// SetChannelSelections replaces the channel set. Either every selection is
// valid and the set is replaced in the order given, or a ConfigurationError
// is returned and the previous set stays active.
func (l *Loader) SetChannelSelections(sels ...Selection) error {
	next, err := l.norm.normalize(sels)
	if err != nil {
		l.log.Debug().Err(err).Int("selections", len(sels)).Msg("channel selections rejected")
		return err
	}
	l.selections.Store(&next)
	l.log.Debug().Int("selections", len(next)).Msg("channel selections committed")
	return nil
}

// ChannelSelections returns a copy of the committed channel set.
func (l *Loader) ChannelSelections() [][]int {
	return copySelections(*l.selections.Load())
}

func (l *Loader) IsRGB() bool { return l.rgb }

func (l *Loader) IsPyramid() bool { return l.res.isPyramid() }

// Dimensions returns the configured dimensions, or nil if none were given.
func (l *Loader) Dimensions() []Dimension {
	if l.dims == nil {
		return nil
	}
	out := make([]Dimension, len(l.dims))
	for i, d := range l.dims {
		d.Categories = append([]string(nil), d.Categories...)
		if d.Unit != nil {
			u := *d.Unit
			d.Unit = &u
		}
		out[i] = d
	}
	return out
}

// NumLevels is the number of resolution levels, 1 for a Single source.
func (l *Loader) NumLevels() int { return l.res.numLevels() }

// Metadata describes the full resolution level.
func (l *Loader) Metadata() Metadata {
	base := l.res.base()
	shape, chunks := base.Shape(), base.Chunks()
	return Metadata{
		ImageWidth:  shape[l.x],
		ImageHeight: shape[l.y],
		TileSize:    chunks[l.x],
		MinZoom:     l.res.minZoom(),
		Dtype:       base.Dtype(),
		Scale:       l.scale,
		Translate:   l.translate,
	}
}

func copySelections(sels [][]int) [][]int {
	out := make([][]int, len(sels))
	for i, s := range sels {
		out[i] = append([]int(nil), s...)
	}
	return out
}
