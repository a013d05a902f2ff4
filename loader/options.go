package loader

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Loader.
type Option func(*options)

// Observer receives one call per finished GetTile or GetRaster. op is
// "tile" or "raster"; err is nil on success. level is the level actually
// read: 0 for Single sources and -1 when a pyramid has no such level.
type Observer interface {
	ObserveRetrieval(op string, level, channels int, elapsed time.Duration, err error)
}

type options struct {
	dims      []Dimension
	rgb       *bool
	scale     float64
	translate [2]float64
	log       zerolog.Logger
	observer  Observer
}

func defaultOptions() *options {
	return &options{
		scale: 1,
		log:   zerolog.Nop(),
	}
}

// WithDimensions labels the array axes, one Dimension per axis in order.
func WithDimensions(dims ...Dimension) Option {
	return func(o *options) {
		if len(dims) == 0 {
			o.dims = nil
			return
		}
		o.dims = append([]Dimension{}, dims...)
	}
}

// WithRGB overrides color detection.
func WithRGB(rgb bool) Option {
	return func(o *options) {
		o.rgb = &rgb
	}
}

// WithScale sets the physical scale reported in Metadata.
func WithScale(scale float64) Option {
	return func(o *options) {
		o.scale = scale
	}
}

// WithTranslate sets the physical offset reported in Metadata.
func WithTranslate(x, y float64) Option {
	return func(o *options) {
		o.translate = [2]float64{x, y}
	}
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithObserver reports every tile and raster retrieval to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
