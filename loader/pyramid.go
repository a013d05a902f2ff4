package loader

import (
	"fmt"
)

// Source is the array data a Loader reads: either Single or Pyramid.
type Source interface {
	source()
}

// Single is a source with one resolution.
type Single struct {
	Array Array
}

// Pyramid is a source with several resolutions. Levels[0] is full
// resolution and each later level is strictly smaller in x and y.
type Pyramid struct {
	Levels []Array
}

func (Single) source()  {}
func (Pyramid) source() {}

// resolver picks the array for a requested resolution level.
type resolver struct {
	levels  []Array
	pyramid bool
}

func newResolver(src Source) (*resolver, error) {
	switch s := src.(type) {
	case Single:
		if s.Array == nil {
			return nil, fmt.Errorf("loader: nil array")
		}
		return &resolver{levels: []Array{s.Array}}, nil
	case Pyramid:
		if len(s.Levels) == 0 {
			return nil, configErr(ErrPyramidShape, "pyramid has no levels")
		}
		for i, a := range s.Levels {
			if a == nil {
				return nil, fmt.Errorf("loader: nil array at pyramid level %d", i)
			}
		}
		return &resolver{levels: append([]Array(nil), s.Levels...), pyramid: true}, nil
	case nil:
		return nil, fmt.Errorf("loader: nil source")
	default:
		return nil, fmt.Errorf("loader: unsupported source %T", src)
	}
}

// checkLevels verifies that every level is strictly smaller than the one
// before it along both spatial axes.
func (r *resolver) checkLevels(rgb bool) error {
	base := r.levels[0].Shape()
	x, y := spatialAxes(len(base), rgb)
	if y < 0 {
		return configErr(ErrRankMismatch, "shape %v has no spatial axes", base)
	}

	prev := base
	for i := 1; i < len(r.levels); i++ {
		shape := r.levels[i].Shape()
		if len(shape) != len(base) {
			return configErr(ErrPyramidShape, "level %d has rank %d, base has rank %d", i, len(shape), len(base))
		}
		if shape[y] >= prev[y] || shape[x] >= prev[x] {
			return configErr(ErrPyramidShape, "level %d is %dx%d, level %d is %dx%d",
				i, shape[y], shape[x], i-1, prev[y], prev[x])
		}
		prev = shape
	}
	return nil
}

func (r *resolver) isPyramid() bool { return r.pyramid }

func (r *resolver) base() Array { return r.levels[0] }

// resolve returns the array for level. Single sources ignore level.
func (r *resolver) resolve(level int) (Array, error) {
	if !r.pyramid {
		return r.levels[0], nil
	}
	if level < 0 || level >= len(r.levels) {
		return nil, fmt.Errorf("%w: level %d, pyramid has %d levels", ErrLevelOutOfRange, level, len(r.levels))
	}
	return r.levels[level], nil
}

// observedLevel is the level reported to observers: 0 for Single sources,
// which ignore the requested level, and -1 for levels a pyramid lacks.
func (r *resolver) observedLevel(level int) int {
	if !r.pyramid {
		return 0
	}
	if level < 0 || level >= len(r.levels) {
		return -1
	}
	return level
}

// minZoom is the most zoomed-out addressable level.
func (r *resolver) minZoom() int {
	if !r.pyramid {
		return 0
	}
	return -len(r.levels)
}

func (r *resolver) numLevels() int { return len(r.levels) }
