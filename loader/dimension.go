package loader

import (
	"fmt"
)

// Kind classifies a dimension.
type Kind string

const (
	Nominal      Kind = "nominal"
	Ordinal      Kind = "ordinal"
	Quantitative Kind = "quantitative"
)

// Unit is the physical unit of a quantitative dimension.
type Unit struct {
	Magnitude float64 `json:"magnitude"`
	Label     string  `json:"label"`
}

// Dimension names one array axis. Nominal and ordinal dimensions list their
// category labels; quantitative dimensions carry a unit.
type Dimension struct {
	ID         string   `json:"id"`
	Kind       Kind     `json:"kind"`
	Categories []string `json:"categories,omitempty"`
	Unit       *Unit    `json:"unit,omitempty"`
}

func (d Dimension) categorical() bool {
	return d.Kind == Nominal || d.Kind == Ordinal
}

// Label pins one dimension to a value. The dimension is addressed by ID, or
// by axis position when Dimension is empty. Value is a category label
// (string) or an integer index.
type Label struct {
	Dimension string      `json:"dimension,omitempty"`
	Axis      int         `json:"axis,omitempty"`
	Value     interface{} `json:"value"`
}

type dimensionSet []Dimension

func validateDimensions(dims []Dimension, rank int) (dimensionSet, error) {
	if dims == nil {
		return nil, nil
	}
	if len(dims) != rank {
		return nil, configErr(ErrRankMismatch, "got %d dimensions for an array of rank %d", len(dims), rank)
	}
	seen := make(map[string]struct{}, len(dims))
	out := make(dimensionSet, len(dims))
	for i, d := range dims {
		switch d.Kind {
		case Nominal, Ordinal, Quantitative:
		default:
			return nil, configErr(ErrDimension, "dimension %d (%q) has unknown kind %q", i, d.ID, d.Kind)
		}
		if d.ID != "" {
			if _, dup := seen[d.ID]; dup {
				return nil, configErr(ErrDimension, "duplicate dimension id %q", d.ID)
			}
			seen[d.ID] = struct{}{}
		}
		d.Categories = append([]string(nil), d.Categories...)
		if d.Unit != nil {
			u := *d.Unit
			d.Unit = &u
		}
		out[i] = d
	}
	return out, nil
}

// axis finds the position of the dimension a label refers to.
func (ds dimensionSet) axis(l Label) (int, error) {
	if l.Dimension == "" {
		if l.Axis < 0 || l.Axis >= len(ds) {
			return 0, configErr(ErrUnresolvedLabel, "axis %d out of range for %d dimensions", l.Axis, len(ds))
		}
		return l.Axis, nil
	}
	for i, d := range ds {
		if d.ID == l.Dimension {
			return i, nil
		}
	}
	return 0, configErr(ErrUnresolvedLabel, "no dimension %q", l.Dimension)
}

// resolve maps a label to its axis and the concrete index along that axis.
func (ds dimensionSet) resolve(l Label) (axis, index int, err error) {
	if axis, err = ds.axis(l); err != nil {
		return 0, 0, err
	}
	d := ds[axis]

	if s, ok := l.Value.(string); ok {
		if !d.categorical() {
			return 0, 0, configErr(ErrSelectionShape, "%s dimension %q takes a numeric index, got %q", d.Kind, d.ID, s)
		}
		for i, c := range d.Categories {
			if c == s {
				return axis, i, nil
			}
		}
		return 0, 0, configErr(ErrUnresolvedLabel, "%q is not a category of dimension %q", s, d.ID)
	}

	index, err = toIndex(l.Value)
	if err != nil {
		return 0, 0, configErr(ErrSelectionShape, "dimension %q: %s", d.ID, err)
	}
	if d.categorical() && len(d.Categories) > 0 && index >= len(d.Categories) {
		return 0, 0, configErr(ErrUnresolvedLabel, "category index %d out of range for dimension %q with %d categories", index, d.ID, len(d.Categories))
	}
	return axis, index, nil
}

// toIndex accepts any Go integer, and floats that hold whole numbers (which
// is what JSON decoding produces).
func toIndex(v interface{}) (int, error) {
	var i int
	switch x := v.(type) {
	case int:
		i = x
	case int8:
		i = int(x)
	case int16:
		i = int(x)
	case int32:
		i = int(x)
	case int64:
		i = int(x)
	case uint:
		i = int(x)
	case uint8:
		i = int(x)
	case uint16:
		i = int(x)
	case uint32:
		i = int(x)
	case uint64:
		i = int(x)
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("index %v is not a whole number", x)
		}
		i = int(x)
	default:
		return 0, fmt.Errorf("unsupported index value %v (%T)", v, v)
	}
	if i < 0 {
		return 0, fmt.Errorf("negative index %d", i)
	}
	return i, nil
}
