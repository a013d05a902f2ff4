package loader

// Selection is one requested channel: either a full numeric index vector or
// a set of dimension labels. Build one with Indices or Labels.
type Selection struct {
	indices []int
	labels  []Label
	labeled bool
}

// Indices selects a channel by its per-axis index vector. The vector must
// have one entry per array axis. Entries at the spatial axes are placeholders
// and are replaced on every tile or raster request.
func Indices(v ...int) Selection {
	return Selection{indices: append([]int(nil), v...)}
}

// Labels selects a channel by dimension labels. Axes no label mentions
// default to index 0.
func Labels(l ...Label) Selection {
	return Selection{labels: append([]Label(nil), l...), labeled: true}
}

// IsLabeled reports whether s was built from labels.
func (s Selection) IsLabeled() bool { return s.labeled }

// normalizer turns selections into committed index vectors for one array.
type normalizer struct {
	rank int
	dims dimensionSet
	rgb  bool
}

// normalize validates the whole batch before returning anything, so a
// failure anywhere leaves the caller free to keep its previous channel set.
func (n normalizer) normalize(sels []Selection) ([][]int, error) {
	if len(sels) == 0 {
		return nil, configErr(ErrSelectionShape, "no selections given")
	}
	if n.rgb && len(sels) > 1 {
		return nil, configErr(ErrRGBMultiplicity, "got %d selections", len(sels))
	}

	out := make([][]int, len(sels))
	for i, s := range sels {
		v, err := n.one(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n normalizer) one(s Selection) ([]int, error) {
	if !s.labeled {
		if len(s.indices) != n.rank {
			return nil, configErr(ErrSelectionShape, "selection %v has %d entries, array rank is %d", s.indices, len(s.indices), n.rank)
		}
		for _, v := range s.indices {
			if v < 0 {
				return nil, configErr(ErrSelectionShape, "selection %v has a negative index", s.indices)
			}
		}
		return append([]int(nil), s.indices...), nil
	}

	if n.dims == nil {
		return nil, configErr(ErrUnlabeled, "label selections need configured dimensions")
	}
	v := make([]int, n.rank)
	set := make([]bool, n.rank)
	for _, l := range s.labels {
		axis, index, err := n.dims.resolve(l)
		if err != nil {
			return nil, err
		}
		if set[axis] {
			return nil, configErr(ErrSelectionShape, "dimension %q labeled twice", n.dims[axis].ID)
		}
		set[axis] = true
		v[axis] = index
	}
	return v, nil
}
