package zarr

import (
	"encoding/json"
	"fmt"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
)

// Attributes is the free-form JSON object stored under ".zattrs".
type Attributes map[string]interface{}

// Multiscales decodes the OME-NGFF "multiscales" attribute. It returns nil
// when the attribute is absent.
func (a Attributes) Multiscales() ([]Multiscale, error) {
	v, ok := a["multiscales"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var ms []Multiscale
	if err := json.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("invalid multiscales attribute: %w", err)
	}
	return ms, nil
}

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group metadata under the ".zgroup" key under
// some logical path.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

// Multiscale is one entry of the OME-NGFF "multiscales" attribute. Datasets
// are listed from highest to lowest resolution.
type Multiscale struct {
	Name     string              `json:"name,omitempty"`
	Version  string              `json:"version,omitempty"`
	Datasets []MultiscaleDataset `json:"datasets"`
}

type MultiscaleDataset struct {
	Path string `json:"path"`
}

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// “.zarray” key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. All chunks within an array have the same shape; chunks on the
	// upper edge of an axis are padded.
	Chunks []int `json:"chunks"`
	// The element type. Structured dtypes are rejected when decoding.
	Dtype Dtype `json:"dtype"`
	// Primary compression codec, or null if chunks are stored raw.
	Compressor *CompressionMeta `json:"compressor"`
	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	FillValue interface{} `json:"fill_value"`
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. Only “C” (row-major) chunks can be read.
	Order string `json:"order"`
	// Codec configurations applied before the compressor. Filtered arrays
	// can't be read.
	Filters []Filter `json:"filters"`

	// optional fields

	// Either "." or "/", the separator placed between the dimensions of a
	// chunk key. Defaults to ".", giving keys of the form “0.0”.
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

// Validate checks that m describes an array this package can read.
func (m *ArrayMeta) Validate() error {
	if len(m.Shape) == 0 {
		return fmt.Errorf("invalid array metadata: zero-dimensional arrays are not supported")
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("invalid array metadata: chunks %v do not match shape %v", m.Chunks, m.Shape)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 {
			return fmt.Errorf("invalid array metadata: negative extent %d on axis %d", m.Shape[i], i)
		}
		if m.Chunks[i] <= 0 {
			return fmt.Errorf("invalid array metadata: chunk extent %d on axis %d", m.Chunks[i], i)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("invalid array metadata: unsupported chunk order %q", m.Order)
	}
	if len(m.Filters) > 0 {
		return fmt.Errorf("invalid array metadata: filters are not supported")
	}
	switch m.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("invalid array metadata: dimension separator %q", m.DimensionSeparator)
	}
	if _, err := m.Dtype.NewSlice(0); err != nil {
		return fmt.Errorf("invalid array metadata: %w", err)
	}
	return nil
}

func (m *ArrayMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

type Filter struct {
	ID     string `json:"id"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)
