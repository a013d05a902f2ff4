package zarr

import (
	"io"

	"github.com/qri-io/dataset/compression"
)

// CompressionMeta defines compression settings zarr-go understands
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// IsNone reports whether chunks are stored raw. A JSON null compressor
// decodes to the zero value.
func (m *CompressionMeta) IsNone() bool {
	return m == nil || m.ID == ""
}

func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	if m.IsNone() {
		return r, nil
	}
	return compression.Decompressor(codecFormat(m.ID), r)
}

// numcodecs ids don't always match the format names used by the compression
// package.
func codecFormat(id string) string {
	switch id {
	case "zstd":
		return "zst"
	default:
		return id
	}
}
