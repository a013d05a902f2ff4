package loader

import (
	"context"
	"fmt"
	"time"

	zarr "github.com/qri-io/zarr-loader"
	"golang.org/x/sync/errgroup"
)

// Raster is a full decoded plane per channel.
type Raster struct {
	Data   []interface{}
	Width  int
	Height int
}

// GetTile decodes the tile at column x and row y of the given level for
// every channel in the current set. Non-spatial selection entries are element
// indices; each buffer holds one chunk's y/x block of that element (with the
// color axis kept for RGB sources). Buffers come back in channel-set order.
// Level is ignored for Single sources.
func (l *Loader) GetTile(ctx context.Context, x, y, level int) ([]interface{}, error) {
	start := time.Now()
	sels := *l.selections.Load()

	data, err := l.getTile(ctx, sels, x, y, level)
	l.observe("tile", l.res.observedLevel(level), len(sels), start, err)
	if err != nil {
		l.log.Warn().Err(err).Int("x", x).Int("y", y).Int("level", level).Msg("tile retrieval failed")
		return nil, err
	}
	return data, nil
}

func (l *Loader) getTile(ctx context.Context, sels [][]int, x, y, level int) ([]interface{}, error) {
	src, err := l.res.resolve(level)
	if err != nil {
		return nil, err
	}
	chunks := src.Chunks()
	keys, crop, err := l.tileKeys(sels, src.Shape(), chunks, x, y)
	if err != nil {
		return nil, err
	}
	return dispatch(ctx, keys, func(ctx context.Context, k tileKey) (interface{}, error) {
		chunk, err := src.RetrieveChunk(ctx, k.coords)
		if err != nil || !crop {
			return chunk, err
		}
		return zarr.CropChunk(chunk, chunks, k.offsets)
	})
}

// tileKey addresses one channel of a tile: the chunk to decode and the
// in-chunk offsets to crop it to, with zarr.All on the kept axes.
type tileKey struct {
	coords  []int
	offsets []int
}

// tileKeys maps element selections onto chunk coordinates. crop is false
// when every dropped axis has chunk extent 1, so whole chunks are the answer.
func (l *Loader) tileKeys(sels [][]int, shape, chunks []int, x, y int) (keys []tileKey, crop bool, err error) {
	keys = make([]tileKey, len(sels))
	for i, s := range sels {
		k := tileKey{coords: make([]int, len(s)), offsets: make([]int, len(s))}
		for ax, v := range s {
			switch {
			case ax == l.y:
				k.coords[ax], k.offsets[ax] = y, zarr.All
			case ax == l.x:
				k.coords[ax], k.offsets[ax] = x, zarr.All
			case l.rgb && ax == len(s)-1:
				k.coords[ax], k.offsets[ax] = v/chunks[ax], zarr.All
			default:
				if v >= shape[ax] {
					return nil, false, fmt.Errorf("%w: index %d on axis %d with size %d", zarr.ErrOutOfBounds, v, ax, shape[ax])
				}
				k.coords[ax], k.offsets[ax] = v/chunks[ax], v%chunks[ax]
				if chunks[ax] > 1 {
					crop = true
				}
			}
		}
		keys[i] = k
	}
	return keys, crop, nil
}

// GetRaster decodes the whole x/y plane of the given level for every channel
// in the current set. For RGB sources each plane keeps its color axis
// interleaved.
func (l *Loader) GetRaster(ctx context.Context, level int) (Raster, error) {
	start := time.Now()
	sels := *l.selections.Load()

	r, err := l.getRaster(ctx, sels, level)
	l.observe("raster", l.res.observedLevel(level), len(sels), start, err)
	if err != nil {
		l.log.Warn().Err(err).Int("level", level).Msg("raster retrieval failed")
		return Raster{}, err
	}
	return r, nil
}

func (l *Loader) getRaster(ctx context.Context, sels [][]int, level int) (Raster, error) {
	src, err := l.res.resolve(level)
	if err != nil {
		return Raster{}, err
	}
	shape := src.Shape()
	keys := l.pin(sels, func(v []int) {
		v[l.y] = zarr.All
		v[l.x] = zarr.All
		if l.rgb {
			v[len(v)-1] = zarr.All
		}
	})
	data, err := dispatch(ctx, keys, src.RetrieveFullPlane)
	if err != nil {
		return Raster{}, err
	}
	return Raster{Data: data, Width: shape[l.x], Height: shape[l.y]}, nil
}

// pin copies every selection and applies set to the copy. The committed
// vectors are never written to.
func (l *Loader) pin(sels [][]int, set func(v []int)) [][]int {
	keys := copySelections(sels)
	for _, k := range keys {
		set(k)
	}
	return keys
}

// dispatch runs fetch for every key concurrently and returns the results in
// key order. The first error cancels the rest and is returned as is.
func dispatch[K any](ctx context.Context, keys []K, fetch func(context.Context, K) (interface{}, error)) ([]interface{}, error) {
	out := make([]interface{}, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			buf, err := fetch(gctx, k)
			if err != nil {
				return err
			}
			out[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) observe(op string, level, channels int, start time.Time, err error) {
	if l.obs == nil {
		return
	}
	l.obs.ObserveRetrieval(op, level, channels, time.Since(start), err)
}
