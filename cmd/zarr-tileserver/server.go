package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	zarr "github.com/qri-io/zarr-loader"
	"github.com/qri-io/zarr-loader/internal/logger"
	"github.com/qri-io/zarr-loader/loader"
)

// maxSelectionsBody bounds PUT /selections payloads.
const maxSelectionsBody = 1 << 20

type server struct {
	ld      *loader.Loader
	log     *zerolog.Logger
	timeout time.Duration
}

type metadataResponse struct {
	loader.Metadata
	IsRGB             bool               `json:"isRgb"`
	IsPyramid         bool               `json:"isPyramid"`
	Levels            int                `json:"levels"`
	Dimensions        []loader.Dimension `json:"dimensions,omitempty"`
	ChannelSelections [][]int            `json:"channelSelections"`
}

func newRouter(s *server, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.Get("/metadata", s.handleMetadata)
	r.Put("/selections", s.handleSelections)
	r.Get("/tile/{level}/{x}/{y}", s.handleTile)
	r.Get("/raster/{level}", s.handleRaster)
	return r
}

func (s *server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.FromContext(ctx, s.log).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *server) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metadataResponse{
		Metadata:          s.ld.Metadata(),
		IsRGB:             s.ld.IsRGB(),
		IsPyramid:         s.ld.IsPyramid(),
		Levels:            s.ld.NumLevels(),
		Dimensions:        s.ld.Dimensions(),
		ChannelSelections: s.ld.ChannelSelections(),
	})
}

func (s *server) handleSelections(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSelectionsBody)).Decode(&raw); err != nil {
		http.Error(w, fmt.Sprintf("invalid selections body: %v", err), http.StatusBadRequest)
		return
	}
	sels, err := parseSelections(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ld.SetChannelSelections(sels...); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ld.ChannelSelections())
}

// parseSelections accepts a list of selections or a single one. A selection
// is either a numeric index vector or a list of {"dimension", "axis",
// "value"} labels.
func parseSelections(raw json.RawMessage) ([]loader.Selection, error) {
	if sel, ok := parseSelection(raw); ok {
		return []loader.Selection{sel}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("selections must be a JSON array")
	}
	sels := make([]loader.Selection, 0, len(list))
	for i, m := range list {
		sel, ok := parseSelection(m)
		if !ok {
			return nil, fmt.Errorf("selection %d: expected an index vector or a list of labels", i)
		}
		sels = append(sels, sel)
	}
	return sels, nil
}

func parseSelection(m json.RawMessage) (loader.Selection, bool) {
	var idx []int
	if err := json.Unmarshal(m, &idx); err == nil {
		return loader.Indices(idx...), true
	}
	var labels []loader.Label
	if err := json.Unmarshal(m, &labels); err == nil {
		return loader.Labels(labels...), true
	}
	return loader.Selection{}, false
}

func (s *server) handleTile(w http.ResponseWriter, r *http.Request) {
	level, err1 := strconv.Atoi(chi.URLParam(r, "level"))
	x, err2 := strconv.Atoi(chi.URLParam(r, "x"))
	y, err3 := strconv.Atoi(chi.URLParam(r, "y"))
	if err := errors.Join(err1, err2, err3); err != nil {
		http.Error(w, "level, x and y must be integers", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	data, err := s.ld.GetTile(ctx, x, y, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBuffers(w, r, data, nil)
}

func (s *server) handleRaster(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		http.Error(w, "level must be an integer", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	raster, err := s.ld.GetRaster(ctx, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBuffers(w, r, raster.Data, map[string]string{
		"X-Width":  strconv.Itoa(raster.Width),
		"X-Height": strconv.Itoa(raster.Height),
	})
}

// writeBuffers concatenates the channel buffers as little-endian values. The
// ETag is the xxhash of the body, so unchanged tiles answer 304.
func (s *server) writeBuffers(w http.ResponseWriter, r *http.Request, data []interface{}, headers map[string]string) {
	body := &bytes.Buffer{}
	for _, b := range data {
		if err := binary.Write(body, binary.LittleEndian, b); err != nil {
			s.writeError(w, r, fmt.Errorf("encoding buffer: %w", err))
			return
		}
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body.Bytes()))
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("X-Channels", strconv.Itoa(len(data)))
	h.Set("X-Dtype", s.ld.Metadata().Dtype)
	for k, v := range headers {
		h.Set(k, v)
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case loader.IsConfigurationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, loader.ErrLevelOutOfRange), errors.Is(err, zarr.ErrOutOfBounds):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
