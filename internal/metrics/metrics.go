// Package metrics exposes Prometheus metrics for the tile server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

func Init(build BuildInfo) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bi := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "build_date"},
	)
	reg.MustRegister(bi)
	if build.Version == "" {
		build.Version = "dev"
	}
	bi.WithLabelValues(build.Version, build.Revision, build.BuildDate).Set(1)

	return &Provider{reg: reg, buildInfo: bi}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Retrieval records loader tile and raster requests. It satisfies
// loader.Observer.
type Retrieval struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	channels *prometheus.HistogramVec
}

func NewRetrieval(reg prometheus.Registerer) *Retrieval {
	r := &Retrieval{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loader_retrievals_total",
				Help: "Tile and raster retrievals by outcome.",
			},
			[]string{"op", "level", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loader_retrieval_duration_seconds",
				Help:    "Duration of tile and raster retrievals in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"op", "level"},
		),
		channels: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loader_retrieval_channels",
				Help:    "Channels fetched concurrently per retrieval.",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 16},
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(r.requests, r.duration, r.channels)
	return r
}

// ObserveRetrieval records one retrieval. Negative levels share the
// "invalid" label.
func (r *Retrieval) ObserveRetrieval(op string, level, channels int, elapsed time.Duration, err error) {
	lv := "invalid"
	if level >= 0 {
		lv = strconv.Itoa(level)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.requests.WithLabelValues(op, lv, outcome).Inc()
	r.duration.WithLabelValues(op, lv).Observe(elapsed.Seconds())
	r.channels.WithLabelValues(op).Observe(float64(channels))
}
