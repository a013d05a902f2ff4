package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/qri-io/zarr-loader/loader"
)

var _ loader.Observer = (*Retrieval)(nil)

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(BuildInfo{Version: "test", Revision: "r", BuildDate: "now"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `app_build_info{`) {
		t.Fatalf("expected app_build_info in payload; got:\n%s", body)
	}
}

func TestRetrieval_CountsByOutcome(t *testing.T) {
	p := Init(BuildInfo{})
	r := NewRetrieval(p.Registerer())

	r.ObserveRetrieval("tile", 0, 3, 2*time.Millisecond, nil)
	r.ObserveRetrieval("tile", 0, 3, 2*time.Millisecond, nil)
	r.ObserveRetrieval("raster", 1, 1, 40*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(r.requests.WithLabelValues("tile", "0", "ok")); got != 2 {
		t.Fatalf("tile ok count=%v want 2", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("raster", "1", "error")); got != 1 {
		t.Fatalf("raster error count=%v want 1", got)
	}
	if n := testutil.CollectAndCount(r.duration); n != 2 {
		t.Fatalf("expected 2 duration series, got %d", n)
	}
}

func TestRetrieval_OutOfRangeLevelsShareOneSeries(t *testing.T) {
	p := Init(BuildInfo{})
	r := NewRetrieval(p.Registerer())

	for i := 0; i < 50; i++ {
		r.ObserveRetrieval("tile", -1, 1, time.Millisecond, errors.New("no such level"))
	}
	r.ObserveRetrieval("tile", 0, 1, time.Millisecond, nil)

	if n := testutil.CollectAndCount(r.requests); n != 2 {
		t.Fatalf("expected 2 request series, got %d", n)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("tile", "invalid", "error")); got != 50 {
		t.Fatalf("invalid level count=%v want 50", got)
	}
}
