package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/fragments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/fragments/{id}", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/fragments/abc", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/fragments/def", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/fragments/{id}", "404"))

	if after-before != 2 {
		t.Errorf("expected 2 requests under the pattern label, got %v", after-before)
	}
}

func TestRecordConversion(t *testing.T) {
	c := conversionsTotal.WithLabelValues("text/markdown", "text/html", "error")
	before := testutil.ToFloat64(c)
	RecordConversion("text/markdown", "text/html", time.Millisecond, false)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("error counter moved by %v, want 1", got)
	}
}
