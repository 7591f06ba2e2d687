package ops

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.PassesTotal.Inc()
	m.ProcessedTotal.Add(3)

	s := NewServer(":0", reg)

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "ok" {
		t.Errorf("healthz body = %q", body)
	}

	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "coown_materializer_passes_total 1") {
		t.Errorf("metrics missing pass counter:\n%s", body)
	}
	if !strings.Contains(body, "coown_materializer_templates_processed_total 3") {
		t.Errorf("metrics missing processed counter:\n%s", body)
	}
}
