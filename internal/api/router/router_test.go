package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/skyreply/internal/observability/metrics"
	"github.com/wolfman30/skyreply/pkg/logging"
)

func TestRouterHealthEndpoint(t *testing.T) {
	router := New(&Config{
		Logger: logging.Default(),
		Status: func() map[string]any {
			return map[string]any{"did": "did:plc:bot", "in_flight": 2}
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["did"] != "did:plc:bot" || body["in_flight"] != float64(2) {
		t.Fatalf("unexpected health body: %#v", body)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewAgentMetrics(reg)
	m.ObserveAttempt("done")

	router := New(&Config{MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `skyreply_conversation_attempts_total{outcome="done"} 1`) {
		t.Fatalf("expected attempts counter in output, got:\n%s", rr.Body.String())
	}
}

func TestRouterWithoutMetrics(t *testing.T) {
	router := New(&Config{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics disabled, got %d", rr.Code)
	}
}
