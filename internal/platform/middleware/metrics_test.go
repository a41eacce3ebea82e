package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_CountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/treatments/:id", okHandler)
	e.GET("/fail", func(echo.Context) error { return errors.New("boom") })
	e.GET("/metrics", MetricsHandler(reg))

	for _, path := range []string{"/api/v1/treatments/a", "/api/v1/treatments/b", "/fail"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/treatments/:id", "200")); got != 2 {
		t.Errorf("expected 2 treatment requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/fail", "500")); got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Errorf("expected no requests in flight, got %v", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `oncontrol_http_requests_total{method="GET",route="/api/v1/treatments/:id",status="200"} 2`) {
		t.Errorf("exposition missing request counter:\n%s", rec.Body.String())
	}
}

func TestNewHTTPMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewHTTPMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewHTTPMetrics(reg)
}
