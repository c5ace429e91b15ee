package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestLedgerCountersExposed(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("SALE", nil)
	metrics.ObservePosting("SALE", errors.New("boom"))
	metrics.ObserveVoid(nil)
	metrics.ObserveEvent("PURCHASE", time.Now(), nil)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_ledger_postings_total{entry_type="SALE",outcome="success"} 1`)
	require.Contains(t, body, `odyssey_ledger_postings_total{entry_type="SALE",outcome="failure"} 1`)
	require.Contains(t, body, `odyssey_ledger_voids_total{outcome="success"} 1`)
	require.Contains(t, body, `odyssey_inventory_events_total{event="PURCHASE",outcome="success"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePosting("SALE", nil)
	metrics.ObserveEvent("SALE", time.Now(), nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/healthz")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.True(t, strings.Contains(body, `odyssey_http_requests_total{code="418",route="/healthz"} 1`), body)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/healthz"`)
}
