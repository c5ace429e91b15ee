package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk ledger dan endpoint ops.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postings        *prometheus.CounterVec
	voids           *prometheus.CounterVec
	events          *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik ledger.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_total",
		Help: "Jumlah posting jurnal berdasarkan tipe entri dan hasil.",
	}, []string{"entry_type", "outcome"})
	voids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_voids_total",
		Help: "Jumlah void jurnal berdasarkan hasil.",
	}, []string{"outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_events_total",
		Help: "Jumlah event inventori yang diproses berdasarkan tipe dan hasil.",
	}, []string{"event", "outcome"})
	eventDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_inventory_event_duration_seconds",
		Help:    "Durasi pemrosesan event inventori.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})
	registry.MustRegister(requests, duration, postings, voids, events, eventDuration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postings:        postings,
		voids:           voids,
		events:          events,
		eventDuration:   eventDuration,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePosting mencatat hasil satu posting jurnal.
func (m *Metrics) ObservePosting(entryType string, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(entryType, outcome(err)).Inc()
}

// ObserveVoid mencatat hasil satu void jurnal.
func (m *Metrics) ObserveVoid(err error) {
	if m == nil {
		return
	}
	m.voids.WithLabelValues(outcome(err)).Inc()
}

// ObserveEvent mencatat hasil dan durasi satu event inventori.
func (m *Metrics) ObserveEvent(event string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome(err)).Inc()
	m.eventDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
