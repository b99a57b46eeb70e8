package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidemarket/escrow/internal/model"
)

// Registry bundles the marketplace collectors behind a private Prometheus
// registry so the exposition endpoint carries only our metrics.
type Registry struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	streamClients prometheus.Gauge

	activeListings      prometheus.Gauge
	sales               prometheus.Gauge
	volume              prometheus.Gauge
	proceedsOutstanding prometheus.Gauge
}

// NewRegistry creates and registers all marketplace collectors.
func NewRegistry() *Registry {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operations_total",
		Help: "Engine operations by name and outcome",
	}, []string{"op", "outcome"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	streamClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_stream_clients",
		Help: "Connected event stream clients",
	})

	activeListings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_active_listings",
		Help: "Listings currently open",
	})

	sales := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_sales",
		Help: "Cumulative settled sales, sampled from the engine",
	})

	volume := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_volume_base_units",
		Help: "Cumulative settled volume in base currency units",
	})

	proceedsOutstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_proceeds_outstanding_base_units",
		Help: "Credited proceeds not yet withdrawn",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(operations, httpRequests, streamClients,
		activeListings, sales, volume, proceedsOutstanding)

	return &Registry{
		registry:            r,
		operations:          operations,
		httpRequests:        httpRequests,
		streamClients:       streamClients,
		activeListings:      activeListings,
		sales:               sales,
		volume:              volume,
		proceedsOutstanding: proceedsOutstanding,
	}
}

// Handler returns the exposition endpoint for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOp counts one engine operation. A nil err counts as ok, anything
// else as rejected.
func (m *Registry) RecordOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordHTTP counts one served request.
func (m *Registry) RecordHTTP(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Registry) ClientConnected() {
	m.streamClients.Inc()
}

func (m *Registry) ClientDisconnected() {
	m.streamClients.Dec()
}

// SetTotals publishes sampled engine counters.
func (m *Registry) SetTotals(t model.Totals) {
	m.activeListings.Set(float64(t.ActiveListings))
	m.sales.Set(float64(t.Sales))
	m.volume.Set(float64(t.Volume))
}

// SetOutstanding publishes the sampled proceeds liability.
func (m *Registry) SetOutstanding(v uint64) {
	m.proceedsOutstanding.Set(float64(v))
}
