// Package metrics holds the Prometheus collectors for bridge requests and
// the sub-queries they fan out to.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mongo-bridge/internal/domain"
)

const namespace = "mongo_bridge"

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	subQueries       *prometheus.CounterVec
	subQueryDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of bridge requests by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		subQueries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subqueries_total",
				Help:      "Total number of executed sub-queries by result shape and outcome.",
			},
			[]string{"shape", "outcome"},
		),
		subQueryDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subquery_duration_seconds",
				Help:      "Wall-clock time spent running a sub-query against the datastore.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"shape"},
		),
		inflight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_requests",
				Help:      "Number of multi-query requests currently open.",
			},
		),
	}
}

// ObserveRequest counts one finished request on endpoint.
func (m *Metrics) ObserveRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, Outcome(err)).Inc()
}

// ObserveSubQuery records one executed sub-query.
func (m *Metrics) ObserveSubQuery(shape string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.subQueries.WithLabelValues(shapeLabel(shape), Outcome(err)).Inc()
	m.subQueryDuration.WithLabelValues(shapeLabel(shape)).Observe(elapsed.Seconds())
}

// RequestStarted increments the open request gauge and returns the func
// that decrements it.
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// Outcome maps an error onto a bounded label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		parseErr *domain.ParseError
		valErr   *domain.ValidationError
		connErr  *domain.ConnectionError
		execErr  *domain.ExecutionError
		fmtErr   *domain.FormattingError
	)
	switch {
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &valErr):
		return "validation_error"
	case errors.As(err, &connErr):
		return "connection_error"
	case errors.As(err, &execErr):
		return "execution_error"
	case errors.As(err, &fmtErr):
		return "formatting_error"
	default:
		return "error"
	}
}

func shapeLabel(shape string) string {
	if shape == domain.ShapeTimeSeries {
		return shape
	}
	return "table"
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
