package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the service's Prometheus collectors. It satisfies both
// the cache and the service metric hooks.
type Metrics struct {
	cacheRequests *prometheus.CounterVec
	validations   *prometheus.CounterVec
	revocations   *prometheus.CounterVec
}

// NewMetrics registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rangda_cache_requests_total",
			Help: "Local revocation cache lookups by keyspace and result.",
		}, []string{"keyspace", "result"}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rangda_validations_total",
			Help: "Session validations by outcome.",
		}, []string{"outcome"}),
		revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rangda_revocations_total",
			Help: "Revocation operations by kind.",
		}, []string{"kind"}),
	}
}

// CacheHit counts a cache hit in the given keyspace.
func (m *Metrics) CacheHit(keyspace string) {
	m.cacheRequests.WithLabelValues(keyspace, "hit").Inc()
}

// CacheMiss counts a cache miss in the given keyspace.
func (m *Metrics) CacheMiss(keyspace string) {
	m.cacheRequests.WithLabelValues(keyspace, "miss").Inc()
}

// ObserveValidation counts a validation by outcome.
func (m *Metrics) ObserveValidation(outcome string) {
	m.validations.WithLabelValues(outcome).Inc()
}

// IncRevocation counts a revocation operation by kind.
func (m *Metrics) IncRevocation(kind string) {
	m.revocations.WithLabelValues(kind).Inc()
}
