package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the check-in pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Dispatches       *prometheus.CounterVec
	LocationFailures *prometheus.CounterVec
	GeocodeLookups   *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_notifications_total",
			Help: "Check-in notifications by outcome and failure reason",
		}, []string{"outcome", "reason"}),
		LocationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_location_failures_total",
			Help: "Location resolutions that failed, by error code",
		}, []string{"code"}),
		GeocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_geocode_lookups_total",
			Help: "Reverse geocoding lookups by result (resolved, cached, fallback)",
		}, []string{"result"}),
	}
}

// ObserveDispatch counts one dispatch. An empty reason means delivered.
func (m *Metrics) ObserveDispatch(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		m.Dispatches.WithLabelValues("delivered", "").Inc()
		return
	}
	m.Dispatches.WithLabelValues("failed", reason).Inc()
}

// ObserveLocationFailure counts one failed resolution.
func (m *Metrics) ObserveLocationFailure(code string) {
	if m == nil {
		return
	}
	m.LocationFailures.WithLabelValues(code).Inc()
}

// ObserveGeocode counts one address lookup.
func (m *Metrics) ObserveGeocode(result string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(result).Inc()
}
