// Package metrics exports session lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"net/http"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard_session"

// Collector records activity events and session state. It implements
// auth.ActivitySink.
type Collector struct {
	registry *prometheus.Registry

	EventsTotal   *prometheus.CounterVec
	Authenticated prometheus.Gauge
	Initialized   prometheus.Gauge
	Transitions   prometheus.Counter
}

// New registers the session metrics on a dedicated registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of session lifecycle events",
			},
			[]string{"event", "role"},
		),
		Authenticated: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "authenticated",
				Help:      "Session status (1 = authenticated, 0 = anonymous)",
			},
		),
		Initialized: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "initialized",
				Help:      "Bootstrap status (1 = finished, 0 = loading)",
			},
		),
		Transitions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Total number of session state transitions",
			},
		),
	}
}

// Record implements auth.ActivitySink.
func (c *Collector) Record(_ context.Context, event auth.ActivityEvent) error {
	c.EventsTotal.WithLabelValues(string(event.EventType), string(event.Role)).Inc()
	return nil
}

// Observe keeps the gauges in sync with store. The returned function stops
// the observation.
func (c *Collector) Observe(store *auth.Store) func() {
	return store.Observe(func(st auth.State) {
		c.Transitions.Inc()
		c.Authenticated.Set(boolValue(st.Authenticated))
		c.Initialized.Set(boolValue(st.Initialized))
	})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ auth.ActivitySink = (*Collector)(nil)
