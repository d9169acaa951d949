package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FleetCollector bundles Prometheus metrics for trail and maneuver
// activity. It satisfies the trail and stepper recorder interfaces, so
// one instance can be wired through the whole world.
type FleetCollector struct {
	gatherer prometheus.Gatherer

	TrailAppends      *prometheus.CounterVec
	TrailSyncFailures *prometheus.CounterVec
	TrailEntries      *prometheus.GaugeVec

	StepDurations   *prometheus.HistogramVec
	Arrivals        *prometheus.CounterVec
	ManeuversActive *prometheus.GaugeVec
}

// NewFleetCollector registers fleet Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewFleetCollector(reg prometheus.Registerer) (*FleetCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_appends_total",
		Help: "Total trail record attempts, labeled by entity and whether the entry passed the significance filter.",
	}, []string{"entity", "outcome"})
	appends, err := registerCounterVec(reg, appends, "trail_appends_total")
	if err != nil {
		return nil, err
	}

	syncFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_sync_failures_total",
		Help: "Total failed render-surface calls, labeled by entity.",
	}, []string{"entity"})
	syncFailures, err = registerCounterVec(reg, syncFailures, "trail_sync_failures_total")
	if err != nil {
		return nil, err
	}

	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trail_entries",
		Help: "Current number of stored trail entries per entity.",
	}, []string{"entity"})
	entries, err = registerGaugeVec(reg, entries, "trail_entries")
	if err != nil {
		return nil, err
	}

	steps := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maneuver_step_duration_seconds",
		Help:    "Wall time spent advancing one movement tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"entity"})
	steps, err = registerHistogramVec(reg, steps, "maneuver_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	arrivals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maneuver_arrivals_total",
		Help: "Total completed maneuvers, labeled by entity.",
	}, []string{"entity"})
	arrivals, err = registerCounterVec(reg, arrivals, "maneuver_arrivals_total")
	if err != nil {
		return nil, err
	}

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maneuvers_active",
		Help: "Whether an entity currently has an active movement loop (0 or 1).",
	}, []string{"entity"})
	active, err = registerGaugeVec(reg, active, "maneuvers_active")
	if err != nil {
		return nil, err
	}

	return &FleetCollector{
		gatherer:          gatherer,
		TrailAppends:      appends,
		TrailSyncFailures: syncFailures,
		TrailEntries:      entries,
		StepDurations:     steps,
		Arrivals:          arrivals,
		ManeuversActive:   active,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FleetCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordAppend counts one trail record attempt.
func (c *FleetCollector) RecordAppend(entityID string, recorded bool) {
	if c == nil || c.TrailAppends == nil {
		return
	}
	outcome := "filtered"
	if recorded {
		outcome = "recorded"
	}
	c.TrailAppends.WithLabelValues(entityID, outcome).Inc()
}

// RecordSyncFailure counts a failed render-surface call.
func (c *FleetCollector) RecordSyncFailure(entityID string) {
	if c == nil || c.TrailSyncFailures == nil {
		return
	}
	c.TrailSyncFailures.WithLabelValues(entityID).Inc()
}

// SetTrailSize reports a store's current length.
func (c *FleetCollector) SetTrailSize(entityID string, size int) {
	if c == nil || c.TrailEntries == nil {
		return
	}
	c.TrailEntries.WithLabelValues(entityID).Set(float64(size))
}

// RecordStep observes the wall time of one movement tick.
func (c *FleetCollector) RecordStep(entityID string, seconds float64) {
	if c == nil || c.StepDurations == nil {
		return
	}
	c.StepDurations.WithLabelValues(entityID).Observe(seconds)
}

// RecordArrival counts a completed maneuver.
func (c *FleetCollector) RecordArrival(entityID string) {
	if c == nil || c.Arrivals == nil {
		return
	}
	c.Arrivals.WithLabelValues(entityID).Inc()
}

// SetManeuverActive flags whether an entity's movement loop is live.
func (c *FleetCollector) SetManeuverActive(entityID string, active bool) {
	if c == nil || c.ManeuversActive == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	c.ManeuversActive.WithLabelValues(entityID).Set(v)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
