package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FeedCollector exposes render-feed Prometheus metrics.
type FeedCollector struct {
	gatherer prometheus.Gatherer

	ClientsConnected  prometheus.Gauge
	BroadcastDuration prometheus.Histogram
	BroadcastsTotal   prometheus.Counter
	FramesDropped     prometheus.Counter
}

// NewFeedCollector registers feed metrics against the provided registerer.
func NewFeedCollector(reg prometheus.Registerer) (*FeedCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_clients_connected",
		Help: "Number of websocket clients currently subscribed to the render feed.",
	})
	clients, err := registerGauge(reg, clients, "feed_clients_connected")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_broadcast_duration_seconds",
		Help:    "Duration of fanning one envelope out to all subscribed clients.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})
	duration, err = registerHistogram(reg, duration, "feed_broadcast_duration_seconds")
	if err != nil {
		return nil, err
	}

	broadcasts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_broadcasts_total",
		Help: "Cumulative number of envelopes broadcast to the render feed.",
	})
	broadcasts, err = registerCounter(reg, broadcasts, "feed_broadcasts_total")
	if err != nil {
		return nil, err
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_frames_dropped_total",
		Help: "Cumulative envelopes dropped because a client's send buffer was full.",
	})
	dropped, err = registerCounter(reg, dropped, "feed_frames_dropped_total")
	if err != nil {
		return nil, err
	}

	return &FeedCollector{
		gatherer:          gatherer,
		ClientsConnected:  clients,
		BroadcastDuration: duration,
		BroadcastsTotal:   broadcasts,
		FramesDropped:     dropped,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FeedCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetConnectedClients updates the subscriber gauge.
func (c *FeedCollector) SetConnectedClients(count int) {
	if c == nil || c.ClientsConnected == nil {
		return
	}
	c.ClientsConnected.Set(float64(count))
}

// ObserveBroadcast records one envelope fanout.
func (c *FeedCollector) ObserveBroadcast(d time.Duration) {
	if c == nil {
		return
	}
	if c.BroadcastsTotal != nil {
		c.BroadcastsTotal.Inc()
	}
	if c.BroadcastDuration != nil {
		c.BroadcastDuration.Observe(d.Seconds())
	}
}

// IncDroppedFrames counts one envelope dropped on a saturated client.
func (c *FeedCollector) IncDroppedFrames() {
	if c == nil || c.FramesDropped == nil {
		return
	}
	c.FramesDropped.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
