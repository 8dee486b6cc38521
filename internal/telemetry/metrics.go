// Package telemetry exposes the bridge's counters in Prometheus format.
package telemetry

import (
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swipebridge"

// Frame outcomes.
const (
	OutcomeIdentified   = "identified"
	OutcomeUnidentified = "unidentified"
	OutcomeRejected     = "rejected"
	OutcomeForwarded    = "forwarded"
	OutcomePersistError = "persist_failed"
)

// Publish results.
const (
	PublishDelivered   = "delivered"
	PublishFailed      = "failed"
	PublishQueueFull   = "queue_full"
	PublishUndelivered = "undelivered"
)

// Metrics owns a private registry so tests and the process never collide on
// the global one. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	lines              *prometheus.CounterVec
	frames             *prometheus.CounterVec
	publishes          *prometheus.CounterVec
	brokerConnected    prometheus.Gauge
	queueDepth         prometheus.Gauge
	predictionDuration prometheus.Histogram
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_total",
				Help:      "Serial lines received, by token kind",
			},
			[]string{"token"},
		),

		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Lines handled by the active mode, by outcome",
			},
			[]string{"mode", "outcome"},
		),

		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Broker publish results",
			},
			[]string{"result"},
		),

		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the broker session is up",
		}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_queue_depth",
			Help:      "Records waiting for the publisher",
		}),

		predictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent in the feature pipeline per frame",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.lines,
		m.frames,
		m.publishes,
		m.brokerConnected,
		m.queueDepth,
		m.predictionDuration,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegisterFailed, err)
		}
	}

	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveLine(token string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(token).Inc()
}

func (m *Metrics) ObserveFrame(mode, outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePrediction(d time.Duration) {
	if m == nil {
		return
	}
	m.predictionDuration.Observe(d.Seconds())
}

func (m *Metrics) SetBrokerConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.brokerConnected.Set(1)
		return
	}
	m.brokerConnected.Set(0)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
