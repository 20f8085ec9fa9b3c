// Package metrics holds the prometheus collectors for dapi.
//
// All methods are safe to call on a nil *Metrics, so components can
// be built without a registry.
package metrics

import (
	"time"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dapi"

// Metrics contains every dapi collector.
type Metrics struct {
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration prometheus.Histogram

	StreamSessionsActive prometheus.Gauge
	StreamEventsTotal    *prometheus.CounterVec

	BlocksRecordedTotal prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transitions",
				Name:      "total",
				Help:      "State transitions handled, by result (ok, invalid, store_failed, broadcast_failed)",
			},
			[]string{"result"},
		),

		TransitionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "transitions",
				Name:      "duration_seconds",
				Help:      "Time to validate, store and broadcast a state transition",
				Buckets:   prometheus.DefBuckets,
			},
		),

		StreamSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "sessions_active",
				Help:      "Open transaction stream sessions",
			},
		),

		StreamEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "events_total",
				Help:      "Stream events published, by kind",
			},
			[]string{"kind"},
		),

		BlocksRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "blocks_recorded_total",
				Help:      "Blocks persisted to history and published to the live feed",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.TransitionsTotal,
			m.TransitionDuration,
			m.StreamSessionsActive,
			m.StreamEventsTotal,
			m.BlocksRecordedTotal,
		)
	}
	return m
}

// ResultLabel classifies a submission error for TransitionsTotal.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := dapi.IsValidation(err); ok {
		return "invalid"
	}
	if b, ok := dapi.IsBackend(err); ok {
		if b.Stage == dapi.StageStore {
			return "store_failed"
		}
		return "broadcast_failed"
	}
	return "error"
}

// ObserveTransition records the outcome of one submission.
func (m *Metrics) ObserveTransition(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(ResultLabel(err)).Inc()
	m.TransitionDuration.Observe(d.Seconds())
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.StreamSessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.StreamSessionsActive.Dec()
}

// EventPublished counts one published stream event.
func (m *Metrics) EventPublished(kind types.EventKind) {
	if m == nil {
		return
	}
	m.StreamEventsTotal.WithLabelValues(kind.String()).Inc()
}

// BlockRecorded counts one recorded block.
func (m *Metrics) BlockRecorded() {
	if m == nil {
		return
	}
	m.BlocksRecordedTotal.Inc()
}
