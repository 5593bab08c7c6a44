package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "licensegate"

var (
	licensedMetricsOnce sync.Once
	licensedRegistry    *LicensedMetrics

	relayMetricsOnce sync.Once
	relayRegistry    *RelayMetrics
)

// Transfer outcomes recorded by the payment reconciler.
const (
	TransferFiltered  = "filtered"
	TransferDuplicate = "duplicate"
	TransferCredited  = "credited"
	TransferUnmatched = "unmatched"
	TransferError     = "error"
)

// LicensedMetrics wraps collectors tracking license daemon health.
type LicensedMetrics struct {
	ticks          prometheus.Counter
	fetchFailures  prometheus.Counter
	transfers      *prometheus.CounterVec
	issued         prometheus.Counter
	notifyFailures prometheus.Counter
	sessionEvents  *prometheus.CounterVec
}

// Licensed returns the lazily-initialised metrics registry for the license daemon.
func Licensed() *LicensedMetrics {
	licensedMetricsOnce.Do(func() {
		licensedRegistry = &LicensedMetrics{
			ticks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "ticks_total",
				Help:      "Completed reconciler ticks, including ticks aborted by fetch failures.",
			}),
			fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "fetch_failures_total",
				Help:      "Ledger fetch attempts that failed and aborted the tick.",
			}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "transfers_total",
				Help:      "Observed ledger transfers segmented by reconciliation outcome.",
			}, []string{"outcome"}),
			issued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "license",
				Name:      "issued_total",
				Help:      "License keys issued or renewed by the reconciler.",
			}),
			notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "license",
				Name:      "notify_failures_total",
				Help:      "Issued licenses whose delivery to the user failed.",
			}),
			sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bot",
				Name:      "session_events_total",
				Help:      "Conversation events segmented by kind (command or text input).",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			licensedRegistry.ticks,
			licensedRegistry.fetchFailures,
			licensedRegistry.transfers,
			licensedRegistry.issued,
			licensedRegistry.notifyFailures,
			licensedRegistry.sessionEvents,
		)
	})
	return licensedRegistry
}

// RecordTick counts a reconciler wake-up.
func (m *LicensedMetrics) RecordTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

// RecordFetchFailure counts an aborted ledger fetch.
func (m *LicensedMetrics) RecordFetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// RecordTransfer counts one observed transfer with its reconciliation outcome.
func (m *LicensedMetrics) RecordTransfer(outcome string) {
	if m == nil {
		return
	}
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		outcome = "unknown"
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

// RecordIssued counts a settled payment that produced a license key.
func (m *LicensedMetrics) RecordIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// RecordNotifyFailure counts a failed credential delivery.
func (m *LicensedMetrics) RecordNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// RecordSessionEvent counts one handled conversation event.
func (m *LicensedMetrics) RecordSessionEvent(kind string) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	m.sessionEvents.WithLabelValues(kind).Inc()
}

// RelayMetrics wraps collectors tracking the signal relay API.
type RelayMetrics struct {
	stored   prometheus.Counter
	served   prometheus.Counter
	rejected *prometheus.CounterVec
}

// Relay returns the lazily-initialised metrics registry for the signal relay.
func Relay() *RelayMetrics {
	relayMetricsOnce.Do(func() {
		relayRegistry = &RelayMetrics{
			stored: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "signals_stored_total",
				Help:      "Trading signals accepted and persisted.",
			}),
			served: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "signals_served_total",
				Help:      "Trading signals returned to polling clients.",
			}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "requests_rejected_total",
				Help:      "Relay requests rejected before reaching the store, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			relayRegistry.stored,
			relayRegistry.served,
			relayRegistry.rejected,
		)
	})
	return relayRegistry
}

// RecordStored counts one persisted signal.
func (m *RelayMetrics) RecordStored() {
	if m == nil {
		return
	}
	m.stored.Inc()
}

// RecordServed counts signals handed to a polling client.
func (m *RelayMetrics) RecordServed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.served.Add(float64(n))
}

// RecordRejected counts one rejected request with the given reason.
func (m *RelayMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(reason).Inc()
}
