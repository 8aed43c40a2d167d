// Package metrics exposes Prometheus metrics for lifecycle events, the
// document pipeline and the inventory audit.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "landsale"

// LifecycleEvents counts lifecycle calls by event and outcome.
var LifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "lifecycle",
	Name:      "events_total",
	Help:      "Lifecycle events by event name and outcome (ok, validation, duplicate, not_found, inventory, error).",
}, []string{"event", "outcome"})

// LifecycleDuration observes how long a unit of work took, commit included.
var LifecycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "lifecycle",
	Name:      "duration_seconds",
	Help:      "Duration of lifecycle units of work.",
	Buckets:   prometheus.DefBuckets,
}, []string{"event"})

// LotsMoved counts lot status changes by target status.
var LotsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "inventory",
	Name:      "lots_moved_total",
	Help:      "Lots moved by the lifecycle, labelled by the status they moved to.",
}, []string{"to"})

// LandDrift is 1 while a land's counters disagree with its lot statuses.
var LandDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "inventory",
	Name:      "land_drift",
	Help:      "1 when the stored land counters disagree with the lot statuses, else 0.",
}, []string{"land"})

// AuditRuns counts inventory audit passes.
var AuditRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "inventory",
	Name:      "audit_runs_total",
	Help:      "Inventory audit passes.",
})

// Documents counts contract document attempts by outcome.
var Documents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "documents",
	Name:      "attempts_total",
	Help:      "Contract document render and upload attempts by outcome (ok, failed).",
}, []string{"outcome"})

// DocumentQueue is the number of contracts still waiting for a document.
var DocumentQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "documents",
	Name:      "queue_depth",
	Help:      "Contracts picked up by the last document batch.",
})

// ObserveEvent records one finished lifecycle event.
func ObserveEvent(event, outcome string, started time.Time) {
	LifecycleEvents.WithLabelValues(event, outcome).Inc()
	LifecycleDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
}
