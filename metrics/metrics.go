// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is shared by every pipeline metric
	Namespace = "tally"

	subsystemProducer    = "producer"
	subsystemWorker      = "worker"
	subsystemBroadcaster = "broadcaster"
)

// Producer tracks vote submissions
type Producer struct {
	Enqueued        *prometheus.CounterVec
	Rejected        prometheus.Counter
	EnqueueFailures prometheus.Counter
}

// Worker tracks the persistence worker
type Worker struct {
	Applied       prometheus.Counter
	Poison        prometheus.Counter
	Lost          prometheus.Counter
	Reconnects    prometheus.Counter
	KeepAlives    prometheus.Counter
	Connected     prometheus.Gauge
	ApplyDuration prometheus.Histogram
}

// Broadcaster tracks the live results broadcaster
type Broadcaster struct {
	Ticks        prometheus.Counter
	TickFailures prometheus.Counter
	Observers    prometheus.Gauge
	Evicted      prometheus.Counter
	Votes        *prometheus.GaugeVec
}

// NewProducer creates and registers the producer metrics
func NewProducer(reg prometheus.Registerer) *Producer {
	m := &Producer{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemProducer,
			Name:      "enqueued_total",
			Help:      "Votes appended to the hand-off queue",
		}, []string{"choice"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemProducer,
			Name:      "rejected_total",
			Help:      "Submissions rejected by validation",
		}),
		EnqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemProducer,
			Name:      "enqueue_failures_total",
			Help:      "Submissions that could not be appended to the queue",
		}),
	}
	reg.MustRegister(m.Enqueued, m.Rejected, m.EnqueueFailures)
	return m
}

// NewWorker creates and registers the worker metrics
func NewWorker(reg prometheus.Registerer) *Worker {
	m := &Worker{
		Applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "applied_total",
			Help:      "Votes upserted into the tally store",
		}),
		Poison: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "poison_total",
			Help:      "Undecodable or invalid queue messages dropped",
		}),
		Lost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "lost_total",
			Help:      "Dequeued votes lost because the store failed before they were applied",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "reconnect_attempts_total",
			Help:      "Failed attempts to connect to the queue or store",
		}),
		KeepAlives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "keepalives_total",
			Help:      "Keep-alive queries issued while idle",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "connected",
			Help:      "1 while the worker holds queue and store connections",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorker,
			Name:      "apply_duration_seconds",
			Help:      "Time spent upserting one vote",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(m.Applied, m.Poison, m.Lost, m.Reconnects, m.KeepAlives, m.Connected, m.ApplyDuration)
	return m
}

// NewBroadcaster creates and registers the broadcaster metrics
func NewBroadcaster(reg prometheus.Registerer) *Broadcaster {
	m := &Broadcaster{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemBroadcaster,
			Name:      "ticks_total",
			Help:      "Snapshots pushed to observers",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemBroadcaster,
			Name:      "tick_failures_total",
			Help:      "Ticks skipped because the store query failed",
		}),
		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemBroadcaster,
			Name:      "observers",
			Help:      "Currently connected observers",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemBroadcaster,
			Name:      "evicted_total",
			Help:      "Observers disconnected for falling behind",
		}),
		Votes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemBroadcaster,
			Name:      "votes",
			Help:      "Current tally per choice as of the last tick",
		}, []string{"choice"}),
	}
	reg.MustRegister(m.Ticks, m.TickFailures, m.Observers, m.Evicted, m.Votes)
	return m
}
