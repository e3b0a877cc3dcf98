package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "ingest",
		Name:      "jobs_processed_total",
		Help:      "Embedding jobs acked after a successful batch upsert.",
	})
	jobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "ingest",
		Name:      "jobs_retried_total",
		Help:      "Embedding jobs requeued after a transient failure.",
	})
	jobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "ingest",
		Name:      "jobs_dropped_total",
		Help:      "Embedding jobs dropped permanently (validation failure or retry budget exhausted).",
	})
)
