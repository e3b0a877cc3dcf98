package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "fanout",
		Name:      "events_published_total",
		Help:      "Fan-out events successfully handed to the transport.",
	})
	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "fanout",
		Name:      "publish_failures_total",
		Help:      "Fan-out publishes that failed; never retried.",
	})
)
