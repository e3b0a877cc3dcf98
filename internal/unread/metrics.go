package unread

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	incrementsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "unread",
		Name:      "increments_total",
		Help:      "Unread counter increments applied.",
	})
	resetsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "unread",
		Name:      "resets_total",
		Help:      "Unread counter resets applied on conversation read.",
	})
)
