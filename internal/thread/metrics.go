package thread

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var repliesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Subsystem: "thread",
	Name:      "replies_total",
	Help:      "Thread replies whose parent metadata was updated.",
})
