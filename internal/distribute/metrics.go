package distribute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesDistributed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "loom",
	Subsystem: "distribute",
	Name:      "messages_total",
	Help:      "Messages accepted by the distribution pipeline.",
})
