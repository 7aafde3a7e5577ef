package memento

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opGet    = "get"
	opSet    = "set"
	opRemove = "remove"
	opClear  = "clear"
	opKeys   = "keys"

	outcomeHit    = "hit"
	outcomeMiss   = "miss"
	outcomeOK     = "ok"
	outcomeBypass = "bypass"
	outcomeError  = "error"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memento_operations_total",
		Help: "Total number of cache operations by outcome.",
	}, []string{"op", "outcome" /* hit | miss | ok | bypass | error */})
	breakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memento_breaker_trips_total",
		Help: "Total number of times consecutive errors disabled the cache.",
	})
	breakerReopens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memento_breaker_reopens_total",
		Help: "Total number of times an automatically disabled cache was re-enabled by the reset interval.",
	})
	indexUpdateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memento_index_update_failures_total",
		Help: "Total number of key index updates that failed and were dropped.",
	})
)

func observe(op, outcome string) {
	operations.WithLabelValues(op, outcome).Inc()
}
