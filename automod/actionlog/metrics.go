package actionlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var appendCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latch_actionlog_appends",
	Help: "Number of action log entries written",
}, []string{"action"})

var appendErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_actionlog_append_errors",
	Help: "Number of action log appends which failed (and were dropped)",
})
