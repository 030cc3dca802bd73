package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "latch_event_duration_sec",
	Help: "Total duration of comment event processing",
})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latch_event_processed",
	Help: "Number of comment events processed, by outcome",
}, []string{"outcome"})

var eventErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_event_errors",
	Help: "Number of comment events which failed before dispatch",
})

var eventPanicCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_event_panics",
	Help: "Number of comment events which panicked during processing",
})

var workflowCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latch_workflow_runs",
	Help: "Number of moderation workflow runs, by workflow and result",
}, []string{"workflow", "result"})

var quotaTripCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_quota_trips",
	Help: "Number of workflows skipped by the daily quota circuit breaker",
})

var postFetchCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_post_fetches",
	Help: "Number of post metadata reads (API calls)",
})
