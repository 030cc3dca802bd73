package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commentsSeenCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latch_consumer_comments",
	Help: "Number of new comments dispatched to the engine, by subreddit",
}, []string{"subreddit"})

var pollErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latch_consumer_poll_errors",
	Help: "Number of failed comment listing requests, by subreddit",
}, []string{"subreddit"})

var processErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_consumer_process_errors",
	Help: "Number of comments the engine failed to process",
})
