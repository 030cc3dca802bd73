package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "latch_ratelimit_store_errors",
	Help: "Number of rate limit checks denied because the store was unavailable",
})
