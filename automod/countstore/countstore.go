// Counters of executed moderation actions, bucketed by time period.
//
// Counters back the stats endpoint and the daily per-scope quota which acts as
// a circuit breaker on automated actions. Includes implementations using redis
// and in-process memory.
package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

var AllPeriods = []string{PeriodTotal, PeriodDay, PeriodHour}

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	// Increments the counter for every period.
	Increment(ctx context.Context, name, val string) error
	// Approximate (redis) or exact (memory) count of distinct values seen in a bucket.
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

// Buckets are keyed by UTC calendar day or hour, so a "day" count resets at
// midnight UTC rather than being a sliding window.
func periodBucket(name, val, period string, now time.Time) string {
	now = now.UTC()
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%s", name, val, now.Format(time.DateOnly))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/%s", name, val, now.Format("2006-01-02T15"))
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}

// Reads a counter for all periods at once.
func Summary(ctx context.Context, cs CountStore, name, val string) (map[string]int, error) {
	out := make(map[string]int, len(AllPeriods))
	for _, p := range AllPeriods {
		c, err := cs.GetCount(ctx, name, val, p)
		if err != nil {
			return nil, err
		}
		out[p] = c
	}
	return out, nil
}
