package engine

import (
	"context"
	"log/slog"

	"github.com/latchbot/latch/automod/countstore"
)

const (
	kindLock      = "lock"
	kindHide      = "hide"
	kindForceLock = "force-lock"

	counterActions = "latch-action"
	counterActors  = "latch-actor"
	counterQuota   = "latch-quota"
)

var actionKinds = []string{kindLock, kindHide, kindForceLock}

// Checks the daily per-scope quota on OP-triggered workflows. Counter read
// failures let the action through: the rate limiter is the primary gate, this
// is a backstop.
func (eng *Engine) withinQuota(ctx context.Context, logger *slog.Logger, scopeID string) bool {
	if eng.Config.QuotaActionsDay <= 0 {
		return true
	}
	c, err := eng.Counters.GetCount(ctx, counterQuota, scopeID, countstore.PeriodDay)
	if err != nil {
		logger.Warn("failed to read action quota counter", "err", err)
		return true
	}
	if c >= eng.Config.QuotaActionsDay {
		logger.Warn("CIRCUIT BREAKER: daily action quota exceeded", "count", c, "quota", eng.Config.QuotaActionsDay)
		quotaTripCount.Inc()
		return false
	}
	return true
}

// Updates counters after a successful workflow. Counter failures are logged and ignored.
func (eng *Engine) recordAction(ctx context.Context, logger *slog.Logger, scopeID, kind, actorID string, quota bool) {
	if err := eng.Counters.Increment(ctx, counterActions, scopeID+"/"+kind); err != nil {
		logger.Warn("failed to increment action counter", "err", err)
	}
	if err := eng.Counters.IncrementDistinct(ctx, counterActors, scopeID, actorID); err != nil {
		logger.Warn("failed to increment distinct actor counter", "err", err)
	}
	if quota {
		if err := eng.Counters.Increment(ctx, counterQuota, scopeID); err != nil {
			logger.Warn("failed to increment action quota counter", "err", err)
		}
	}
}

type ScopeStats struct {
	// action kind to period to count
	Actions map[string]map[string]int `json:"actions"`
	// distinct actors, by period
	Actors map[string]int `json:"actors"`
}

func (eng *Engine) Stats(ctx context.Context, scopeID string) (*ScopeStats, error) {
	out := ScopeStats{
		Actions: make(map[string]map[string]int, len(actionKinds)),
		Actors:  make(map[string]int, len(countstore.AllPeriods)),
	}
	for _, kind := range actionKinds {
		sum, err := countstore.Summary(ctx, eng.Counters, counterActions, scopeID+"/"+kind)
		if err != nil {
			return nil, err
		}
		out.Actions[kind] = sum
	}
	for _, p := range countstore.AllPeriods {
		c, err := eng.Counters.GetCountDistinct(ctx, counterActors, scopeID, p)
		if err != nil {
			return nil, err
		}
		out.Actors[p] = c
	}
	return &out, nil
}
