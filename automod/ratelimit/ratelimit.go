// Per-actor time-window gate for OP-triggered actions.
//
// The gate admits at most one action per actor per window. The check and the
// update of the actor's last-action timestamp happen as a single atomic
// operation in the backing Store, so near-simultaneous triggers from the same
// actor can't both be admitted.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	// Atomically: if there is no record for the actor, or the recorded
	// timestamp is at least `window` before `now`, store `now` (expiring after
	// `window`) and return true. Otherwise return false and change nothing.
	CheckAndSet(ctx context.Context, actorID string, now time.Time, window time.Duration) (bool, error)
	// Removes any record for the actor.
	Clear(ctx context.Context, actorID string) error
}

func recordKey(actorID string) string {
	return "ratelimit:" + actorID
}

type Limiter struct {
	Store  Store
	Logger *slog.Logger
	// clock override, for tests. defaults to time.Now
	Now func() time.Time
}

func NewLimiter(store Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
	}
}

// Reports whether the actor may act now, and if so records the attempt.
//
// A non-positive window disables limiting. Store failures deny the action (fail closed).
func (l *Limiter) TryAcquire(ctx context.Context, actorID string, windowMinutes int) bool {
	if windowMinutes <= 0 {
		return true
	}
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	window := time.Duration(windowMinutes) * time.Minute
	ok, err := l.Store.CheckAndSet(ctx, actorID, now, window)
	if err != nil {
		l.Logger.Error("rate limit store unavailable, denying action", "actor", actorID, "err", err)
		storeErrors.Inc()
		return false
	}
	if !ok {
		l.Logger.Debug("rate limited", "actor", actorID, "window", window.String())
	}
	return ok
}

func (l *Limiter) Reset(ctx context.Context, actorID string) error {
	return l.Store.Clear(ctx, actorID)
}
