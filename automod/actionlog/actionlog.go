// Bounded, newest-first audit log of executed moderation actions, partitioned
// by moderation scope (subreddit).
//
// Includes an interface and implementations using redis (JSON array, as written
// by the original app), SQL (via gorm), and in-process memory.
package actionlog

import (
	"context"
	"log/slog"
	"time"
)

// Maximum number of entries retained per scope. Older entries are evicted on insert.
const Capacity = 100

const (
	ActionPostLocked    = "POST_LOCKED"
	ActionModForceLock  = "MOD_FORCE_LOCK"
	ActionCommentHidden = "COMMENT_HIDDEN"
)

// Immutable once written.
type Entry struct {
	// ISO-8601 UTC, millisecond precision
	Timestamp string         `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
}

type Store interface {
	// Prepends the entry to the scope's log, truncating to Capacity.
	Append(ctx context.Context, scopeID string, entry Entry) error
	// Returns up to limit entries, newest first. A scope with nothing logged
	// returns an empty slice and no error.
	List(ctx context.Context, scopeID string, limit int) ([]Entry, error)
}

func logKey(scopeID string) string {
	return "actionlog:" + scopeID
}

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// Wraps a Store with the enable/disable check and best-effort error handling.
// Logging is advisory: it never blocks or fails the action being logged.
type ActionLog struct {
	Store  Store
	Logger *slog.Logger
	// clock override, for tests. defaults to time.Now
	Now func() time.Time
}

func NewActionLog(store Store, logger *slog.Logger) *ActionLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionLog{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
	}
}

// Records an action, unless logging is disabled. Store failures are logged and swallowed.
func (a *ActionLog) Append(ctx context.Context, enabled bool, scopeID, action string, details map[string]any) {
	if !enabled {
		return
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	entry := Entry{
		Timestamp: FormatTimestamp(now),
		Action:    action,
		Details:   details,
	}
	if err := a.Store.Append(ctx, scopeID, entry); err != nil {
		a.Logger.Warn("failed to append action log entry", "scope", scopeID, "action", action, "err", err)
		appendErrors.Inc()
		return
	}
	appendCount.WithLabelValues(action).Inc()
}

func (a *ActionLog) List(ctx context.Context, scopeID string, limit int) ([]Entry, error) {
	return a.Store.List(ctx, scopeID, limit)
}

// prepends and truncates, without mutating the input slice
func prependBounded(existing []Entry, entry Entry) []Entry {
	out := make([]Entry, 0, min(len(existing)+1, Capacity))
	out = append(out, entry)
	for _, e := range existing {
		if len(out) >= Capacity {
			break
		}
		out = append(out, e)
	}
	return out
}

func truncate(entries []Entry, limit int) []Entry {
	if limit < 0 {
		limit = 0
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
