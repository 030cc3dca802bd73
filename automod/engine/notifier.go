package engine

import (
	"context"
	"log/slog"
)

// Summary of a completed moderation workflow, for operator notifications.
type ActionNotice struct {
	Action        string
	ScopeID       string
	SubredditName string
	PostID        string
	PostTitle     string
	ActorID       string
	// free-form extra detail (lock context, hidden parent comment)
	Detail string
}

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendAction(ctx context.Context, n ActionNotice) error
}

func (eng *Engine) notify(ctx context.Context, logger *slog.Logger, n ActionNotice) {
	if eng.Notifier == nil {
		return
	}
	if err := eng.Notifier.SendAction(ctx, n); err != nil {
		logger.Warn("failed to send action notification", "err", err)
	}
}
