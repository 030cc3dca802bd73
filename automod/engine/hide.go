package engine

import (
	"context"
	"fmt"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/settings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Removes the parent of the triggering comment, then the triggering comment itself.
//
// Failures abort the rest of the workflow and are logged at ERROR. Unlike the
// lock workflow, the OP is not notified.
func (eng *Engine) HideCommentPair(ctx context.Context, ev forum.CommentEvent, scopeID string, cfg settings.Settings) error {
	ctx, span := tracer.Start(ctx, "HideCommentPair")
	defer span.End()
	span.SetAttributes(attribute.String("comment", ev.ID), attribute.String("parent", ev.ParentID))

	logger := eng.Logger.With("workflow", "hide", "post", ev.PostID, "comment", ev.ID, "parent", ev.ParentID, "scope", scopeID)

	err := eng.removePair(ctx, ev)
	if err != nil {
		workflowCount.WithLabelValues("hide", "error").Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to hide comment pair", "err", err)
		return err
	}
	workflowCount.WithLabelValues("hide", "ok").Inc()
	logger.Info("comment pair hidden by OP")

	eng.ActionLog.Append(ctx, cfg.LoggingEnabled, scopeID, actionlog.ActionCommentHidden, map[string]any{
		"postId":           ev.PostID,
		"parentCommentId":  ev.ParentID,
		"triggerCommentId": ev.ID,
		"authorId":         ev.AuthorID,
	})
	eng.recordAction(ctx, logger, scopeID, kindHide, ev.AuthorID, true)
	eng.notify(ctx, logger, ActionNotice{
		Action:        actionlog.ActionCommentHidden,
		ScopeID:       scopeID,
		SubredditName: ev.SubredditName,
		PostID:        ev.PostID,
		ActorID:       ev.AuthorID,
		Detail:        ev.ParentID,
	})
	return nil
}

func (eng *Engine) removePair(ctx context.Context, ev forum.CommentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eventPanicCount.Inc()
			err = fmt.Errorf("hide workflow panic: %v", r)
		}
	}()

	if ev.ParentID == "" {
		return fmt.Errorf("comment %s has no parent comment", ev.ID)
	}
	parent, err := eng.Forum.GetComment(ctx, ev.ParentID)
	if err != nil {
		return fmt.Errorf("fetching parent comment: %w", err)
	}
	if err := eng.Forum.RemoveComment(ctx, parent.ID); err != nil {
		return fmt.Errorf("removing parent comment: %w", err)
	}
	if err := eng.Forum.RemoveComment(ctx, ev.ID); err != nil {
		return fmt.Errorf("removing trigger comment: %w", err)
	}
	return nil
}
