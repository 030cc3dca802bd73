package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/settings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// An OP-triggered lock, as routed from a comment event.
type LockRequest struct {
	Post forum.Post
	// the triggering comment, which is removed once the post is locked
	Comment forum.CommentEvent
	ScopeID string
	// matched trigger phrase, and extracted context (already prefixed with " - ", or empty)
	Trigger  string
	Context  string
	Settings settings.Settings
}

type lockPlan struct {
	post       forum.Post
	stickyText string
	flairID    string
	// empty for the moderator path
	triggerCommentID string
}

// Runs the lock steps in order, each at most once. The first failure aborts
// the rest; flair failures are logged and ignored.
//
// A panic in any step is converted to an error, so callers always get to
// report the failure.
func (eng *Engine) executeLock(ctx context.Context, logger *slog.Logger, plan lockPlan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eventPanicCount.Inc()
			err = fmt.Errorf("lock workflow panic: %v", r)
		}
	}()

	if err := eng.Forum.LockPost(ctx, plan.post.ID); err != nil {
		return fmt.Errorf("locking post: %w", err)
	}
	if err := eng.PurgePostCache(ctx, plan.post.ID); err != nil {
		logger.Warn("failed to purge post cache", "err", err)
	}

	if plan.flairID != "" {
		if err := eng.Forum.SetPostFlair(ctx, plan.post.ID, plan.flairID); err != nil {
			logger.Warn("failed to apply answered flair", "flair", plan.flairID, "err", err)
		}
	}

	stickyID, err := eng.Forum.SubmitComment(ctx, plan.post.ID, plan.stickyText)
	if err != nil {
		return fmt.Errorf("submitting sticky comment: %w", err)
	}
	if err := eng.Forum.DistinguishComment(ctx, stickyID); err != nil {
		return fmt.Errorf("distinguishing sticky comment: %w", err)
	}
	if err := eng.Forum.StickyComment(ctx, stickyID); err != nil {
		return fmt.Errorf("stickying comment: %w", err)
	}

	if plan.triggerCommentID != "" {
		if err := eng.Forum.RemoveComment(ctx, plan.triggerCommentID); err != nil {
			return fmt.Errorf("removing trigger comment: %w", err)
		}
	}
	return nil
}

// OP path of the lock workflow.
//
// Any failure is handled here: it is logged, and the OP gets a reply on their
// triggering comment. The error is returned for the caller's information only;
// no action log entry is written for a failed attempt.
func (eng *Engine) LockPost(ctx context.Context, req LockRequest) error {
	ctx, span := tracer.Start(ctx, "LockPost")
	defer span.End()
	span.SetAttributes(attribute.String("post", req.Post.ID))

	logger := eng.Logger.With("workflow", "lock", "post", req.Post.ID, "comment", req.Comment.ID, "scope", req.ScopeID)
	err := eng.executeLock(ctx, logger, lockPlan{
		post:             req.Post,
		stickyText:       req.Settings.RenderSticky(req.Context),
		flairID:          req.Settings.FlairTemplateID,
		triggerCommentID: req.Comment.ID,
	})
	if err != nil {
		workflowCount.WithLabelValues("lock", "error").Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to lock post", "err", err)
		eng.reply(ctx, logger, req.Comment.ID, LockErrorReplyText)
		return err
	}
	workflowCount.WithLabelValues("lock", "ok").Inc()
	logger.Info("post locked by OP", "trigger", req.Trigger)

	eng.ActionLog.Append(ctx, req.Settings.LoggingEnabled, req.ScopeID, actionlog.ActionPostLocked, map[string]any{
		"postId":    req.Post.ID,
		"postTitle": req.Post.Title,
		"authorId":  req.Comment.AuthorID,
		"trigger":   req.Trigger,
		"context":   req.Context,
	})
	eng.recordAction(ctx, logger, req.ScopeID, kindLock, req.Comment.AuthorID, true)
	eng.notify(ctx, logger, ActionNotice{
		Action:        actionlog.ActionPostLocked,
		ScopeID:       req.ScopeID,
		SubredditName: req.Post.SubredditName,
		PostID:        req.Post.ID,
		PostTitle:     req.Post.Title,
		ActorID:       req.Comment.AuthorID,
		Detail:        strings.TrimPrefix(req.Context, " - "),
	})
	return nil
}

// Moderator path of the lock workflow: no rate limit, no quota, and no
// triggering comment. The sticky comment uses the moderator text.
//
// Failures are returned to the caller.
func (eng *Engine) ForceLock(ctx context.Context, postID, moderatorID string) error {
	ctx, span := tracer.Start(ctx, "ForceLock")
	defer span.End()
	span.SetAttributes(attribute.String("post", postID))

	logger := eng.Logger.With("workflow", "force-lock", "post", postID, "moderator", moderatorID)

	post, err := eng.GetPost(ctx, postID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetching post: %w", err)
	}
	cfg, err := eng.Settings.Get(ctx, post.SubredditID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("reading settings for %s: %w", post.SubredditID, err)
	}

	err = eng.executeLock(ctx, logger, lockPlan{
		post:       *post,
		stickyText: strings.Replace(cfg.ModStickyText, settings.ContextPlaceholder, "", 1),
		flairID:    cfg.FlairTemplateID,
	})
	if err != nil {
		workflowCount.WithLabelValues("force-lock", "error").Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to force lock post", "err", err)
		return err
	}
	workflowCount.WithLabelValues("force-lock", "ok").Inc()
	logger.Info("post locked by moderator")

	eng.ActionLog.Append(ctx, cfg.LoggingEnabled, post.SubredditID, actionlog.ActionModForceLock, map[string]any{
		"postId":      post.ID,
		"postTitle":   post.Title,
		"moderatorId": moderatorID,
	})
	eng.recordAction(ctx, logger, post.SubredditID, kindForceLock, moderatorID, false)
	eng.notify(ctx, logger, ActionNotice{
		Action:        actionlog.ActionModForceLock,
		ScopeID:       post.SubredditID,
		SubredditName: post.SubredditName,
		PostID:        post.ID,
		PostTitle:     post.Title,
		ActorID:       moderatorID,
	})
	return nil
}
