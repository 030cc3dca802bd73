package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/cachestore"
	"github.com/latchbot/latch/automod/countstore"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/ratelimit"
	"github.com/latchbot/latch/automod/settings"
	"github.com/latchbot/latch/automod/trigger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	WaitReplyText      = "⚠️ Please wait before using this command again."
	LockErrorReplyText = "❌ Error locking post. Please contact moderators."
)

var ErrNoActions = errors.New("no actions logged yet")

const replyTimeout = 30 * time.Second

var tracer = otel.Tracer("latch/engine")

// runtime for routing comment events, gating them, and executing the resulting
// moderation workflows.
//
// Several pointer fields (Forum, Settings, Limiter, ActionLog, Counters) must
// not be nil. Cache and Notifier are optional.
type Engine struct {
	Logger    *slog.Logger
	Forum     forum.Client
	Settings  settings.Provider
	Limiter   *ratelimit.Limiter
	ActionLog *actionlog.ActionLog
	Counters  countstore.CountStore
	Cache     cachestore.CacheStore
	Notifier  Notifier
	Config    EngineConfig
}

type EngineConfig struct {
	// number of OP-triggered workflows allowed per scope per (UTC) day, as a
	// circuit breaker. zero disables the quota
	QuotaActionsDay int
}

// A moderation scope: a subreddit, by ID (for state) and name (for submitting posts).
type Scope struct {
	ID   string
	Name string
}

// Routes a single comment-creation event. Only comments by the post's author
// are considered; everything else is ignored without side effects.
//
// The returned error only covers failures before any workflow was dispatched
// (fetching the post or settings). Workflow failures are handled, logged, and
// notified inside the workflow.
func (eng *Engine) ProcessComment(ctx context.Context, ev forum.CommentEvent) (err error) {
	ctx, span := tracer.Start(ctx, "ProcessComment")
	defer span.End()
	span.SetAttributes(
		attribute.String("comment", ev.ID),
		attribute.String("post", ev.PostID),
	)

	outcome := "ignored"
	start := time.Now()
	defer func() {
		eventProcessDuration.Observe(time.Since(start).Seconds())
		eventProcessCount.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("outcome", outcome))
	}()

	logger := eng.Logger.With("comment", ev.ID, "post", ev.PostID, "author", ev.AuthorID)

	// similar to an HTTP server, we want to recover any panics from workflow execution
	defer func() {
		if r := recover(); r != nil {
			logger.Error("comment event execution exception", "err", r)
			eventPanicCount.Inc()
			outcome = "panic"
			span.SetStatus(codes.Error, "panic")
		}
	}()

	post, err := eng.GetPost(ctx, ev.PostID)
	if err != nil {
		eventErrorCount.Inc()
		outcome = "error"
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetching post: %w", err)
	}
	if ev.AuthorID == "" || ev.AuthorID != post.AuthorID {
		return nil
	}

	scopeID := ev.SubredditID
	if scopeID == "" {
		scopeID = post.SubredditID
	}
	cfg, err := eng.Settings.Get(ctx, scopeID)
	if err != nil {
		eventErrorCount.Inc()
		outcome = "error"
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("reading settings for %s: %w", scopeID, err)
	}

	match := trigger.Classify(trigger.Input{
		Body:            ev.Body,
		PostAuthorID:    post.AuthorID,
		CommentAuthorID: ev.AuthorID,
		HasParent:       ev.IsReply(),
		LockTriggers:    cfg.LockTriggers,
		HideTrigger:     cfg.HideTrigger,
	})
	if match.Kind == trigger.None {
		outcome = "none"
		return nil
	}
	logger = logger.With("trigger", match.Kind.String(), "scope", scopeID)

	if !eng.withinQuota(ctx, logger, scopeID) {
		outcome = "quota"
		return nil
	}

	if !eng.Limiter.TryAcquire(ctx, ev.AuthorID, cfg.RateLimitMinutes) {
		outcome = "gated"
		logger.Info("trigger rate limited")
		eng.reply(ctx, logger, ev.ID, WaitReplyText)
		return nil
	}

	switch match.Kind {
	case trigger.Lock:
		outcome = "lock"
		_ = eng.LockPost(ctx, LockRequest{
			Post:     *post,
			Comment:  ev,
			ScopeID:  scopeID,
			Trigger:  match.Phrase,
			Context:  match.Context,
			Settings: cfg,
		})
	case trigger.Hide:
		outcome = "hide"
		_ = eng.HideCommentPair(ctx, ev, scopeID, cfg)
	}
	return nil
}

// Fetches a comment by ID and routes it.
func (eng *Engine) ProcessCommentID(ctx context.Context, commentID string) error {
	ev, err := eng.Forum.GetComment(ctx, commentID)
	if err != nil {
		eventErrorCount.Inc()
		return fmt.Errorf("fetching comment: %w", err)
	}
	return eng.ProcessComment(ctx, *ev)
}

// Returns post metadata, through the cache if one is configured. Cache failures
// fall through to the forum API.
func (eng *Engine) GetPost(ctx context.Context, postID string) (*forum.Post, error) {
	if eng.Cache != nil {
		p, ok, err := cachestore.GetJSON[forum.Post](ctx, eng.Cache, "post", postID)
		if err != nil {
			eng.Logger.Warn("post cache read failed", "post", postID, "err", err)
		} else if ok {
			return p, nil
		}
	}

	postFetchCount.Inc()
	p, err := eng.Forum.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if eng.Cache != nil {
		if err := cachestore.SetJSON(ctx, eng.Cache, "post", postID, p); err != nil {
			eng.Logger.Warn("post cache write failed", "post", postID, "err", err)
		}
	}
	return p, nil
}

// purge cached metadata for a post
func (eng *Engine) PurgePostCache(ctx context.Context, postID string) error {
	if eng.Cache == nil {
		return nil
	}
	return eng.Cache.Purge(ctx, "post", postID)
}

// Posts a reply to a comment. Failures are logged only.
//
// The reply is sent even if ctx was cancelled part way through a workflow,
// since it is how the actor learns about the failure.
func (eng *Engine) reply(ctx context.Context, logger *slog.Logger, commentID, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if _, err := eng.Forum.SubmitComment(ctx, commentID, text); err != nil {
		logger.Error("failed to reply to comment", "reply_to", commentID, "err", err)
	}
}
