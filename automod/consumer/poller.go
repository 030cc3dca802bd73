package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/latchbot/latch/automod/engine"
	"github.com/latchbot/latch/automod/forum"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// redis hash of subreddit name to cursor (unix millis of the newest comment handled)
var pollerCursorKey = "latch/commentCursor"

// Polls subreddit comment listings and feeds new comments to the engine.
//
// Listings are newest-first and overlap between polls; comments are
// de-duplicated with an LRU of recently seen IDs, and by a per-subreddit
// creation-time cursor which is periodically persisted to redis (if
// configured).
type CommentPoller struct {
	Logger      *slog.Logger
	RedisClient *redis.Client
	Lister      forum.CommentLister
	Engine      *engine.Engine
	Subreddits  []string
	// number of comments handled concurrently
	Parallelism int
	// listing page size
	Limit int
	// delay between polls of the same subreddit
	Interval time.Duration

	seen    *lru.Cache[string, struct{}]
	cursors *xsync.MapOf[string, int64]
}

func NewCommentPoller(logger *slog.Logger, lister forum.CommentLister, eng *engine.Engine, subreddits []string) (*CommentPoller, error) {
	seen, err := lru.New[string, struct{}](10_000)
	if err != nil {
		return nil, err
	}
	return &CommentPoller{
		Logger:      logger,
		Lister:      lister,
		Engine:      eng,
		Subreddits:  subreddits,
		Parallelism: 8,
		Limit:       100,
		Interval:    10 * time.Second,
		seen:        seen,
		cursors:     xsync.NewMapOf[string, int64](),
	}, nil
}

func (cp *CommentPoller) Run(ctx context.Context) error {
	if cp.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if len(cp.Subreddits) == 0 {
		return fmt.Errorf("no subreddits configured")
	}

	if err := cp.ReadLastCursors(ctx); err != nil {
		return err
	}
	// without a prior cursor, skip the backlog and start from now
	now := time.Now().UnixMilli()
	for _, sub := range cp.Subreddits {
		cp.cursors.LoadOrStore(sub, now)
	}

	cp.Logger.Info("polling subreddit comments", "subreddits", cp.Subreddits, "interval", cp.Interval.String())
	for {
		anyNew := false
		for _, sub := range cp.Subreddits {
			n, err := cp.PollOnce(ctx, sub)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				pollErrorCount.WithLabelValues(sub).Inc()
				cp.Logger.Warn("comment listing failed; will retry", "subreddit", sub, "err", err)
				continue
			}
			if n > 0 {
				anyNew = true
			}
		}
		if !anyNew {
			cp.Logger.Debug("... comment poller sleeping", "period", cp.Interval.String())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cp.Interval):
		}
	}
}

// Fetches one listing page for the subreddit and processes any new comments,
// oldest first. Returns the number of comments dispatched.
func (cp *CommentPoller) PollOnce(ctx context.Context, subreddit string) (int, error) {
	comments, err := cp.Lister.ListNewComments(ctx, subreddit, cp.Limit)
	if err != nil {
		return 0, err
	}
	since, _ := cp.cursors.Load(subreddit)

	fresh := []forum.CommentEvent{}
	for _, c := range comments {
		if c.CreatedAt.UnixMilli() < since {
			continue
		}
		if cp.seen.Contains(c.ID) {
			continue
		}
		fresh = append(fresh, c)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})

	var eg errgroup.Group
	eg.SetLimit(max(cp.Parallelism, 1))
	for _, c := range fresh {
		cp.seen.Add(c.ID, struct{}{})
		commentsSeenCount.WithLabelValues(subreddit).Inc()
		eg.Go(func() error {
			if err := cp.Engine.ProcessComment(ctx, c); err != nil {
				processErrorCount.Inc()
				cp.Logger.Error("engine failed to process comment", "comment", c.ID, "subreddit", subreddit, "err", err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(fresh) > 0 {
		newest := fresh[len(fresh)-1].CreatedAt.UnixMilli()
		if newest > since {
			cp.cursors.Store(subreddit, newest)
		}
	}
	return len(fresh), nil
}

// Returns the current cursor for a subreddit, and whether one is set.
func (cp *CommentPoller) Cursor(subreddit string) (time.Time, bool) {
	v, ok := cp.cursors.Load(subreddit)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(v).UTC(), true
}

func (cp *CommentPoller) SetCursor(subreddit string, t time.Time) {
	cp.cursors.Store(subreddit, t.UnixMilli())
}

func (cp *CommentPoller) ReadLastCursors(ctx context.Context) error {
	// if redis isn't configured, just skip
	if cp.RedisClient == nil {
		cp.Logger.Info("redis not configured, skipping comment cursor read")
		return nil
	}
	vals, err := cp.RedisClient.HGetAll(ctx, pollerCursorKey).Result()
	if err != nil {
		return err
	}
	for _, sub := range cp.Subreddits {
		raw, ok := vals[sub]
		if !ok {
			cp.Logger.Info("no pre-existing comment cursor in redis", "subreddit", sub)
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid comment cursor for %s: %w", sub, err)
		}
		cp.cursors.Store(sub, ms)
		cp.Logger.Info("found prior comment cursor in redis", "subreddit", sub, "cursor", time.UnixMilli(ms).UTC())
	}
	return nil
}

func (cp *CommentPoller) PersistCursors(ctx context.Context) error {
	// if redis isn't configured, just skip
	if cp.RedisClient == nil {
		return nil
	}
	fields := map[string]any{}
	cp.cursors.Range(func(sub string, ms int64) bool {
		fields[sub] = strconv.FormatInt(ms, 10)
		return true
	})
	if len(fields) == 0 {
		return nil
	}
	return cp.RedisClient.HSet(ctx, pollerCursorKey, fields).Err()
}

// this method runs in a loop, persisting the current cursor state every 5 seconds
func (cp *CommentPoller) RunPersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if cp.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cp.Logger.Info("persisting final comment cursors")
			// the run context is already cancelled
			if err := cp.PersistCursors(context.Background()); err != nil {
				cp.Logger.Error("failed to persist comment cursors", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := cp.PersistCursors(ctx); err != nil {
				cp.Logger.Error("failed to persist comment cursors", "err", err)
			}
		}
	}
}
