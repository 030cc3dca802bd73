package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/cachestore"
	"github.com/latchbot/latch/automod/consumer"
	"github.com/latchbot/latch/automod/countstore"
	"github.com/latchbot/latch/automod/engine"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/forum/reddit"
	"github.com/latchbot/latch/automod/ratelimit"
	"github.com/latchbot/latch/automod/settings"
	"github.com/latchbot/latch/pkg/robusthttp"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// post metadata rarely changes, and locks purge it explicitly
const postCacheTTL = 30 * time.Minute

// Everything the run command wires together.
type Services struct {
	Engine   *engine.Engine
	Settings settings.Editor
	// nil if no subreddits are configured for polling
	Poller *consumer.CommentPoller

	rdb *redis.Client
	db  *gorm.DB
}

func NewServices(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (*Services, error) {
	svc := &Services{}

	rdb, err := openRedis(ctx, cctx.String("redis-url"))
	if err != nil {
		return nil, err
	}
	svc.rdb = rdb

	rc, err := reddit.NewClient(reddit.Config{
		BaseURL:           cctx.String("reddit-base-url"),
		ClientID:          cctx.String("reddit-client-id"),
		ClientSecret:      cctx.String("reddit-client-secret"),
		Username:          cctx.String("reddit-username"),
		Password:          cctx.String("reddit-password"),
		AccessToken:       cctx.String("reddit-access-token"),
		UserAgent:         cctx.String("reddit-user-agent"),
		RequestsPerSecond: cctx.Float64("reddit-rate-limit"),
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring reddit client: %w", err)
	}
	var fc forum.Client = rc
	if cctx.Bool("dry-run") {
		logger.Warn("dry-run mode: moderation actions will only be logged")
		fc = forum.NewDryRunForum(rc, logger)
	}

	base := baseSettings(cctx)
	var limits ratelimit.Store
	var counters countstore.CountStore
	var cache cachestore.CacheStore
	if rdb != nil {
		svc.Settings = settings.NewRedisProvider(rdb, base)
		limits = ratelimit.NewRedisStore(rdb)
		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, postCacheTTL)
	} else {
		logger.Warn("no redis configured; rate limits, settings, and action logs are in-process only")
		svc.Settings = settings.NewMemProvider(base)
		limits = ratelimit.NewMemStore()
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, postCacheTTL)
	}

	logs, err := openActionLogStore(cctx.String("database-url"), cctx.Int("max-db-connections"), cctx.Bool("db-tracing"), rdb)
	if err != nil {
		return nil, err
	}
	if sqlStore, ok := logs.(*actionlog.SQLStore); ok {
		svc.db = sqlStore.DB
	}
	if logs == nil {
		logs = actionlog.NewMemStore()
	}

	svc.Engine = &engine.Engine{
		Logger:    logger,
		Forum:     fc,
		Settings:  svc.Settings,
		Limiter:   ratelimit.NewLimiter(limits, logger),
		ActionLog: actionlog.NewActionLog(logs, logger),
		Counters:  counters,
		Cache:     cache,
		Config: engine.EngineConfig{
			QuotaActionsDay: cctx.Int("quota-actions-day"),
		},
	}
	if url := cctx.String("slack-webhook-url"); url != "" {
		logger.Info("configuring slack action notifications")
		svc.Engine.Notifier = &engine.SlackNotifier{
			SlackWebhookURL: url,
			Client:          robusthttp.NewClient(robusthttp.WithLogger(logger), robusthttp.WithMaxRetries(2)),
		}
	}

	if subs := cctx.StringSlice("subreddits"); len(subs) > 0 {
		cp, err := consumer.NewCommentPoller(logger, fc, svc.Engine, subs)
		if err != nil {
			return nil, err
		}
		cp.RedisClient = rdb
		cp.Interval = cctx.Duration("poll-interval")
		cp.Parallelism = cctx.Int("parallelism")
		svc.Poller = cp
	}
	return svc, nil
}

func (svc *Services) Close() {
	if svc.rdb != nil {
		if err := svc.rdb.Close(); err != nil {
			slog.Error("closing redis client", "err", err)
		}
	}
	if svc.db != nil {
		if sqldb, err := svc.db.DB(); err == nil {
			sqldb.Close() // nolint:errcheck
		}
	}
}

// Returns a nil client (and no error) if the URL is empty.
func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %v", err)
	}
	return rdb, nil
}

// Picks the action log backend: SQL if a database URL is given, otherwise
// redis. Returns nil if neither is configured.
func openActionLogStore(dbURL string, maxConns int, dbTracing bool, rdb *redis.Client) (actionlog.Store, error) {
	if dbURL != "" {
		db, err := actionlog.OpenDatabase(dbURL, maxConns)
		if err != nil {
			return nil, fmt.Errorf("opening action log database: %w", err)
		}
		if dbTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, err
			}
		}
		store, err := actionlog.NewSQLStore(db)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	if rdb != nil {
		return actionlog.NewRedisStore(rdb), nil
	}
	return nil, nil
}
