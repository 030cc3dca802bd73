package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/settings"
	"github.com/latchbot/latch/automod/trigger"
	"github.com/latchbot/latch/pkg/metrics"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "latch",
		Usage:   "OP-triggered post locking and comment hiding for subreddits",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for shared state (rate limits, action logs, settings). in-process state if not set",
			EnvVars: []string{"LATCH_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-id",
			Usage:   "reddit script-app client ID",
			EnvVars: []string{"LATCH_REDDIT_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-secret",
			Usage:   "reddit script-app client secret",
			EnvVars: []string{"LATCH_REDDIT_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:    "reddit-username",
			Usage:   "reddit account the bot acts as (must be a moderator of the configured subreddits)",
			EnvVars: []string{"LATCH_REDDIT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "reddit-password",
			EnvVars: []string{"LATCH_REDDIT_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "reddit-access-token",
			Usage:   "static OAuth bearer token, instead of script-app credentials",
			EnvVars: []string{"LATCH_REDDIT_ACCESS_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "reddit-user-agent",
			Usage:   "User-Agent for reddit API requests",
			Value:   "latch/" + versioninfo.Short(),
			EnvVars: []string{"LATCH_REDDIT_USER_AGENT"},
		},
		&cli.StringFlag{
			Name:    "reddit-base-url",
			Usage:   "reddit OAuth API base URL",
			Value:   "https://oauth.reddit.com",
			EnvVars: []string{"LATCH_REDDIT_BASE_URL"},
		},
		&cli.Float64Flag{
			Name:    "reddit-rate-limit",
			Usage:   "max reddit API requests per second (average)",
			Value:   1.0,
			EnvVars: []string{"LATCH_REDDIT_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"LATCH_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			EnvVars: []string{"LATCH_LOG_FORMAT", "LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		classifyCmd,
		actionlogCmd,
		settingsCmd,
	}

	return app.Run(args)
}

// settings flags are shared by every command which needs a baseline configuration
var settingsFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "lock-triggers",
		Usage:   "comma-separated phrases which lock a post when commented by the OP",
		Value:   settings.DefaultLockTriggers,
		EnvVars: []string{"LATCH_LOCK_TRIGGERS"},
	},
	&cli.StringFlag{
		Name:    "hide-trigger",
		Usage:   "phrase which hides a comment and the OP's reply to it",
		Value:   settings.DefaultHideTrigger,
		EnvVars: []string{"LATCH_HIDE_TRIGGER"},
	},
	&cli.StringFlag{
		Name:    "answered-flair-id",
		Usage:   "flair template ID applied to locked posts",
		EnvVars: []string{"LATCH_ANSWERED_FLAIR_ID"},
	},
	&cli.StringFlag{
		Name:    "sticky-template",
		Usage:   "sticky comment template; {context} is replaced by the OP's trailing text",
		Value:   settings.DefaultStickyTemplate,
		EnvVars: []string{"LATCH_STICKY_TEMPLATE"},
	},
	&cli.BoolFlag{
		Name:    "enable-logging",
		Usage:   "record lock and hide actions in the per-subreddit action log",
		Value:   true,
		EnvVars: []string{"LATCH_ENABLE_LOGGING"},
	},
	&cli.IntFlag{
		Name:    "rate-limit-minutes",
		Usage:   "minimum minutes between triggered actions by the same user",
		Value:   settings.DefaultRateLimitMinutes,
		EnvVars: []string{"LATCH_RATE_LIMIT_MINUTES"},
	},
}

func baseSettings(cctx *cli.Context) settings.Settings {
	s := settings.Defaults()
	s.LockTriggers = trigger.ParseTriggers(cctx.String("lock-triggers"))
	s.HideTrigger = strings.ToLower(strings.TrimSpace(cctx.String("hide-trigger")))
	s.FlairTemplateID = strings.TrimSpace(cctx.String("answered-flair-id"))
	s.StickyTemplate = cctx.String("sticky-template")
	s.LoggingEnabled = cctx.Bool("enable-logging")
	s.RateLimitMinutes = cctx.Int("rate-limit-minutes")
	return s
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"LATCH_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"LATCH_METRICS_LISTEN"},
		},
		&cli.StringSliceFlag{
			Name:    "subreddits",
			Usage:   "subreddit names to poll for new comments. if empty, only the webhook endpoint delivers events",
			EnvVars: []string{"LATCH_SUBREDDITS"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "delay between comment listing polls of each subreddit",
			Value:   10 * time.Second,
			EnvVars: []string{"LATCH_POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "number of comments processed concurrently",
			Value:   8,
			EnvVars: []string{"LATCH_PARALLELISM"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "SQL database for the action log (sqlite or postgres). uses redis or memory if not set",
			EnvVars: []string{"LATCH_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"LATCH_MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"LATCH_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook for action notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "admin-key",
			Usage:   "bearer token for the admin HTTP API. admin routes are disabled if not set",
			EnvVars: []string{"LATCH_ADMIN_KEY"},
		},
		&cli.IntFlag{
			Name:    "quota-actions-day",
			Usage:   "circuit breaker: max OP-triggered actions per subreddit per day (0 to disable)",
			Value:   500,
			EnvVars: []string{"LATCH_QUOTA_ACTIONS_DAY"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "log moderation actions instead of performing them",
			EnvVars: []string{"LATCH_DRY_RUN"},
		},
	}, settingsFlags...),
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx, os.Stdout)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL, err := configOTEL(ctx, "latch")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		svc, err := NewServices(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		srv := NewServer(ServerConfig{
			Logger:   logger,
			Bind:     cctx.String("bind"),
			AdminKey: cctx.String("admin-key"),
		}, svc.Engine, svc.Settings)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return metrics.RunServer(gctx, cctx.String("metrics-listen"))
		})
		g.Go(func() error {
			return srv.RunAPI(gctx)
		})
		if svc.Poller != nil {
			g.Go(func() error {
				return svc.Poller.Run(gctx)
			})
			g.Go(func() error {
				return svc.Poller.RunPersistCursor(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("failed to run latch service: %w", err)
		}
		logger.Info("graceful shutdown complete")
		return nil
	},
}

var classifyCmd = &cli.Command{
	Name:      "classify",
	Usage:     "show which workflow a comment would trigger (no side effects)",
	ArgsUsage: "<comment-body>",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "reply",
			Usage: "treat the comment as a reply to another comment",
		},
		&cli.BoolFlag{
			Name:  "not-op",
			Usage: "treat the comment as written by someone other than the post author",
		},
	}, settingsFlags...),
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() < 1 {
			return fmt.Errorf("expected comment body as an argument")
		}
		cfg := baseSettings(cctx)
		commenter := "op"
		if cctx.Bool("not-op") {
			commenter = "other"
		}
		m := trigger.Classify(trigger.Input{
			Body:            strings.Join(cctx.Args().Slice(), " "),
			PostAuthorID:    "op",
			CommentAuthorID: commenter,
			HasParent:       cctx.Bool("reply"),
			LockTriggers:    cfg.LockTriggers,
			HideTrigger:     cfg.HideTrigger,
		})
		out := map[string]string{
			"kind":    m.Kind.String(),
			"phrase":  m.Phrase,
			"context": m.Context,
		}
		if m.Kind == trigger.Lock {
			out["sticky"] = cfg.RenderSticky(m.Context)
		}
		return printJSON(out)
	},
}

var actionlogCmd = &cli.Command{
	Name:      "actionlog",
	Usage:     "print recent action log entries for a subreddit",
	ArgsUsage: "<subreddit-id>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 10,
		},
		&cli.StringFlag{
			Name:    "database-url",
			EnvVars: []string{"LATCH_DATABASE_URL", "DATABASE_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single subreddit ID")
		}
		logger, err := configLogger(cctx, os.Stderr)
		if err != nil {
			return err
		}
		ctx := context.Background()
		rdb, err := openRedis(ctx, cctx.String("redis-url"))
		if err != nil {
			return err
		}
		store, err := openActionLogStore(cctx.String("database-url"), 1, false, rdb)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("action log requires --database-url or --redis-url")
		}
		entries, err := actionlog.NewActionLog(store, logger).List(ctx, cctx.Args().First(), cctx.Int("limit"))
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var settingsCmd = &cli.Command{
	Name:  "settings",
	Usage: "read or edit per-subreddit settings stored in redis",
	Subcommands: []*cli.Command{
		{
			Name:      "get",
			ArgsUsage: "<subreddit-id>",
			Flags:     settingsFlags,
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 1 {
					return fmt.Errorf("expected a single subreddit ID")
				}
				ctx := context.Background()
				p, err := redisSettings(ctx, cctx)
				if err != nil {
					return err
				}
				s, err := p.Get(ctx, cctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(s)
			},
		},
		{
			Name:      "set",
			Usage:     "set one or more fields, eg: rateLimitMinutes=5",
			ArgsUsage: "<subreddit-id> <field>=<value>...",
			Flags:     settingsFlags,
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() < 2 {
					return fmt.Errorf("expected a subreddit ID and at least one field=value")
				}
				fields := map[string]string{}
				for _, arg := range cctx.Args().Tail() {
					k, v, ok := strings.Cut(arg, "=")
					if !ok {
						return fmt.Errorf("invalid field assignment: %s", arg)
					}
					fields[k] = v
				}
				ctx := context.Background()
				p, err := redisSettings(ctx, cctx)
				if err != nil {
					return err
				}
				return p.Update(ctx, cctx.Args().First(), fields)
			},
		},
	},
}

func redisSettings(ctx context.Context, cctx *cli.Context) (*settings.RedisProvider, error) {
	rdb, err := openRedis(ctx, cctx.String("redis-url"))
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return nil, fmt.Errorf("settings commands require --redis-url")
	}
	return settings.NewRedisProvider(rdb, baseSettings(cctx)), nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
