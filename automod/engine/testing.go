package engine

import (
	"log/slog"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/cachestore"
	"github.com/latchbot/latch/automod/countstore"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/ratelimit"
	"github.com/latchbot/latch/automod/settings"
)

// Identifiers of the objects pre-loaded by EngineTestFixture.
const (
	FixtureScopeID     = "t5_golang"
	FixtureScopeName   = "golang"
	FixturePostID      = "t3_question"
	FixtureOPID        = "t2_op"
	FixtureHelperID    = "t2_helper"
	FixtureAnswerID    = "t1_answer"
	FixtureModeratorID = "t2_mod"
)

// Engine backed entirely by in-memory stores and a MemForum, with default
// settings. The forum contains one post by FixtureOPID, with one top-level
// answer by FixtureHelperID.
func EngineTestFixture() Engine {
	f := forum.NewMemForum()
	f.AddPost(forum.Post{
		ID:            FixturePostID,
		AuthorID:      FixtureOPID,
		Title:         "How do I close a channel twice?",
		SubredditID:   FixtureScopeID,
		SubredditName: FixtureScopeName,
	})
	f.AddComment(forum.CommentEvent{
		ID:            FixtureAnswerID,
		AuthorID:      FixtureHelperID,
		PostID:        FixturePostID,
		Body:          "you can't, it panics",
		SubredditID:   FixtureScopeID,
		SubredditName: FixtureScopeName,
		CreatedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	logger := slog.Default()
	return Engine{
		Logger:    logger,
		Forum:     f,
		Settings:  settings.NewMemProvider(settings.Defaults()),
		Limiter:   ratelimit.NewLimiter(ratelimit.NewMemStore(), logger),
		ActionLog: actionlog.NewActionLog(actionlog.NewMemStore(), logger),
		Counters:  countstore.NewMemCountStore(),
		Cache:     cachestore.NewMemCacheStore(100, time.Hour),
	}
}

// Returns the fixture's in-memory forum. Panics if the engine was not built by
// EngineTestFixture.
func FixtureForum(eng *Engine) *forum.MemForum {
	return eng.Forum.(*forum.MemForum)
}
