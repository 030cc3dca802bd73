package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/automod/settings"

	"github.com/stretchr/testify/assert"
)

func opComment(id, body string) forum.CommentEvent {
	return forum.CommentEvent{
		ID:            id,
		AuthorID:      FixtureOPID,
		PostID:        FixturePostID,
		Body:          body,
		SubredditID:   FixtureScopeID,
		SubredditName: FixtureScopeName,
	}
}

func listLog(t *testing.T, eng *Engine) []actionlog.Entry {
	entries, err := eng.ActionLog.List(context.Background(), FixtureScopeID, 100)
	assert.NoError(t, err)
	return entries
}

func TestLockByOP(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	ev := opComment("t1_lock", "!lock thanks everyone")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	p, err := f.GetPost(ctx, FixturePostID)
	assert.NoError(err)
	assert.True(p.Locked)

	subs := f.CallsTo("SubmitComment")
	assert.Equal(1, len(subs))
	assert.Equal(FixturePostID, subs[0].Args[0])
	sticky := subs[0].Args[1]
	assert.True(strings.HasSuffix(sticky, " - thanks everyone"))
	assert.True(strings.HasPrefix(sticky, "🔒 **Post Locked by OP**"))

	// the sticky is the only comment created by the engine
	var stickyID string
	for id, c := range f.Comments {
		if c.Body == sticky {
			stickyID = id
		}
	}
	assert.True(f.Distinguished[stickyID])
	assert.True(f.Stickied[stickyID])
	assert.True(f.Removed["t1_lock"])
	// no flair configured by default
	assert.Empty(f.CallsTo("SetPostFlair"))

	entries := listLog(t, &eng)
	assert.Equal(1, len(entries))
	assert.Equal(actionlog.ActionPostLocked, entries[0].Action)
	assert.Equal(FixturePostID, entries[0].Details["postId"])
	assert.Equal("How do I close a channel twice?", entries[0].Details["postTitle"])
	assert.Equal(FixtureOPID, entries[0].Details["authorId"])
	assert.Equal("!lock", entries[0].Details["trigger"])
	assert.Equal(" - thanks everyone", entries[0].Details["context"])
}

func TestLockStepOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	assert.NoError(eng.Settings.(*settings.MemProvider).Update(ctx, FixtureScopeID, map[string]string{
		settings.FieldFlairTemplateID: "answered-flair",
	}))

	ev := opComment("t1_lock", "/solved")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	methods := []string{}
	for _, c := range f.Calls {
		switch c.Method {
		case "GetPost", "GetComment":
			continue
		}
		methods = append(methods, c.Method)
	}
	assert.Equal([]string{"LockPost", "SetPostFlair", "SubmitComment", "DistinguishComment", "StickyComment", "RemoveComment"}, methods)
	assert.Equal("answered-flair", f.Flair[FixturePostID])

	// no context: sticky is the bare template
	assert.Equal("🔒 **Post Locked by OP** - This question has been marked as answered.", f.CallsTo("SubmitComment")[0].Args[1])
}

func TestHideByOP(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	ev := opComment("t1_hide", "please !hide this")
	ev.ParentID = FixtureAnswerID
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	assert.True(f.Removed[FixtureAnswerID])
	assert.True(f.Removed["t1_hide"])
	assert.Empty(f.CallsTo("LockPost"))
	assert.Empty(f.CallsTo("SubmitComment"))

	entries := listLog(t, &eng)
	assert.Equal(1, len(entries))
	assert.Equal(actionlog.ActionCommentHidden, entries[0].Action)
	assert.Equal(map[string]any{
		"postId":           FixturePostID,
		"parentCommentId":  FixtureAnswerID,
		"triggerCommentId": "t1_hide",
		"authorId":         FixtureOPID,
	}, entries[0].Details)
}

func TestHideRequiresParent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	// top-level comment: hide trigger does nothing
	ev := opComment("t1_hide", "!hide")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))
	assert.Empty(f.CallsTo("RemoveComment"))
	assert.Empty(listLog(t, &eng))
	// and doesn't consume the rate limit
	assert.True(eng.Limiter.TryAcquire(ctx, FixtureOPID, 2))
}

func TestNonOPIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	ev := forum.CommentEvent{
		ID:          "t1_drive_by",
		AuthorID:    FixtureHelperID,
		PostID:      FixturePostID,
		Body:        "!lock this please",
		SubredditID: FixtureScopeID,
	}
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	assert.Empty(f.CallsTo("LockPost"))
	assert.Empty(f.CallsTo("SubmitComment"))
	assert.Empty(f.CallsTo("RemoveComment"))
	assert.Empty(listLog(t, &eng))
	// no rate limit record was written for the commenter
	assert.True(eng.Limiter.TryAcquire(ctx, FixtureHelperID, 2))
}

func TestRateLimitedSecondLock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	eng.Limiter.Now = func() time.Time { return now }

	first := opComment("t1_first", "!lock")
	f.AddComment(first)
	assert.NoError(eng.ProcessComment(ctx, first))
	assert.Equal(1, len(f.CallsTo("LockPost")))

	now = now.Add(10 * time.Second)
	second := opComment("t1_second", "!lock again")
	f.AddComment(second)
	assert.NoError(eng.ProcessComment(ctx, second))

	// lock workflow not re-entered
	assert.Equal(1, len(f.CallsTo("LockPost")))
	assert.False(f.Removed["t1_second"])

	subs := f.CallsTo("SubmitComment")
	last := subs[len(subs)-1]
	assert.Equal([]string{"t1_second", WaitReplyText}, last.Args)
	assert.Equal(1, len(listLog(t, &eng)))

	// after the window, allowed again
	now = now.Add(2 * time.Minute)
	third := opComment("t1_third", "!lock")
	f.AddComment(third)
	assert.NoError(eng.ProcessComment(ctx, third))
	assert.Equal(2, len(f.CallsTo("LockPost")))
}

func TestLockFailureNotifiesOP(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	f.Fail["LockPost"] = errors.New("403 forbidden")

	ev := opComment("t1_lock", "!lock")
	f.AddComment(ev)
	// workflow errors don't escape the router
	assert.NoError(eng.ProcessComment(ctx, ev))

	subs := f.CallsTo("SubmitComment")
	assert.Equal(1, len(subs))
	assert.Equal([]string{"t1_lock", LockErrorReplyText}, subs[0].Args)
	assert.False(f.Removed["t1_lock"])
	assert.Empty(listLog(t, &eng))
}

func TestLockLaterStepFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	f.Fail["StickyComment"] = errors.New("boom")

	ev := opComment("t1_lock", "!lock")
	f.AddComment(ev)
	err := eng.LockPost(ctx, LockRequest{
		Post:     *f.Posts[FixturePostID],
		Comment:  ev,
		ScopeID:  FixtureScopeID,
		Trigger:  "!lock",
		Settings: settings.Defaults(),
	})
	assert.Error(err)

	// post stays locked, trigger comment is not removed, OP is told
	assert.True(f.Posts[FixturePostID].Locked)
	assert.False(f.Removed["t1_lock"])
	subs := f.CallsTo("SubmitComment")
	assert.Equal([]string{"t1_lock", LockErrorReplyText}, subs[len(subs)-1].Args)
	assert.Empty(listLog(t, &eng))
}

func TestFlairFailureIsNonFatal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	f.Fail["SetPostFlair"] = errors.New("bad flair")

	cfg := settings.Defaults()
	cfg.FlairTemplateID = "missing"
	ev := opComment("t1_lock", "!lock")
	f.AddComment(ev)
	assert.NoError(eng.LockPost(ctx, LockRequest{
		Post:     *f.Posts[FixturePostID],
		Comment:  ev,
		ScopeID:  FixtureScopeID,
		Trigger:  "!lock",
		Settings: cfg,
	}))
	assert.True(f.Removed["t1_lock"])
	assert.Equal(1, len(listLog(t, &eng)))
}

func TestHideFailureIsSilent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	// parent comment doesn't exist
	ev := opComment("t1_hide", "!hide")
	ev.ParentID = "t1_gone"
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	assert.Empty(f.CallsTo("RemoveComment"))
	assert.Empty(f.CallsTo("SubmitComment"))
	assert.Empty(listLog(t, &eng))
}

func TestLoggingDisabled(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	assert.NoError(eng.Settings.(*settings.MemProvider).Update(ctx, FixtureScopeID, map[string]string{
		settings.FieldLoggingEnabled: "false",
	}))

	ev := opComment("t1_lock", "!lock")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))
	assert.True(f.Posts[FixturePostID].Locked)
	assert.Empty(listLog(t, &eng))
}

func TestPreDispatchErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	ev := opComment("t1_lock", "!lock")
	ev.PostID = "t3_missing"
	err := eng.ProcessComment(ctx, ev)
	assert.True(errors.Is(err, forum.ErrNotFound))

	err = eng.ProcessCommentID(ctx, "t1_missing")
	assert.True(errors.Is(err, forum.ErrNotFound))
}

type brokenSettings struct{}

func (brokenSettings) Get(ctx context.Context, scopeID string) (settings.Settings, error) {
	return settings.Settings{}, errors.New("settings store down")
}

func TestSettingsError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Settings = brokenSettings{}
	f := FixtureForum(&eng)

	ev := opComment("t1_lock", "!lock")
	assert.Error(eng.ProcessComment(ctx, ev))
	assert.Empty(f.CallsTo("LockPost"))

	// non-OP comments never read settings
	ev.AuthorID = FixtureHelperID
	assert.NoError(eng.ProcessComment(ctx, ev))
}

type panickyForum struct {
	*forum.MemForum
}

func (panickyForum) LockPost(ctx context.Context, postID string) error {
	panic("unexpected")
}

func (panickyForum) RemoveComment(ctx context.Context, commentID string) error {
	panic("unexpected")
}

func TestPanicRecovered(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Forum = panickyForum{MemForum: FixtureForum(&eng)}

	assert.NotPanics(func() {
		assert.NoError(eng.ProcessComment(ctx, opComment("t1_lock", "!lock")))
	})
}

type distinguishPanicForum struct {
	*forum.MemForum
}

func (distinguishPanicForum) DistinguishComment(ctx context.Context, commentID string) error {
	panic("unexpected")
}

func repliesTo(f *forum.MemForum, commentID string) []string {
	var out []string
	for _, c := range f.CallsTo("SubmitComment") {
		if c.Args[0] == commentID {
			out = append(out, c.Args[1])
		}
	}
	return out
}

func TestLockStepPanicRepliesToOP(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	eng.Forum = distinguishPanicForum{MemForum: f}

	assert.NotPanics(func() {
		assert.NoError(eng.ProcessComment(ctx, opComment("t1_lock", "!lock")))
	})
	assert.True(f.Posts[FixturePostID].Locked)
	assert.Equal([]string{LockErrorReplyText}, repliesTo(f, "t1_lock"))
	assert.False(f.Removed["t1_lock"])
	assert.Empty(listLog(t, &eng))

	err := eng.ForceLock(ctx, FixturePostID, FixtureModeratorID)
	assert.ErrorContains(err, "panic")
}

func TestHideStepPanicIsContained(t *testing.T) {
	assert := assert.New(t)
	eng := EngineTestFixture()
	eng.Forum = panickyForum{MemForum: FixtureForum(&eng)}

	ev := opComment("t1_hide", "!hide")
	ev.ParentID = FixtureAnswerID
	assert.NotPanics(func() {
		assert.Error(eng.HideCommentPair(context.Background(), ev, FixtureScopeID, settings.Defaults()))
	})
}

// cancels the event context once the post is locked, like a webhook caller
// hanging up mid-workflow
type cancelAfterLockForum struct {
	*forum.MemForum
	cancel context.CancelFunc
}

func (f cancelAfterLockForum) LockPost(ctx context.Context, postID string) error {
	err := f.MemForum.LockPost(ctx, postID)
	f.cancel()
	return err
}

func (f cancelAfterLockForum) SubmitComment(ctx context.Context, parentID, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.MemForum.SubmitComment(ctx, parentID, text)
}

func TestLockFailureReplySurvivesCancellation(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	eng.Forum = cancelAfterLockForum{MemForum: f, cancel: cancel}

	assert.NoError(eng.ProcessComment(ctx, opComment("t1_lock", "!lock")))
	assert.True(f.Posts[FixturePostID].Locked)
	assert.Equal([]string{LockErrorReplyText}, repliesTo(f, "t1_lock"))
}

func TestPostCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	for i := 0; i < 3; i++ {
		_, err := eng.GetPost(ctx, FixturePostID)
		assert.NoError(err)
	}
	assert.Equal(1, len(f.CallsTo("GetPost")))

	assert.NoError(eng.PurgePostCache(ctx, FixturePostID))
	_, err := eng.GetPost(ctx, FixturePostID)
	assert.NoError(err)
	assert.Equal(2, len(f.CallsTo("GetPost")))
}

func TestForceLock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	assert.NoError(eng.ForceLock(ctx, FixturePostID, FixtureModeratorID))
	assert.True(f.Posts[FixturePostID].Locked)
	subs := f.CallsTo("SubmitComment")
	assert.Equal(1, len(subs))
	assert.Equal(settings.DefaultModStickyText, subs[0].Args[1])
	assert.Empty(f.CallsTo("RemoveComment"))

	entries := listLog(t, &eng)
	assert.Equal(1, len(entries))
	assert.Equal(actionlog.ActionModForceLock, entries[0].Action)
	assert.Equal(FixtureModeratorID, entries[0].Details["moderatorId"])

	// no rate limiting on the moderator path
	assert.NoError(eng.ForceLock(ctx, FixturePostID, FixtureModeratorID))
	assert.Equal(2, len(listLog(t, &eng)))
}

func TestForceLockFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)
	f.Fail["LockPost"] = errors.New("nope")

	assert.Error(eng.ForceLock(ctx, FixturePostID, FixtureModeratorID))
	assert.Empty(f.CallsTo("SubmitComment"))
	assert.Empty(listLog(t, &eng))

	assert.True(errors.Is(eng.ForceLock(ctx, "t3_missing", FixtureModeratorID), forum.ErrNotFound))
}

func TestQuotaCircuitBreaker(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Config.QuotaActionsDay = 1
	f := FixtureForum(&eng)
	assert.NoError(eng.Settings.(*settings.MemProvider).Update(ctx, FixtureScopeID, map[string]string{
		settings.FieldRateLimitMinutes: "0",
	}))

	first := opComment("t1_first", "!lock")
	f.AddComment(first)
	assert.NoError(eng.ProcessComment(ctx, first))
	second := opComment("t1_second", "!lock")
	f.AddComment(second)
	assert.NoError(eng.ProcessComment(ctx, second))

	assert.Equal(1, len(f.CallsTo("LockPost")))
	assert.False(f.Removed["t1_second"])

	// moderators are not subject to the quota
	assert.NoError(eng.ForceLock(ctx, FixturePostID, FixtureModeratorID))
	assert.Equal(2, len(f.CallsTo("LockPost")))
}

func TestStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	f := FixtureForum(&eng)

	ev := opComment("t1_lock", "!lock")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))
	assert.NoError(eng.ForceLock(ctx, FixturePostID, FixtureModeratorID))

	stats, err := eng.Stats(ctx, FixtureScopeID)
	assert.NoError(err)
	assert.Equal(1, stats.Actions[kindLock]["total"])
	assert.Equal(1, stats.Actions[kindForceLock]["day"])
	assert.Equal(0, stats.Actions[kindHide]["total"])
	assert.Equal(2, stats.Actors["total"])
}

type recordingNotifier struct {
	notices []ActionNotice
}

func (n *recordingNotifier) SendAction(ctx context.Context, notice ActionNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

func TestNotifier(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	rn := &recordingNotifier{}
	eng.Notifier = rn
	f := FixtureForum(&eng)

	ev := opComment("t1_lock", "!lock all sorted")
	f.AddComment(ev)
	assert.NoError(eng.ProcessComment(ctx, ev))

	assert.Equal(1, len(rn.notices))
	assert.Equal(actionlog.ActionPostLocked, rn.notices[0].Action)
	assert.Equal("all sorted", rn.notices[0].Detail)
	assert.Equal(FixtureScopeName, rn.notices[0].SubredditName)
}
