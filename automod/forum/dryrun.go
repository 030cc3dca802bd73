package forum

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Wraps a Client so that reads go to the real forum, while mutations are only
// logged. Used to trial new settings against live traffic.
type DryRunForum struct {
	Client
	Logger *slog.Logger

	nextID atomic.Int64
}

func NewDryRunForum(c Client, logger *slog.Logger) *DryRunForum {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunForum{
		Client: c,
		Logger: logger.With("dry_run", true),
	}
}

func (f *DryRunForum) LockPost(ctx context.Context, postID string) error {
	f.Logger.Info("would lock post", "post", postID)
	return nil
}

func (f *DryRunForum) SetPostFlair(ctx context.Context, postID, flairTemplateID string) error {
	f.Logger.Info("would set post flair", "post", postID, "flair", flairTemplateID)
	return nil
}

func (f *DryRunForum) SubmitComment(ctx context.Context, parentID, text string) (string, error) {
	id := fmt.Sprintf("t1_dryrun%d", f.nextID.Add(1))
	f.Logger.Info("would submit comment", "parent", parentID, "text", text, "id", id)
	return id, nil
}

func (f *DryRunForum) DistinguishComment(ctx context.Context, commentID string) error {
	f.Logger.Info("would distinguish comment", "comment", commentID)
	return nil
}

func (f *DryRunForum) StickyComment(ctx context.Context, commentID string) error {
	f.Logger.Info("would sticky comment", "comment", commentID)
	return nil
}

func (f *DryRunForum) RemoveComment(ctx context.Context, commentID string) error {
	f.Logger.Info("would remove comment", "comment", commentID)
	return nil
}

func (f *DryRunForum) SubmitPost(ctx context.Context, subredditName, title, text string) (string, error) {
	f.Logger.Info("would submit post", "subreddit", subredditName, "title", title)
	return "", nil
}
