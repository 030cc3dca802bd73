// Narrow views of the forum platform API used by the moderation engine.
//
// Each capability is its own small interface, so components (and tests) only
// depend on the operations they actually perform. Identifiers are opaque
// strings; for Reddit they are "fullnames" (eg, "t1_abc" for comments, "t3_xyz"
// for posts).
package forum

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("forum object not found")

// Snapshot of a submitted comment. Immutable once observed.
type CommentEvent struct {
	ID string `json:"id"`
	// ID of the parent comment; empty for top-level comments (whose parent is the post itself)
	ParentID      string    `json:"parentId,omitempty"`
	AuthorID      string    `json:"authorId"`
	PostID        string    `json:"postId"`
	Body          string    `json:"body"`
	SubredditID   string    `json:"subredditId"`
	SubredditName string    `json:"subredditName"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (c *CommentEvent) IsReply() bool {
	return c.ParentID != ""
}

type Post struct {
	ID            string `json:"id"`
	AuthorID      string `json:"authorId"`
	Title         string `json:"title"`
	SubredditID   string `json:"subredditId"`
	SubredditName string `json:"subredditName"`
	Locked        bool   `json:"locked"`
}

type CommentReader interface {
	GetComment(ctx context.Context, commentID string) (*CommentEvent, error)
}

type PostReader interface {
	GetPost(ctx context.Context, postID string) (*Post, error)
}

type PostLocker interface {
	LockPost(ctx context.Context, postID string) error
}

type FlairSetter interface {
	SetPostFlair(ctx context.Context, postID, flairTemplateID string) error
}

type CommentSubmitter interface {
	// Posts a comment in reply to parentID, which is either a post (top-level
	// comment) or a comment. Returns the new comment's ID.
	SubmitComment(ctx context.Context, parentID, text string) (string, error)
}

type CommentDistinguisher interface {
	DistinguishComment(ctx context.Context, commentID string) error
	StickyComment(ctx context.Context, commentID string) error
}

type CommentRemover interface {
	RemoveComment(ctx context.Context, commentID string) error
}

type PostSubmitter interface {
	// Creates a self (text) post. Returns the permalink URL of the new post.
	SubmitPost(ctx context.Context, subredditName, title, text string) (string, error)
}

type CommentLister interface {
	// Returns the most recent comments in the subreddit, newest first.
	ListNewComments(ctx context.Context, subredditName string, limit int) ([]CommentEvent, error)
}

// Full set of capabilities used by the engine and consumer.
type Client interface {
	CommentReader
	PostReader
	PostLocker
	FlairSetter
	CommentSubmitter
	CommentDistinguisher
	CommentRemover
	PostSubmitter
	CommentLister
}
