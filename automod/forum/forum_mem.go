package forum

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// One recorded mutation (or read) against MemForum.
type Call struct {
	Method string
	Args   []string
}

// In-memory forum, for tests and dry runs. Records every call, and can be told
// to fail specific methods.
type MemForum struct {
	mu sync.Mutex

	Posts    map[string]*Post
	Comments map[string]*CommentEvent
	Removed  map[string]bool
	Flair    map[string]string
	// comment IDs which have been distinguished / stickied
	Distinguished map[string]bool
	Stickied      map[string]bool
	// self posts created through SubmitPost, keyed by URL
	Submissions map[string]string

	Calls []Call
	// method name to error returned by that method
	Fail map[string]error

	nextID int
}

var _ Client = (*MemForum)(nil)

func NewMemForum() *MemForum {
	return &MemForum{
		Posts:         make(map[string]*Post),
		Comments:      make(map[string]*CommentEvent),
		Removed:       make(map[string]bool),
		Flair:         make(map[string]string),
		Distinguished: make(map[string]bool),
		Stickied:      make(map[string]bool),
		Submissions:   make(map[string]string),
		Fail:          make(map[string]error),
	}
}

func (f *MemForum) AddPost(p Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Posts[p.ID] = &p
}

func (f *MemForum) AddComment(c CommentEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Comments[c.ID] = &c
}

// Returns the recorded calls for a single method.
func (f *MemForum) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Call{}
	for _, c := range f.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// records the call, and returns any configured failure. caller must hold the lock.
func (f *MemForum) record(method string, args ...string) error {
	f.Calls = append(f.Calls, Call{Method: method, Args: args})
	return f.Fail[method]
}

func (f *MemForum) GetComment(ctx context.Context, commentID string) (*CommentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetComment", commentID); err != nil {
		return nil, err
	}
	c, ok := f.Comments[commentID]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (f *MemForum) GetPost(ctx context.Context, postID string) (*Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPost", postID); err != nil {
		return nil, err
	}
	p, ok := f.Posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (f *MemForum) LockPost(ctx context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("LockPost", postID); err != nil {
		return err
	}
	p, ok := f.Posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	p.Locked = true
	return nil
}

func (f *MemForum) SetPostFlair(ctx context.Context, postID, flairTemplateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetPostFlair", postID, flairTemplateID); err != nil {
		return err
	}
	f.Flair[postID] = flairTemplateID
	return nil
}

func (f *MemForum) SubmitComment(ctx context.Context, parentID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SubmitComment", parentID, text); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("t1_mem%d", f.nextID)
	c := CommentEvent{
		ID:       id,
		AuthorID: "t2_latchbot",
		Body:     text,
	}
	if p, ok := f.Posts[parentID]; ok {
		c.PostID = p.ID
		c.SubredditID = p.SubredditID
		c.SubredditName = p.SubredditName
	} else if parent, ok := f.Comments[parentID]; ok {
		c.ParentID = parent.ID
		c.PostID = parent.PostID
		c.SubredditID = parent.SubredditID
		c.SubredditName = parent.SubredditName
	}
	f.Comments[id] = &c
	return id, nil
}

func (f *MemForum) DistinguishComment(ctx context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DistinguishComment", commentID); err != nil {
		return err
	}
	f.Distinguished[commentID] = true
	return nil
}

func (f *MemForum) StickyComment(ctx context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("StickyComment", commentID); err != nil {
		return err
	}
	f.Stickied[commentID] = true
	return nil
}

func (f *MemForum) RemoveComment(ctx context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveComment", commentID); err != nil {
		return err
	}
	f.Removed[commentID] = true
	return nil
}

func (f *MemForum) SubmitPost(ctx context.Context, subredditName, title, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SubmitPost", subredditName, title, text); err != nil {
		return "", err
	}
	f.nextID++
	url := fmt.Sprintf("https://forum.example.com/r/%s/comments/mem%d/", subredditName, f.nextID)
	f.Submissions[url] = text
	return url, nil
}

func (f *MemForum) ListNewComments(ctx context.Context, subredditName string, limit int) ([]CommentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListNewComments", subredditName); err != nil {
		return nil, err
	}
	out := []CommentEvent{}
	for _, c := range f.Comments {
		if c.SubredditName == subredditName && !f.Removed[c.ID] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
