package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/latchbot/latch/automod/forum"
	"github.com/latchbot/latch/pkg/robusthttp"
)

// fetches a single thing by fullname, via /api/info
func (c *Client) info(ctx context.Context, fullname, kind string) (json.RawMessage, error) {
	var l listing
	if err := c.do(ctx, http.MethodGet, "/api/info", url.Values{"id": {fullname}, "raw_json": {"1"}}, &l); err != nil {
		return nil, err
	}
	for _, ch := range l.Data.Children {
		if ch.Kind == kind {
			return ch.Data, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", fullname, forum.ErrNotFound)
}

func (c *Client) GetComment(ctx context.Context, commentID string) (*forum.CommentEvent, error) {
	raw, err := c.info(ctx, commentID, kindComment)
	if err != nil {
		return nil, err
	}
	var d commentData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding comment %s: %w", commentID, err)
	}
	ev := d.toEvent()
	return &ev, nil
}

func (c *Client) GetPost(ctx context.Context, postID string) (*forum.Post, error) {
	raw, err := c.info(ctx, postID, kindPost)
	if err != nil {
		return nil, err
	}
	var d postData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding post %s: %w", postID, err)
	}
	p := d.toPost()
	return &p, nil
}

func (c *Client) LockPost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodPost, "/api/lock", url.Values{"id": {postID}}, nil)
}

func (c *Client) SetPostFlair(ctx context.Context, postID, flairTemplateID string) error {
	_, err := c.postJSON(ctx, "/api/selectflair", url.Values{
		"link":              {postID},
		"flair_template_id": {flairTemplateID},
	})
	return err
}

func (c *Client) SubmitComment(ctx context.Context, parentID, text string) (string, error) {
	env, err := c.postJSON(robusthttp.NoRetry(ctx), "/api/comment", url.Values{
		"thing_id": {parentID},
		"text":     {text},
	})
	if err != nil {
		return "", err
	}
	var data struct {
		Things []thing `json:"things"`
	}
	if err := json.Unmarshal(env.JSON.Data, &data); err != nil {
		return "", fmt.Errorf("decoding comment submission: %w", err)
	}
	for _, th := range data.Things {
		if th.Kind != kindComment {
			continue
		}
		var d commentData
		if err := json.Unmarshal(th.Data, &d); err != nil {
			return "", fmt.Errorf("decoding comment submission: %w", err)
		}
		return d.Name, nil
	}
	return "", fmt.Errorf("comment submission returned no comment")
}

func (c *Client) distinguish(ctx context.Context, commentID string, sticky bool) error {
	_, err := c.postJSON(ctx, "/api/distinguish", url.Values{
		"id":     {commentID},
		"how":    {"yes"},
		"sticky": {strconv.FormatBool(sticky)},
	})
	return err
}

func (c *Client) DistinguishComment(ctx context.Context, commentID string) error {
	return c.distinguish(ctx, commentID, false)
}

// Stickies a comment to the top of its post. Reddit only allows distinguished
// comments to be stickied, so this re-distinguishes.
func (c *Client) StickyComment(ctx context.Context, commentID string) error {
	return c.distinguish(ctx, commentID, true)
}

func (c *Client) RemoveComment(ctx context.Context, commentID string) error {
	return c.do(ctx, http.MethodPost, "/api/remove", url.Values{"id": {commentID}, "spam": {"false"}}, nil)
}

func (c *Client) SubmitPost(ctx context.Context, subredditName, title, text string) (string, error) {
	env, err := c.postJSON(robusthttp.NoRetry(ctx), "/api/submit", url.Values{
		"kind":  {"self"},
		"sr":    {subredditName},
		"title": {title},
		"text":  {text},
	})
	if err != nil {
		return "", err
	}
	var data struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.JSON.Data, &data); err != nil {
		return "", fmt.Errorf("decoding post submission: %w", err)
	}
	return data.URL, nil
}

func (c *Client) ListNewComments(ctx context.Context, subredditName string, limit int) ([]forum.CommentEvent, error) {
	params := url.Values{"raw_json": {"1"}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var l listing
	if err := c.do(ctx, http.MethodGet, "/r/"+url.PathEscape(subredditName)+"/comments", params, &l); err != nil {
		return nil, err
	}
	out := make([]forum.CommentEvent, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		if ch.Kind != kindComment {
			continue
		}
		var d commentData
		if err := json.Unmarshal(ch.Data, &d); err != nil {
			c.logger.Warn("skipping undecodable comment in listing", "subreddit", subredditName, "err", err)
			continue
		}
		out = append(out, d.toEvent())
	}
	return out, nil
}
