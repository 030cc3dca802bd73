package reddit

import (
	"encoding/json"
	"math"
	"time"

	"github.com/latchbot/latch/automod/forum"
)

const (
	kindComment = "t1"
	kindPost    = "t3"
)

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentData struct {
	Name           string  `json:"name"`
	AuthorFullname string  `json:"author_fullname"`
	LinkID         string  `json:"link_id"`
	ParentID       string  `json:"parent_id"`
	Body           string  `json:"body"`
	SubredditID    string  `json:"subreddit_id"`
	Subreddit      string  `json:"subreddit"`
	CreatedUTC     float64 `json:"created_utc"`
}

type postData struct {
	Name           string `json:"name"`
	AuthorFullname string `json:"author_fullname"`
	Title          string `json:"title"`
	SubredditID    string `json:"subreddit_id"`
	Subreddit      string `json:"subreddit"`
	Locked         bool   `json:"locked"`
}

func epochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func (d *commentData) toEvent() forum.CommentEvent {
	ev := forum.CommentEvent{
		ID:            d.Name,
		AuthorID:      d.AuthorFullname,
		PostID:        d.LinkID,
		Body:          d.Body,
		SubredditID:   d.SubredditID,
		SubredditName: d.Subreddit,
		CreatedAt:     epochSeconds(d.CreatedUTC),
	}
	// top-level comments have the post as their parent
	if len(d.ParentID) > 3 && d.ParentID[:3] == kindComment+"_" {
		ev.ParentID = d.ParentID
	}
	return ev
}

func (d *postData) toPost() forum.Post {
	return forum.Post{
		ID:            d.Name,
		AuthorID:      d.AuthorFullname,
		Title:         d.Title,
		SubredditID:   d.SubredditID,
		SubredditName: d.Subreddit,
		Locked:        d.Locked,
	}
}
