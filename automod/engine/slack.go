package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendAction(ctx context.Context, notice ActionNotice) error {
	return n.sendSlackMsg(ctx, slackBody(notice))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(n ActionNotice) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔒 Latch Action: `%s`\n", n.Action)
	if n.SubredditName != "" {
		fmt.Fprintf(&sb, "r/%s (`%s`)\n", n.SubredditName, n.ScopeID)
	} else {
		fmt.Fprintf(&sb, "`%s`\n", n.ScopeID)
	}
	if n.PostTitle != "" {
		fmt.Fprintf(&sb, "Post: `%s` %s\n", n.PostID, n.PostTitle)
	} else {
		fmt.Fprintf(&sb, "Post: `%s`\n", n.PostID)
	}
	fmt.Fprintf(&sb, "Actor: `%s`\n", n.ActorID)
	if n.Detail != "" {
		fmt.Fprintf(&sb, "> %s\n", n.Detail)
	}
	return sb.String()
}
