package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/latchbot/latch/automod/actionlog"
	"github.com/latchbot/latch/automod/settings"
)

// number of entries included in a published action log
const publishedLogEntries = 10

// Renders action log entries as a markdown post body.
func RenderActionLog(entries []actionlog.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Latch Action Log (Last %d Actions)\n\n", publishedLogEntries)
	for _, e := range entries {
		fmt.Fprintf(&sb, "**%s** - %s\n", e.Action, e.Timestamp)
		details, err := json.MarshalIndent(e.Details, "", "  ")
		if err != nil {
			details = []byte(fmt.Sprintf("%v", e.Details))
		}
		fmt.Fprintf(&sb, "Details: %s\n\n", details)
	}
	return sb.String()
}

// Submits the most recent action log entries for a scope as a new post, and
// returns its URL. Returns ErrNoActions if nothing has been logged.
func (eng *Engine) PublishActionLog(ctx context.Context, scope Scope) (string, error) {
	entries, err := eng.ActionLog.List(ctx, scope.ID, publishedLogEntries)
	if err != nil {
		return "", fmt.Errorf("reading action log: %w", err)
	}
	if len(entries) == 0 {
		return "", ErrNoActions
	}
	title := "Latch Action Log - " + actionlog.FormatTimestamp(time.Now())
	url, err := eng.Forum.SubmitPost(ctx, scope.Name, title, RenderActionLog(entries))
	if err != nil {
		return "", fmt.Errorf("submitting action log post: %w", err)
	}
	eng.Logger.Info("published action log", "scope", scope.ID, "entries", len(entries), "url", url)
	return url, nil
}

// Renders the user and moderator help text from live settings.
func RenderHelp(cfg settings.Settings) string {
	var sb strings.Builder
	sb.WriteString("# Latch Help\n\n")
	sb.WriteString("## For Original Posters (OPs):\n\n")
	sb.WriteString("**Lock Your Post:**\n")
	fmt.Fprintf(&sb, "- Comment with any of these triggers: %s\n", strings.Join(cfg.LockTriggers, ", "))
	if len(cfg.LockTriggers) > 0 {
		fmt.Fprintf(&sb, "- Add optional context: `%s Thanks for the help!`\n", cfg.LockTriggers[0])
	}
	sb.WriteString("- Your post will be locked and marked as answered\n\n")
	sb.WriteString("**Hide Comments:**\n")
	fmt.Fprintf(&sb, "- Reply to any comment with: `%s`\n", cfg.HideTrigger)
	sb.WriteString("- Both the original comment and your reply will be removed\n\n")
	sb.WriteString("## For Moderators:\n\n")
	sb.WriteString("**Settings:**\n")
	sb.WriteString("- Configure triggers, flair templates, and messages through the admin API\n")
	sb.WriteString("- Enable/disable action logging\n")
	sb.WriteString("- Set rate limiting\n\n")
	sb.WriteString("**Admin Actions:**\n")
	sb.WriteString("- Force lock any post\n")
	sb.WriteString("- View action logs\n")
	sb.WriteString("- Publish this help\n\n")
	sb.WriteString("## Rate Limiting:\n")
	if cfg.RateLimitMinutes > 0 {
		fmt.Fprintf(&sb, "- Users can only use commands once every %d minute(s)\n", cfg.RateLimitMinutes)
	} else {
		sb.WriteString("- Currently disabled\n")
	}
	sb.WriteString("- Prevents spam and abuse\n\n")
	sb.WriteString("## Logging:\n")
	if cfg.LoggingEnabled {
		sb.WriteString("- All actions are logged for moderation review\n")
		sb.WriteString("- Logs include timestamps, user IDs, and action details")
	} else {
		sb.WriteString("- Action logging is currently disabled")
	}
	return sb.String()
}

// Submits the help text for a scope as a new post, and returns its URL.
func (eng *Engine) PublishHelp(ctx context.Context, scope Scope) (string, error) {
	cfg, err := eng.Settings.Get(ctx, scope.ID)
	if err != nil {
		return "", fmt.Errorf("reading settings for %s: %w", scope.ID, err)
	}
	url, err := eng.Forum.SubmitPost(ctx, scope.Name, "Latch - Help & Commands", RenderHelp(cfg))
	if err != nil {
		return "", fmt.Errorf("submitting help post: %w", err)
	}
	eng.Logger.Info("published help", "scope", scope.ID, "url", url)
	return url, nil
}
