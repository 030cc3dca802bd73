// Moderator-editable runtime settings.
//
// Settings are read fresh for every event (scoped per subreddit) and passed
// down as a plain value, so edits take effect on the next event without any
// restart or cache invalidation.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/latchbot/latch/automod/trigger"
)

const (
	DefaultLockTriggers     = "!lock, /solved"
	DefaultHideTrigger      = "!hide"
	DefaultStickyTemplate   = "🔒 **Post Locked by OP** - This question has been marked as answered.{context}"
	DefaultModStickyText    = "🔒 **Post Locked by Moderator** - This question has been marked as answered."
	DefaultRateLimitMinutes = 2

	// placeholder in StickyTemplate replaced by the OP's extracted context
	ContextPlaceholder = "{context}"
)

type Settings struct {
	LockTriggers     []string `json:"lockTriggers"`
	HideTrigger      string   `json:"hideTrigger"`
	FlairTemplateID  string   `json:"answeredFlairId"`
	StickyTemplate   string   `json:"stickyTemplate"`
	ModStickyText    string   `json:"modStickyText"`
	LoggingEnabled   bool     `json:"enableLogging"`
	RateLimitMinutes int      `json:"rateLimitMinutes"`
}

func Defaults() Settings {
	return Settings{
		LockTriggers:     trigger.ParseTriggers(DefaultLockTriggers),
		HideTrigger:      DefaultHideTrigger,
		StickyTemplate:   DefaultStickyTemplate,
		ModStickyText:    DefaultModStickyText,
		LoggingEnabled:   true,
		RateLimitMinutes: DefaultRateLimitMinutes,
	}
}

// Renders the OP sticky comment. Only the first placeholder is substituted.
func (s Settings) RenderSticky(context string) string {
	return strings.Replace(s.StickyTemplate, ContextPlaceholder, context, 1)
}

// Read-only access to settings for a moderation scope.
type Provider interface {
	Get(ctx context.Context, scopeID string) (Settings, error)
}

// Provider which also accepts moderator edits.
type Editor interface {
	Provider
	Update(ctx context.Context, scopeID string, fields map[string]string) error
}

// Field names accepted by Apply (and stored by RedisProvider).
const (
	FieldLockTriggers     = "lockTriggers"
	FieldHideTrigger      = "hideTrigger"
	FieldFlairTemplateID  = "answeredFlairId"
	FieldStickyTemplate   = "stickyTemplate"
	FieldModStickyText    = "modStickyText"
	FieldLoggingEnabled   = "enableLogging"
	FieldRateLimitMinutes = "rateLimitMinutes"
)

// Overlays string-encoded fields (as stored in a redis hash, or sent by the
// admin API) on top of s. Unknown fields are an error.
func (s Settings) Apply(fields map[string]string) (Settings, error) {
	for k, v := range fields {
		switch k {
		case FieldLockTriggers:
			s.LockTriggers = trigger.ParseTriggers(v)
		case FieldHideTrigger:
			s.HideTrigger = strings.ToLower(strings.TrimSpace(v))
		case FieldFlairTemplateID:
			s.FlairTemplateID = strings.TrimSpace(v)
		case FieldStickyTemplate:
			s.StickyTemplate = v
		case FieldModStickyText:
			s.ModStickyText = v
		case FieldLoggingEnabled:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return s, fmt.Errorf("invalid %s value: %q", k, v)
			}
			s.LoggingEnabled = b
		case FieldRateLimitMinutes:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				return s, fmt.Errorf("invalid %s value: %q", k, v)
			}
			s.RateLimitMinutes = n
		default:
			return s, fmt.Errorf("unknown settings field: %s", k)
		}
	}
	return s, nil
}

// Always returns the same settings, regardless of scope. Used when settings come from CLI flags.
type StaticProvider struct {
	Settings Settings
}

func (p StaticProvider) Get(ctx context.Context, scopeID string) (Settings, error) {
	s := p.Settings
	s.LockTriggers = append([]string{}, p.Settings.LockTriggers...)
	return s, nil
}
