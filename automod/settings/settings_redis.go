package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stores per-scope overrides as a redis hash under `settings:<scopeID>`, layered over Base.
type RedisProvider struct {
	Client *redis.Client
	Base   Settings
}

var _ Editor = (*RedisProvider)(nil)

func NewRedisProvider(client *redis.Client, base Settings) *RedisProvider {
	return &RedisProvider{
		Client: client,
		Base:   base,
	}
}

func settingsKey(scopeID string) string {
	return "settings:" + scopeID
}

func (p *RedisProvider) Get(ctx context.Context, scopeID string) (Settings, error) {
	fields, err := p.Client.HGetAll(ctx, settingsKey(scopeID)).Result()
	if err != nil {
		return Settings{}, err
	}
	s, err := StaticProvider{Settings: p.Base}.Get(ctx, scopeID)
	if err != nil {
		return Settings{}, err
	}
	s, err = s.Apply(fields)
	if err != nil {
		return Settings{}, fmt.Errorf("stored settings for %s: %w", scopeID, err)
	}
	return s, nil
}

// Validates and stores the given fields. Empty values are stored as-is (eg,
// clearing the flair template).
func (p *RedisProvider) Update(ctx context.Context, scopeID string, fields map[string]string) error {
	if _, err := p.Base.Apply(fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	vals := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		vals = append(vals, k, v)
	}
	return p.Client.HSet(ctx, settingsKey(scopeID), vals...).Err()
}
