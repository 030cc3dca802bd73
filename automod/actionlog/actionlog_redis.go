package actionlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stores each scope's log as a single JSON array under `actionlog:<scopeID>`.
//
// Append is a read-modify-write of the whole array and is not atomic:
// concurrent appends to the same scope can lose entries (last writer wins). Use
// SQLStore where that matters.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func (s *RedisStore) load(ctx context.Context, scopeID string) ([]Entry, error) {
	raw, err := s.Client.Get(ctx, logKey(scopeID)).Bytes()
	if err == redis.Nil {
		return []Entry{}, nil
	} else if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding action log for %s: %w", scopeID, err)
	}
	return entries, nil
}

func (s *RedisStore) Append(ctx context.Context, scopeID string, entry Entry) error {
	existing, err := s.load(ctx, scopeID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(prependBounded(existing, entry))
	if err != nil {
		return err
	}
	// no expiration; entries are only evicted by capacity
	return s.Client.Set(ctx, logKey(scopeID), raw, 0).Err()
}

func (s *RedisStore) List(ctx context.Context, scopeID string, limit int) ([]Entry, error) {
	entries, err := s.load(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	return truncate(entries, limit), nil
}
