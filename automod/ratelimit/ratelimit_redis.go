package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// GET, compare, and SET with expiry in a single server-side script. Timestamps
// are stored as decimal epoch milliseconds.
var checkAndSetScript = redis.NewScript(`
local last = redis.call("GET", KEYS[1])
if last then
	if tonumber(ARGV[1]) - tonumber(last) < tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func (s *RedisStore) CheckAndSet(ctx context.Context, actorID string, now time.Time, window time.Duration) (bool, error) {
	res, err := checkAndSetScript.Run(ctx, s.Client, []string{recordKey(actorID)}, now.UnixMilli(), window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) Clear(ctx context.Context, actorID string) error {
	return s.Client.Del(ctx, recordKey(actorID)).Err()
}
