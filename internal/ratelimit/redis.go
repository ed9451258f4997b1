package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments a counter and starts its expiry on the first hit, all
// in one round trip. Returns {count, pttl}.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters between every instance talking to the same
// redis server
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	res, err := hitScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(res) != 2 {
		return Window{}, fmt.Errorf("%w: unexpected script reply %v", ErrUnavailable, res)
	}

	return Window{
		Count:   res[0],
		ResetAt: r.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
