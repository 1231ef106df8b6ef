// Package ratelimit throttles login attempts with a Redis fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow counts one attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// Nop allows everything. Used when Redis is not configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }

// INCR and PEXPIRE run atomically; the TTL is set on the first hit of a window.
var fixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

type FixedWindow struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewFixedWindow(rdb redis.Scripter, prefix string, limit int, window time.Duration) *FixedWindow {
	if window < time.Millisecond {
		window = time.Second
	}
	return &FixedWindow{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindow.Run(ctx, l.rdb, []string{l.prefix + key}, l.limit, l.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return res == 1, nil
}

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
