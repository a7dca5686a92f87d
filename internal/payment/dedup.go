package payment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper remembers processed webhook event ids so redeliveries can
// be acknowledged without touching the database. A nil client turns every
// method into a no-op that lets the event through.
type RedisDeduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "stripe:event:"}
}

// Claim marks id as being processed. It returns false when another
// delivery of the same event already claimed it. Redis errors let the
// event through; the booking status check stays authoritative.
func (d *RedisDeduper) Claim(ctx context.Context, id string) bool {
	if d == nil || d.rdb == nil || id == "" {
		return true
	}
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// Release forgets id so a failed delivery can be retried.
func (d *RedisDeduper) Release(ctx context.Context, id string) {
	if d == nil || d.rdb == nil || id == "" {
		return
	}
	_ = d.rdb.Del(ctx, d.prefix+id).Err()
}
