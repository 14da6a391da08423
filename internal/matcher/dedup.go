package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which (source event, rule) pairs already produced a run.
type Deduper interface {
	// Claim returns true the first time a pair is seen within the TTL.
	Claim(ctx context.Context, eventID, ruleID string) (bool, error)
	// Release forgets a claim whose run was never created, so a redelivery retries it.
	Release(ctx context.Context, eventID, ruleID string) error
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID, ruleID string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupKey(eventID, ruleID), 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, eventID, ruleID string) error {
	return d.rdb.Del(ctx, dedupKey(eventID, ruleID)).Err()
}

func dedupKey(eventID, ruleID string) string {
	return fmt.Sprintf("automation:dedup:%s:%s", eventID, ruleID)
}
