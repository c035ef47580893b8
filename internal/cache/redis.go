package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no entry exists for a record.
var ErrMiss = errors.New("cache miss")

// SentEntry is what is remembered about a delivered message.
type SentEntry struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

// RedisCache keeps remote message ids of delivered messages for a limited time.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache stores entries in rdb, each expiring after ttl.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func sentKey(recordID string) string {
	return "msg:" + recordID
}

// StoreSent records the remote id of a delivered message under its record id.
func (c *RedisCache) StoreSent(ctx context.Context, recordID, remoteMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(SentEntry{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, sentKey(recordID), b, c.ttl).Err()
}

// LookupSent returns the entry stored for recordID or ErrMiss.
func (c *RedisCache) LookupSent(ctx context.Context, recordID string) (SentEntry, error) {
	raw, err := c.rdb.Get(ctx, sentKey(recordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SentEntry{}, ErrMiss
	}
	if err != nil {
		return SentEntry{}, err
	}
	var entry SentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return SentEntry{}, fmt.Errorf("decoding sent entry: %w", err)
	}
	return entry, nil
}

// Ping checks that the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
