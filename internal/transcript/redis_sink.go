package transcript

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when a redis destination names no key.
const DefaultRedisKey = "textplay:transcript"

// RedisSink stores the snapshot under a single key, replacing it each write.
type RedisSink struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSink wraps an existing client. A zero ttl keeps the key forever.
func NewRedisSink(client *redis.Client, key string, ttl time.Duration) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key, ttl: ttl}
}

// NewRedisSinkFromURL understands the usual redis URL plus "key" and "ttl"
// query parameters, e.g. redis://localhost:6379/0?key=zork&ttl=24h.
func NewRedisSinkFromURL(u *url.URL) (*RedisSink, error) {
	q := u.Query()
	key := q.Get("key")
	var ttl time.Duration
	if raw := q.Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid redis ttl %q: %w", raw, err)
		}
		ttl = d
	}
	q.Del("key")
	q.Del("ttl")

	clean := *u
	clean.RawQuery = q.Encode()
	opts, err := redis.ParseURL(clean.String())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisSink(redis.NewClient(opts), key, ttl), nil
}

func (s *RedisSink) Write(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) String() string {
	return "redis key " + s.key
}
