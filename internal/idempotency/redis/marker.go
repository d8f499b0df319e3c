// Package redis implements the processed-marker store on Redis. Markers
// are SET NX keys with a TTL, which gives duplicate detection across
// worker processes and a defined retention window in one primitive.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore records processed keys in Redis.
type MarkerStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMarkerStore wraps an existing client. Keys are namespaced by prefix
// and expire after ttl.
func NewMarkerStore(client *redis.Client, prefix string, ttl time.Duration) *MarkerStore {
	return &MarkerStore{client: client, prefix: prefix, ttl: ttl}
}

// MarkOnce claims the key via SET NX. Returns true when this call set
// the key, false when it already existed.
func (s *MarkerStore) MarkOnce(ctx context.Context, key string) (bool, error) {
	claimed, err := s.client.SetNX(ctx, s.prefix+":"+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return claimed, nil
}
