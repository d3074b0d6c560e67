package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores values under a key prefix. Batches are written with MSET.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv/redis: get %s: %w", key, err)
	}
	return v, nil
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		pairs = append(pairs, r.prefix+e.Key, e.Value)
	}
	if err := r.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("kv/redis: mset: %w", err)
	}
	return nil
}
