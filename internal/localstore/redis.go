package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDevices stores each device's blobs under "praxis:device:{id}:{key}".
// Every write refreshes the key's TTL.
type RedisDevices struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDevices creates device storage on client. A zero ttl keeps keys forever.
func NewRedisDevices(client *redis.Client, ttl time.Duration) *RedisDevices {
	return &RedisDevices{client: client, ttl: ttl}
}

// Device returns the storage of id.
func (d *RedisDevices) Device(id string) Storage {
	return &redisDevice{client: d.client, ttl: d.ttl, prefix: "praxis:device:" + id + ":"}
}

type redisDevice struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func (r *redisDevice) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *redisDevice) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
