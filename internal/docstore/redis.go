package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultMaxRetries = 16

// Redis keeps each document under <prefix><name> and commits updates with
// WATCH/MULTI/EXEC, retrying when another writer got there first.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

func NewRedis(client redis.UniversalClient, prefix string, maxRetries int) *Redis {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Redis{client: client, prefix: prefix, maxRetries: maxRetries}
}

func (r *Redis) Kind() string { return "redis" }

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return normalize(data), nil
}

func (r *Redis) Update(ctx context.Context, name string, fn Mutator) error {
	key := r.key(name)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}
		next, write, err := fn(normalize(current))
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", name, ErrContention)
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}
