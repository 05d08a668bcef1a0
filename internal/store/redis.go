package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each contract key as a plain Redis string under
// "contract:<namespace>:<tier>:<name>". Commits WATCH the keys the call read
// and run inside MULTI/EXEC.
type RedisBackend struct {
	Redis     *redis.Client
	namespace string
}

func NewRedisBackend(redisClient *redis.Client, namespace string) *RedisBackend {
	return &RedisBackend{Redis: redisClient, namespace: namespace}
}

func (b *RedisBackend) redisKey(key Key) string {
	return fmt.Sprintf("contract:%s:%s", b.namespace, key)
}

func (b *RedisBackend) Load(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := b.Redis.Get(ctx, b.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *RedisBackend) Apply(ctx context.Context, reads []Read, writes []Write) error {
	watched := make([]string, 0, len(reads))
	for _, r := range reads {
		watched = append(watched, b.redisKey(r.Key))
	}

	txf := func(tx *redis.Tx) error {
		for i, r := range reads {
			current, err := tx.Get(ctx, watched[i]).Bytes()
			found := true
			if err == redis.Nil {
				current, found = nil, false
			} else if err != nil {
				return err
			}
			if !r.Matches(current, found) {
				return ErrConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				if w.Delete {
					pipe.Del(ctx, b.redisKey(w.Key))
					continue
				}
				pipe.Set(ctx, b.redisKey(w.Key), w.Value, 0)
			}
			return nil
		})
		return err
	}

	err := b.Redis.Watch(ctx, txf, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		err = ErrConflict
	}
	if errors.Is(err, ErrConflict) {
		slog.Warn("Contract writes conflicted", "namespace", b.namespace, "reads", len(reads))
		return err
	}
	if err != nil {
		slog.Error("Failed to apply contract writes", "error", err, "namespace", b.namespace, "writes", len(writes))
		return err
	}
	return nil
}
