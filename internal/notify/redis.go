package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStream appends notifications to a Redis stream, the queryable
// counterpart of the host event log.
type RedisStream struct {
	Redis  *redis.Client
	stream string
}

func NewRedisStream(redisClient *redis.Client, namespace string) *RedisStream {
	return &RedisStream{
		Redis:  redisClient,
		stream: fmt.Sprintf("contract:%s:notifications", namespace),
	}
}

func (s *RedisStream) Stream() string {
	return s.stream
}

func (s *RedisStream) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: []any{
			"id", n.ID,
			"topic", string(n.Topic),
			"timestamp", strconv.FormatUint(n.Timestamp, 10),
			"data", string(data),
		},
	}).Err()
}

// Recent returns up to count notifications, newest first.
func (s *RedisStream) Recent(ctx context.Context, count int64) ([]Notification, error) {
	msgs, err := s.Redis.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.stream, err)
	}

	out := make([]Notification, 0, len(msgs))
	for _, msg := range msgs {
		n, err := decodeEntry(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func decodeEntry(values map[string]any) (Notification, error) {
	field := func(name string) string {
		v, _ := values[name].(string)
		return v
	}

	ts, err := strconv.ParseUint(field("timestamp"), 10, 64)
	if err != nil {
		return Notification{}, err
	}
	n := Notification{
		ID:        field("id"),
		Topic:     Topic(field("topic")),
		Timestamp: ts,
	}
	if raw := field("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &n.Data); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}
