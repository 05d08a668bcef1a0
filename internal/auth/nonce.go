package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-escrow/models"

	"github.com/redis/go-redis/v9"
)

// NonceStore remembers request nonces per signer.
type NonceStore interface {
	// Claim records nonce for addr and reports whether it was unused.
	Claim(ctx context.Context, addr models.Address, nonce string, ttl time.Duration) (bool, error)
}

// RedisNonces claims nonces with SET NX so every instance behind the same
// Redis sees them.
type RedisNonces struct {
	redis  *redis.Client
	prefix string
}

func NewRedisNonces(redisClient *redis.Client, namespace string) *RedisNonces {
	return &RedisNonces{redis: redisClient, prefix: "nonce:" + namespace}
}

func (n *RedisNonces) Claim(ctx context.Context, addr models.Address, nonce string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", n.prefix, addr, nonce)
	return n.redis.SetNX(ctx, key, 1, ttl).Result()
}

// MemoryNonces is a process-local NonceStore for the memory backend and tests.
type MemoryNonces struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{now: time.Now, expires: make(map[string]time.Time)}
}

func (n *MemoryNonces) Claim(_ context.Context, addr models.Address, nonce string, ttl time.Duration) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	for k, exp := range n.expires {
		if !now.Before(exp) {
			delete(n.expires, k)
		}
	}

	key := string(addr) + ":" + nonce
	if _, ok := n.expires[key]; ok {
		return false, nil
	}
	n.expires[key] = now.Add(ttl)
	return true, nil
}
