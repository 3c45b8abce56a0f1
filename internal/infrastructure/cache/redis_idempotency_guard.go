package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncbridge/backend/internal/domain/webhook"
)

// Mark values stored under the delivery key
const (
	markProcessing = "processing"
	markCompleted  = "completed"
)

// RedisIdempotencyGuard implements webhook.IdempotencyGuard on Redis.
// This is the production guard: multiple instances share delivery marks,
// and SETNX gives the atomic check-and-set the interface demands.
type RedisIdempotencyGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient creates and pings a Redis client from config
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisIdempotencyGuard creates a guard with an existing Redis client
func NewRedisIdempotencyGuard(client *redis.Client, keyPrefix string) *RedisIdempotencyGuard {
	if keyPrefix == "" {
		keyPrefix = "webhook:processed:"
	}
	return &RedisIdempotencyGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// CheckAndMark atomically marks the delivery as processing if unseen. On a
// conflict the stored mark distinguishes an in-flight delivery from a
// completed one.
func (g *RedisIdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (webhook.GuardResult, error) {
	key := g.keyPrefix + deliveryID

	won, err := g.client.SetNX(ctx, key, markProcessing, webhook.ProcessingTTL).Result()
	if err != nil {
		return webhook.GuardResult{}, fmt.Errorf("failed to mark delivery: %w", err)
	}
	if won {
		return webhook.GuardResult{Proceed: true}, nil
	}

	val, err := g.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET. Treat as in flight; the platform
		// will redeliver if the first attempt really died.
		return webhook.GuardResult{}, nil
	}
	if err != nil {
		return webhook.GuardResult{}, fmt.Errorf("failed to read delivery mark: %w", err)
	}
	return webhook.GuardResult{AlreadyDone: val == markCompleted}, nil
}

// MarkCompleted overwrites the mark as completed with the longer TTL
func (g *RedisIdempotencyGuard) MarkCompleted(ctx context.Context, deliveryID string) error {
	key := g.keyPrefix + deliveryID
	if err := g.client.Set(ctx, key, markCompleted, webhook.CompletedTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark delivery completed: %w", err)
	}
	return nil
}

// Clear removes the delivery mark
func (g *RedisIdempotencyGuard) Clear(ctx context.Context, deliveryID string) error {
	if err := g.client.Del(ctx, g.keyPrefix+deliveryID).Err(); err != nil {
		return fmt.Errorf("failed to clear delivery mark: %w", err)
	}
	return nil
}

// Ensure RedisIdempotencyGuard implements IdempotencyGuard
var _ webhook.IdempotencyGuard = (*RedisIdempotencyGuard)(nil)
