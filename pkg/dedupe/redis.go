package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisConfig holds configuration for the Redis-backed registry.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string // Leave empty if no password
	DB       int
	// KeyTTL is how long a registered key is remembered. It only needs to
	// outlive the platform's redelivery window; default 24h.
	KeyTTL time.Duration
}

// RedisRegistry implements Registry on Redis. SET NX gives an atomic
// register-and-check in one round trip, shared by every ingestor instance.
type RedisRegistry struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewRedisRegistry creates a registry and verifies the connection.
func NewRedisRegistry(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisRegistry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.KeyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	logger.Info().Str("redis_address", cfg.Addr).Dur("key_ttl", ttl).Msg("Connected to Redis for dedupe registry")
	return &RedisRegistry{
		redisClient: rdb,
		ttl:         ttl,
		logger:      logger.With().Str("component", "RedisRegistry").Logger(),
	}, nil
}

func (r *RedisRegistry) FirstSeen(ctx context.Context, key string) (bool, error) {
	set, err := r.redisClient.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX for %s: %w", key, err)
	}
	return set, nil
}

// Close closes the Redis client connection.
func (r *RedisRegistry) Close() error {
	r.logger.Info().Msg("Closing Redis client connection...")
	return r.redisClient.Close()
}
