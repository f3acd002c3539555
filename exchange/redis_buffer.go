package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/types"
)

// RedisBufferConfig configures a Redis-backed batch pool.
type RedisBufferConfig struct {
	// Addr is the Redis address.
	Addr string `yaml:"addr" json:"addr"`
	// Password.
	Password string `yaml:"password" json:"password"`
	// DB is the database number.
	DB int `yaml:"db" json:"db"`
	// PoolSize is the connection pool size.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
	// KeyPrefix namespaces all keys written by this pool.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// MaxLen is the maximum number of pooled batches.
	MaxLen int `yaml:"max_len" json:"max_len"`
	// Policy selects which batch Draw returns. DrawRandom is not supported
	// by this backend.
	Policy DrawPolicy `yaml:"policy" json:"policy"`
}

// DefaultRedisBufferConfig returns the default Redis pool configuration.
func DefaultRedisBufferConfig() RedisBufferConfig {
	return RedisBufferConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "swarmflow",
		MaxLen:       20,
		Policy:       DrawLatest,
	}
}

// RedisBuffer keeps the batch pool in a Redis list, so gateway deployments
// can survive coordinator restarts within a run and the pool can be
// inspected out of process. Batches are stored newest-first.
type RedisBuffer struct {
	client *redis.Client
	key    string
	maxLen int
	policy DrawPolicy
	logger *zap.Logger
}

var _ Buffer = (*RedisBuffer)(nil)

// NewRedisBuffer connects to Redis and binds the pool to its key. The
// connection is verified before the pool is returned.
func NewRedisBuffer(cfg RedisBufferConfig, logger *zap.Logger) (*RedisBuffer, error) {
	if cfg.MaxLen <= 0 {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("buffer max length must be positive, got %d", cfg.MaxLen))
	}
	policy := cfg.Policy
	if policy == "" {
		policy = DrawLatest
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy == DrawRandom {
		return nil, types.NewError(types.ErrInvalidConfig,
			"the redis pool does not support the random draw policy")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "swarmflow"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := &RedisBuffer{
		client: client,
		key:    prefix + ":pool",
		maxLen: cfg.MaxLen,
		policy: policy,
		logger: logger.With(zap.String("component", "redis_buffer")),
	}
	b.logger.Info("redis batch pool ready",
		zap.String("addr", cfg.Addr),
		zap.String("key", b.key),
		zap.Int("max_len", cfg.MaxLen))
	return b, nil
}

// Push prepends the batch and trims the list to its capacity.
func (b *RedisBuffer) Push(ctx context.Context, batch types.ExportBatch) (bool, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return false, fmt.Errorf("failed to marshal batch: %w", err)
	}

	size, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read pool size: %w", err)
	}
	evicted := size >= int64(b.maxLen)

	pipe := b.client.Pipeline()
	pipe.LPush(ctx, b.key, data)
	pipe.LTrim(ctx, b.key, 0, int64(b.maxLen)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to push batch: %w", err)
	}
	return evicted, nil
}

// Draw pops one batch: the list head for DrawLatest, the tail for
// DrawOldest.
func (b *RedisBuffer) Draw(ctx context.Context) (types.ExportBatch, bool, error) {
	var cmd *redis.StringCmd
	if b.policy == DrawOldest {
		cmd = b.client.RPop(ctx, b.key)
	} else {
		cmd = b.client.LPop(ctx, b.key)
	}
	data, err := cmd.Bytes()
	if err == redis.Nil {
		return types.NewEmptyBatch(), false, nil
	}
	if err != nil {
		return types.NewEmptyBatch(), false, fmt.Errorf("failed to draw batch: %w", err)
	}

	var batch types.ExportBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return types.NewEmptyBatch(), false, fmt.Errorf("failed to decode pooled batch: %w", err)
	}
	return batch, true, nil
}

// Len returns the number of pooled batches.
func (b *RedisBuffer) Len(ctx context.Context) (int, error) {
	size, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read pool size: %w", err)
	}
	return int(size), nil
}

// Clear removes the pool key.
func (b *RedisBuffer) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("failed to clear pool: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (b *RedisBuffer) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (b *RedisBuffer) Close() error {
	return b.client.Close()
}
