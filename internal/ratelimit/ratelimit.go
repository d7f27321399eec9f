// Package ratelimit throttles public submissions per client address using fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = 30 * time.Second
	// DefaultMaxRequests is how many requests one key may make per window.
	DefaultMaxRequests = 6
	// DefaultEventMaxRequests is the per-window budget for telemetry events,
	// counted apart from feedback submissions.
	DefaultEventMaxRequests = 120

	defaultRedisKeyPrefix = "feedbackflow:ratelimit:"
)

var ErrInvalidLimit = errors.New("ratelimit: window and max requests must be positive")

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config sets the window length and request budget.
type Config struct {
	Window      time.Duration
	MaxRequests int
	Now         func() time.Time
}

func (config Config) normalized() (Config, error) {
	if config.Window == 0 {
		config.Window = DefaultWindow
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = DefaultMaxRequests
	}
	if config.Window < time.Second || config.MaxRequests < 0 {
		return Config{}, ErrInvalidLimit
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return config, nil
}

func (config Config) bucket() int64 {
	return config.Now().Unix() / int64(config.Window/time.Second)
}

// MemoryLimiter counts requests in process memory.
type MemoryLimiter struct {
	config        Config
	mutex         sync.Mutex
	currentBucket int64
	counters      map[string]int
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(config Config) (*MemoryLimiter, error) {
	normalized, err := config.normalized()
	if err != nil {
		return nil, err
	}
	return &MemoryLimiter{config: normalized, counters: make(map[string]int)}, nil
}

// Allow counts the request and reports whether it is within the window budget.
func (limiter *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	bucket := limiter.config.bucket()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if bucket != limiter.currentBucket {
		limiter.currentBucket = bucket
		limiter.counters = make(map[string]int)
	}
	limiter.counters[key]++
	return limiter.counters[key] <= limiter.config.MaxRequests, nil
}

// RedisLimiter shares counters across server instances through Redis.
type RedisLimiter struct {
	config    Config
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisLimiter creates a limiter storing its counters in Redis.
func NewRedisLimiter(client redis.Cmdable, config Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: nil redis client")
	}
	normalized, err := config.normalized()
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{config: normalized, client: client, keyPrefix: defaultRedisKeyPrefix}, nil
}

// Allow increments the shared counter for the current window.
func (limiter *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := fmt.Sprintf("%s%s:%d", limiter.keyPrefix, strings.TrimSpace(key), limiter.config.bucket())

	pipeline := limiter.client.TxPipeline()
	increment := pipeline.Incr(ctx, counterKey)
	pipeline.Expire(ctx, counterKey, limiter.config.Window)
	if _, err := pipeline.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: increment %s: %w", counterKey, err)
	}
	return increment.Val() <= int64(limiter.config.MaxRequests), nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, address string, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: connect to redis: %w", err)
	}
	return client, nil
}

// FailOpen wraps a limiter so backend errors let the request through.
type FailOpen struct {
	Limiter Limiter
	OnError func(error)
}

// Allow delegates and allows the request when the wrapped limiter fails.
func (failOpen FailOpen) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := failOpen.Limiter.Allow(ctx, key)
	if err != nil {
		if failOpen.OnError != nil {
			failOpen.OnError(err)
		}
		return true, nil
	}
	return allowed, nil
}
