// Package cache provides a two-tier cache for pure classification results:
// an in-process LRU in front of an optional shared Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/symptom-triage-server/internal/domain"
)

const keyPrefix = "triage:result:"

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits   int64     `json:"memory_hits"`
	MemoryMisses int64     `json:"memory_misses"`
	RedisHits    int64     `json:"redis_hits"`
	RedisMisses  int64     `json:"redis_misses"`
	Errors       int64     `json:"errors"`
	LastReset    time.Time `json:"last_reset"`
}

type entry struct {
	result *domain.ClassificationResult
	expiry time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiry)
}

// cachedResult is the Redis payload.
type cachedResult struct {
	Result   *domain.ClassificationResult `json:"result"`
	CachedAt time.Time                    `json:"cached_at"`
}

// ResultCache caches classification results keyed by input source and
// normalized text. Escalation state is never cached.
type ResultCache struct {
	memory *lru.Cache[string, *entry]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	statsMu sync.Mutex
	stats   Stats
}

// New creates a cache from configuration. Redis is used only when a URL is
// configured, and must answer a ping.
func New(config domain.CacheConfig, logger *logrus.Logger) (*ResultCache, error) {
	var client *redis.Client
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		if config.PoolSize > 0 {
			opts.PoolSize = config.PoolSize
		}
		if config.PoolTimeout > 0 {
			opts.PoolTimeout = config.PoolTimeout
		}
		if config.MaxRetries > 0 {
			opts.MaxRetries = config.MaxRetries
		}
		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}
	return NewWithClient(config.MemorySize, config.DefaultTTL, client, logger)
}

// NewWithClient creates a cache over an existing Redis client, which may be
// nil for a memory-only cache.
func NewWithClient(memorySize int, ttl time.Duration, client *redis.Client, logger *logrus.Logger) (*ResultCache, error) {
	if memorySize <= 0 {
		memorySize = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	memory, err := lru.New[string, *entry](memorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &ResultCache{
		memory: memory,
		redis:  client,
		ttl:    ttl,
		logger: logger,
		stats:  Stats{LastReset: time.Now()},
	}, nil
}

// Key derives the cache key for a classification input.
func Key(source domain.InputSource, normalized string) string {
	sum := sha256.Sum256([]byte(string(source) + "\x00" + normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns a private copy of the cached result.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.ClassificationResult, bool) {
	if e, ok := c.memory.Get(key); ok {
		if !e.isExpired() {
			c.record(func(s *Stats) { s.MemoryHits++ })
			return e.result.Clone(), true
		}
		c.memory.Remove(key)
	}
	c.record(func(s *Stats) { s.MemoryMisses++ })

	if c.redis == nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.record(func(s *Stats) { s.RedisMisses++ })
		return nil, false
	}
	if err != nil {
		c.record(func(s *Stats) { s.Errors++ })
		c.logger.WithError(err).Warn("Failed to read classification cache")
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Result == nil {
		c.redis.Del(ctx, key)
		c.record(func(s *Stats) { s.RedisMisses++ })
		return nil, false
	}

	c.record(func(s *Stats) { s.RedisHits++ })
	c.memory.Add(key, &entry{result: cached.Result, expiry: time.Now().Add(c.ttl)})
	return cached.Result.Clone(), true
}

// Set stores a copy of the result in both tiers. Any pending escalation on
// the result is stripped.
func (c *ResultCache) Set(ctx context.Context, key string, result *domain.ClassificationResult) {
	stored := result.Clone()
	stored.PendingEscalation = nil

	c.memory.Add(key, &entry{result: stored, expiry: time.Now().Add(c.ttl)})

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(cachedResult{Result: stored, CachedAt: time.Now()})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal classification for cache")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.record(func(s *Stats) { s.Errors++ })
		c.logger.WithError(err).Warn("Failed to write classification cache")
	}
}

// Purge empties the memory tier.
func (c *ResultCache) Purge() {
	c.memory.Purge()
}

// Len returns the number of entries in the memory tier.
func (c *ResultCache) Len() int {
	return c.memory.Len()
}

// Stats returns a snapshot of the counters.
func (c *ResultCache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *ResultCache) record(update func(*Stats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}

// Ping checks the Redis tier, if any.
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close releases the Redis client.
func (c *ResultCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
