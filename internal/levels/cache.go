// Package levels maintains the per-symbol key-level snapshots that the
// coaching engine detects against: a Redis-backed cache with an in-memory
// fallback, an HTTP snapshot source, and a scheduled refresher.
package levels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kcu-coach-engine/config"
	"kcu-coach-engine/internal/coach"
)

const keyPrefix = "levels:"

// Cache stores key-level snapshots per symbol. When Redis is enabled it is
// the primary store with a circuit breaker; the in-memory map always holds
// the latest write so a Redis outage degrades reads, never breaks them.
type Cache struct {
	client *redis.Client // nil in memory-only mode
	ttl    time.Duration
	logger zerolog.Logger

	mu        sync.RWMutex
	memory    map[string]memoryEntry
	healthy   bool
	failures  int
	lastProbe time.Time

	maxFailures   int
	probeInterval time.Duration
}

type memoryEntry struct {
	levels    coach.KeyLevels
	expiresAt time.Time
}

// NewCache creates the snapshot cache. With Redis disabled it runs
// memory-only, which is fine for a single instance.
func NewCache(cfg config.RedisConfig, ttl time.Duration, logger zerolog.Logger) *Cache {
	c := &Cache{
		ttl:           ttl,
		memory:        make(map[string]memoryEntry),
		maxFailures:   3,
		probeInterval: 15 * time.Second,
		logger:        logger.With().Str("component", "LevelsCache").Logger(),
	}

	if cfg.Enabled {
		c.client = redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		c.healthy = true
	}

	return c
}

// Ping verifies Redis connectivity. Memory-only mode always succeeds.
func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.recordFailure()
		return fmt.Errorf("redis ping failed: %w", err)
	}
	c.recordSuccess()
	return nil
}

// Set stores a snapshot for a symbol. The memory copy is written first so
// a Redis failure never loses the snapshot.
func (c *Cache) Set(ctx context.Context, symbol string, levels coach.KeyLevels) {
	symbol = normalizeSymbol(symbol)

	c.mu.Lock()
	c.memory[symbol] = memoryEntry{levels: levels, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.client == nil || !c.isHealthy() {
		return
	}

	data, err := json.Marshal(levels)
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to encode levels snapshot")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+symbol, data, c.ttl).Err(); err != nil {
		c.recordFailure()
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Redis write failed, snapshot kept in memory")
		return
	}
	c.recordSuccess()
}

// Levels returns the cached snapshot for a symbol. Redis is tried first
// when healthy; the memory copy covers misses and outages.
func (c *Cache) Levels(ctx context.Context, symbol string) (coach.KeyLevels, bool) {
	symbol = normalizeSymbol(symbol)

	if c.client != nil && c.isHealthy() {
		data, err := c.client.Get(ctx, keyPrefix+symbol).Bytes()
		switch {
		case err == nil:
			c.recordSuccess()
			var levels coach.KeyLevels
			if jsonErr := json.Unmarshal(data, &levels); jsonErr == nil {
				return levels, true
			}
			c.logger.Error().Str("symbol", symbol).Msg("Corrupt levels snapshot in Redis, falling back to memory")
		case err == redis.Nil:
			c.recordSuccess()
		default:
			c.recordFailure()
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Redis read failed, falling back to memory")
		}
	}

	c.mu.RLock()
	entry, ok := c.memory[symbol]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return coach.KeyLevels{}, false
	}
	return entry.levels, true
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// isHealthy reports circuit state. While open it probes Redis at most
// once per probeInterval so the circuit can close again.
func (c *Cache) isHealthy() bool {
	c.mu.RLock()
	healthy := c.healthy
	probeDue := !healthy && time.Since(c.lastProbe) >= c.probeInterval
	c.mu.RUnlock()

	if probeDue {
		c.mu.Lock()
		c.lastProbe = time.Now()
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
			return true
		}
	}

	return healthy
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	if c.failures >= c.maxFailures && c.healthy {
		c.logger.Warn().Int("failures", c.failures).Msg("Redis marked unhealthy, serving from memory")
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy {
		c.logger.Info().Msg("Redis recovered")
	}
	c.healthy = true
	c.failures = 0
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
