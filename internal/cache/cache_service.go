// Package cache provides Redis-based caching for analysis snapshots and
// rendered feedback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"market-insight-bot/config"

	"github.com/redis/go-redis/v9"
)

// CacheService provides Redis-based caching with graceful degradation.
// When Redis is unavailable, operations return errors that callers should
// handle by recomputing or falling back to database queries.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures     int
	recoveryBackoff time.Duration
}

// Key formats for different cache types
const (
	KeyAnalysisSnapshot = "analysis:%s:%s" // symbol, timeframe
	KeyStrategyFeedback = "feedback:%s:%s" // user id, strategy
	KeyGlobalInsights   = "insights:global"
)

// Default TTLs
const (
	SnapshotTTL = 60 * time.Second // Roughly one short candle
	FeedbackTTL = 5 * time.Minute
	InsightsTTL = 15 * time.Minute
)

// Sentinel errors
var (
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// NewCacheService creates a CacheService and verifies connectivity.
// A failed initial connection returns the service in degraded mode, not
// an error: the analysis path works without Redis, just slower.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:          client,
		config:          cfg,
		maxFailures:     3,
		recoveryBackoff: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[CACHE] Initial Redis connection failed: %v", err)
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	log.Printf("[CACHE] Redis connected successfully at %s", cfg.Address)

	return cs, nil
}

// IsHealthy returns whether Redis is currently available
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

// Close shuts down the Redis client
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			log.Printf("[CACHE] Circuit breaker OPEN: Redis marked unhealthy after %d failures", cs.failureCount)
		}
		cs.healthy = false
		cs.lastCheck = time.Now()
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		log.Printf("[CACHE] Circuit breaker CLOSED: Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
}

// shouldAttempt gates operations while unhealthy, allowing one probe per
// recovery backoff window
func (cs *CacheService) shouldAttempt() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.healthy {
		return true
	}
	if time.Since(cs.lastCheck) >= cs.recoveryBackoff {
		cs.lastCheck = time.Now()
		return true
	}
	return false
}

// GetJSON reads and unmarshals a cached value into dest
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !cs.shouldAttempt() {
		return ErrCacheUnavailable
	}

	data, err := cs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		cs.recordSuccess()
		return ErrCacheMiss
	}
	if err != nil {
		cs.recordFailure()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	cs.recordSuccess()
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a value with a TTL
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !cs.shouldAttempt() {
		return ErrCacheUnavailable
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes keys, tolerating unavailability
func (cs *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !cs.shouldAttempt() {
		return ErrCacheUnavailable
	}

	if err := cs.client.Del(ctx, keys...).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	cs.recordSuccess()
	return nil
}

// SnapshotKey builds the cache key for one symbol and timeframe
func SnapshotKey(symbol, timeframe string) string {
	return fmt.Sprintf(KeyAnalysisSnapshot, symbol, timeframe)
}

// FeedbackKey builds the cache key for one (user, strategy) pair
func FeedbackKey(userID, strategy string) string {
	return fmt.Sprintf(KeyStrategyFeedback, userID, strategy)
}
