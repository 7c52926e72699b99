package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"polybot/internal/logging"
)

// Default TTLs per keyspace, mirroring the teacher's
// cache_service.go TTL constants.
const (
	DefaultCalibratorTTL   = 24 * time.Hour
	DefaultPaperTradingTTL = 1 * time.Hour
	DefaultDailySummaryTTL = 48 * time.Hour
)

// RedisConfig mirrors the connection fields the teacher's
// config.RedisConfig exposes to cache_service.go.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CachedStore layers a Redis hot cache in front of a Store, following
// the teacher's cache_service.go pattern: reads try the cache first and
// fall back to the backing store on miss, repopulating the cache; writes
// go to the backing store first and then best-effort update the cache.
// Redis outages degrade to pass-through on the backing store rather than
// failing requests, matching the teacher's "degraded mode" philosophy.
type CachedStore struct {
	backing Store
	client  *redis.Client
	log     *logging.Logger

	mu           sync.Mutex
	healthy      bool
	failureCount int
	maxFailures  int
	lastCheck    time.Time
	checkInterval time.Duration
}

// NewCachedStore connects to Redis without failing the caller on an
// initial connection error; it starts in degraded (pass-through) mode
// and re-probes health on subsequent calls.
func NewCachedStore(ctx context.Context, cfg RedisConfig, backing Store) *CachedStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &CachedStore{
		backing:       backing,
		client:        client,
		log:           logging.WithComponent("persistence"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		c.log.Warn("redis unreachable at startup, starting in degraded (pass-through) mode", "error", err)
		c.healthy = false
	} else {
		c.healthy = true
	}
	c.lastCheck = time.Now()
	return c
}

func ttlFor(keyspace string) time.Duration {
	switch keyspace {
	case KeyCalibratorState:
		return DefaultCalibratorTTL
	case KeyPaperTradingState:
		return DefaultPaperTradingTTL
	case KeyDailySummaries:
		return DefaultDailySummaryTTL
	default:
		return DefaultPaperTradingTTL
	}
}

func cacheKey(keyspace, key string) string {
	return keyspace + ":" + key
}

func (c *CachedStore) isHealthyLocked() bool {
	if c.healthy {
		return true
	}
	if time.Since(c.lastCheck) < c.checkInterval {
		return false
	}
	return true // allow a fresh probe attempt
}

func (c *CachedStore) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	c.lastCheck = time.Now()
	if c.failureCount >= c.maxFailures {
		c.healthy = false
	}
}

func (c *CachedStore) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount = 0
	c.healthy = true
	c.lastCheck = time.Now()
}

// Put writes through to the backing store, then best-effort refreshes
// the cache. A cache write failure never fails the call.
func (c *CachedStore) Put(ctx context.Context, keyspace, key string, value interface{}) error {
	if err := c.backing.Put(ctx, keyspace, key, value); err != nil {
		return err
	}

	c.mu.Lock()
	skip := !c.isHealthyLocked()
	c.mu.Unlock()
	if skip {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	if err := c.client.Set(ctx, cacheKey(keyspace, key), payload, ttlFor(keyspace)).Err(); err != nil {
		c.log.Warn("redis cache write failed, continuing on backing store alone", "keyspace", keyspace, "error", err)
		c.recordFailure()
		return nil
	}
	c.recordSuccess()
	return nil
}

// Get tries the cache first, falling back to the backing store on a
// miss or a degraded cache, and repopulates the cache on a backing-store
// hit.
func (c *CachedStore) Get(ctx context.Context, keyspace, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	healthy := c.isHealthyLocked()
	c.mu.Unlock()

	if healthy {
		payload, err := c.client.Get(ctx, cacheKey(keyspace, key)).Bytes()
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
				c.recordSuccess()
				return true, nil
			}
		case err == redis.Nil:
			c.recordSuccess()
		default:
			c.log.Warn("redis cache read failed, falling back to backing store", "keyspace", keyspace, "error", err)
			c.recordFailure()
		}
	}

	found, err := c.backing.Get(ctx, keyspace, key, dest)
	if err != nil || !found {
		return found, err
	}

	c.mu.Lock()
	stillHealthy := c.isHealthyLocked()
	c.mu.Unlock()
	if stillHealthy {
		if payload, err := json.Marshal(dest); err == nil {
			_ = c.client.Set(ctx, cacheKey(keyspace, key), payload, ttlFor(keyspace)).Err()
		}
	}
	return true, nil
}

// Close releases the Redis client.
func (c *CachedStore) Close() error {
	return c.client.Close()
}

var _ Store = (*CachedStore)(nil)
var _ Store = (*PostgresStore)(nil)
