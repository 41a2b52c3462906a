package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wso2/consent-core-service/internal/config"
	"github.com/wso2/consent-core-service/internal/models"
)

// DetailedConsentCache is a read-through cache for the detailed consent
// aggregate. A miss or a cache failure falls back to the database; every
// mutating flow invalidates the entry after its transaction commits.
type DetailedConsentCache interface {
	Get(ctx context.Context, consentID string) (*models.DetailedConsentResource, bool)
	Set(ctx context.Context, detailed *models.DetailedConsentResource)
	Invalidate(ctx context.Context, consentID string)
	Close() error
}

// RedisCache caches detailed consents in Redis as JSON with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg *config.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	logger.WithField("addr", cfg.Addr).Info("Connected detailed-consent cache")
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

func cacheKey(consentID string) string {
	return "consent:detailed:" + consentID
}

// Get returns the cached aggregate and whether it was present. Errors are
// logged and reported as misses.
func (c *RedisCache) Get(ctx context.Context, consentID string) (*models.DetailedConsentResource, bool) {
	payload, err := c.client.Get(ctx, cacheKey(consentID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("consentID", consentID).Warn("Cache read failed")
		}
		return nil, false
	}

	var detailed models.DetailedConsentResource
	if err := json.Unmarshal(payload, &detailed); err != nil {
		c.logger.WithError(err).WithField("consentID", consentID).Warn("Cache entry corrupt, dropping")
		c.client.Del(ctx, cacheKey(consentID))
		return nil, false
	}
	return &detailed, true
}

// Set stores the aggregate under its consent ID. Failures are logged only.
func (c *RedisCache) Set(ctx context.Context, detailed *models.DetailedConsentResource) {
	payload, err := json.Marshal(detailed)
	if err != nil {
		c.logger.WithError(err).WithField("consentID", detailed.ConsentID).Warn("Cache write skipped")
		return
	}
	if err := c.client.Set(ctx, cacheKey(detailed.ConsentID), payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("consentID", detailed.ConsentID).Warn("Cache write failed")
	}
}

// Invalidate drops the entry for a consent. Failures are logged only.
func (c *RedisCache) Invalidate(ctx context.Context, consentID string) {
	if err := c.client.Del(ctx, cacheKey(consentID)).Err(); err != nil {
		c.logger.WithError(err).WithField("consentID", consentID).Warn("Cache invalidation failed")
	}
}

// Close shuts down the Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NoopCache reports every lookup as a miss. Used when the cache is disabled.
type NoopCache struct{}

// NewNoopCache creates a cache that stores nothing
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always misses
func (c *NoopCache) Get(ctx context.Context, consentID string) (*models.DetailedConsentResource, bool) {
	return nil, false
}

// Set is a no-op
func (c *NoopCache) Set(ctx context.Context, detailed *models.DetailedConsentResource) {}

// Invalidate is a no-op
func (c *NoopCache) Invalidate(ctx context.Context, consentID string) {}

// Close is a no-op
func (c *NoopCache) Close() error { return nil }
