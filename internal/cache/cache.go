/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/verdandi/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultPresetTTL     = 1 * time.Hour
	DefaultPresetListTTL = 5 * time.Minute
	DefaultFeedTTL       = 5 * time.Minute
	DefaultSettingsTTL   = 1 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyPresetList = "verdandi:cache:presets"
	KeyPreset     = "verdandi:cache:preset:" // + preset_id
	KeyFeed       = "verdandi:cache:feed:"   // + preset_id
	KeySettings   = "verdandi:cache:settings"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	PresetTTL     time.Duration
	PresetListTTL time.Duration
	FeedTTL       time.Duration
	SettingsTTL   time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		PresetTTL:      DefaultPresetTTL,
		PresetListTTL:  DefaultPresetListTTL,
		FeedTTL:        DefaultFeedTTL,
		SettingsTTL:    DefaultSettingsTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A missing or
// unhealthy Redis never fails a request; callers just hit the database.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		telemetry.CacheMissesTotal.Inc()
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheMissesTotal.Inc()
		return false, nil
	}

	telemetry.CacheHitsTotal.Inc()
	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// DeletePattern deletes all keys matching a pattern. Uses SCAN rather than
// KEYS so a large keyspace does not stall Redis.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Preset caching methods

// CachedPreset mirrors the preset fields interval generation needs. Kept
// separate from the gorm model so schema changes don't poison live caches.
type CachedPreset struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Grouping          string    `json:"grouping"`
	Precision         string    `json:"precision"`
	OffsetWestSeconds int       `json:"offset_west_seconds"`
	ExtendBegin       bool      `json:"extend_begin"`
	ExtendEnd         bool      `json:"extend_end"`
	FeedLookbackDays  int       `json:"feed_lookback_days"`
	FeedHorizonDays   int       `json:"feed_horizon_days"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GetPreset retrieves a cached preset by ID.
func (c *Cache) GetPreset(ctx context.Context, presetID string) (*CachedPreset, bool) {
	var preset CachedPreset
	found, err := c.get(ctx, KeyPreset+presetID, &preset)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("preset_id", presetID).Msg("preset cache hit")
	return &preset, true
}

// SetPreset caches a preset.
func (c *Cache) SetPreset(ctx context.Context, preset *CachedPreset) error {
	c.logger.Debug().Str("preset_id", preset.ID).Msg("caching preset")
	return c.set(ctx, KeyPreset+preset.ID, preset, c.config.PresetTTL)
}

// GetPresetList retrieves the cached preset listing.
func (c *Cache) GetPresetList(ctx context.Context) ([]CachedPreset, bool) {
	var presets []CachedPreset
	found, err := c.get(ctx, KeyPresetList, &presets)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(presets)).Msg("preset list cache hit")
	return presets, true
}

// SetPresetList caches the preset listing.
func (c *Cache) SetPresetList(ctx context.Context, presets []CachedPreset) error {
	c.logger.Debug().Int("count", len(presets)).Msg("caching preset list")
	return c.set(ctx, KeyPresetList, presets, c.config.PresetListTTL)
}

// InvalidatePreset removes a preset and every cache derived from it: the
// listing and any rendered feed.
func (c *Cache) InvalidatePreset(ctx context.Context, presetID string) error {
	c.logger.Debug().Str("preset_id", presetID).Msg("invalidating preset caches")

	if err := c.delete(ctx, KeyPreset+presetID); err != nil {
		return err
	}
	if err := c.delete(ctx, KeyFeed+presetID); err != nil {
		return err
	}
	return c.delete(ctx, KeyPresetList)
}

// Feed caching methods

// GetFeed retrieves a rendered feed payload for a preset.
func (c *Cache) GetFeed(ctx context.Context, presetID string) ([]byte, bool) {
	var payload []byte
	found, err := c.get(ctx, KeyFeed+presetID, &payload)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("preset_id", presetID).Int("bytes", len(payload)).Msg("feed cache hit")
	return payload, true
}

// SetFeed caches a rendered feed payload. Feeds roll forward with the clock,
// so the TTL stays short.
func (c *Cache) SetFeed(ctx context.Context, presetID string, payload []byte) error {
	c.logger.Debug().Str("preset_id", presetID).Int("bytes", len(payload)).Msg("caching feed")
	return c.set(ctx, KeyFeed+presetID, payload, c.config.FeedTTL)
}

// InvalidateFeed removes a rendered feed from cache.
func (c *Cache) InvalidateFeed(ctx context.Context, presetID string) error {
	c.logger.Debug().Str("preset_id", presetID).Msg("invalidating feed cache")
	return c.delete(ctx, KeyFeed+presetID)
}

// Settings caching methods

// CachedSettings mirrors the system settings singleton.
type CachedSettings struct {
	FeedsEnabled bool   `json:"feeds_enabled"`
	FeedTokenTTL string `json:"feed_token_ttl"`
	LogLevel     string `json:"log_level"`
}

// GetSettings retrieves the cached system settings.
func (c *Cache) GetSettings(ctx context.Context) (*CachedSettings, bool) {
	var settings CachedSettings
	found, err := c.get(ctx, KeySettings, &settings)
	if err != nil || !found {
		return nil, false
	}
	return &settings, true
}

// SetSettings caches the system settings.
func (c *Cache) SetSettings(ctx context.Context, settings *CachedSettings) error {
	return c.set(ctx, KeySettings, settings, c.config.SettingsTTL)
}

// InvalidateSettings removes the settings from cache.
func (c *Cache) InvalidateSettings(ctx context.Context) error {
	return c.delete(ctx, KeySettings)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.DeletePattern(ctx, "verdandi:cache:*")
}
