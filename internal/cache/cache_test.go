package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

// New must degrade to a disabled cache when Redis is unreachable; every
// accessor then behaves as a miss and every write as a no-op.
func TestNewDegradesWithoutRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1" // nothing listens here

	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v, want graceful degradation", err)
	}
	if c.IsAvailable() {
		t.Fatal("cache reports available without Redis")
	}

	ctx := context.Background()

	if _, found := c.GetPreset(ctx, "p1"); found {
		t.Error("GetPreset reported a hit on disabled cache")
	}
	if _, found := c.GetPresetList(ctx); found {
		t.Error("GetPresetList reported a hit on disabled cache")
	}
	if _, found := c.GetFeed(ctx, "p1"); found {
		t.Error("GetFeed reported a hit on disabled cache")
	}
	if _, found := c.GetSettings(ctx); found {
		t.Error("GetSettings reported a hit on disabled cache")
	}

	if err := c.SetPreset(ctx, &CachedPreset{ID: "p1"}); err != nil {
		t.Errorf("SetPreset on disabled cache: %v", err)
	}
	if err := c.SetFeed(ctx, "p1", []byte("BEGIN:VCALENDAR")); err != nil {
		t.Errorf("SetFeed on disabled cache: %v", err)
	}
	if err := c.InvalidatePreset(ctx, "p1"); err != nil {
		t.Errorf("InvalidatePreset on disabled cache: %v", err)
	}
	if err := c.FlushAll(ctx); err != nil {
		t.Errorf("FlushAll on disabled cache: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on disabled cache: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if !cfg.DisableOnError {
		t.Error("DisableOnError should default to true")
	}
	if cfg.FeedTTL != DefaultFeedTTL {
		t.Errorf("FeedTTL = %v, want %v", cfg.FeedTTL, DefaultFeedTTL)
	}
}
