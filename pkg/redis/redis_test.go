package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Klasique-art/cafa-tickets-backend/pkg/config"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(&config.RedisConfig{
		Host:     "redis.internal",
		Port:     6380,
		Password: "secret",
		DB:       2,
		PoolSize: 20,
	})

	if cfg.Addr != "redis.internal:6380" {
		t.Errorf("Addr = %s, want redis.internal:6380", cfg.Addr)
	}
	if cfg.DB != 2 {
		t.Errorf("DB = %d, want 2", cfg.DB)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &Config{
		Addr:          "127.0.0.1:1",
		MaxRetries:    0,
		RetryInterval: 10 * time.Millisecond,
		DialTimeout:   200 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewClient(ctx, cfg); err == nil {
		t.Error("expected error connecting to a closed port")
	}
}
