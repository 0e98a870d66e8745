package redis

import (
	"testing"
	"time"

	"github.com/campuseats/campuseats-backend/pkg/config"
)

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when no url or address set")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:      "localhost:6379",
		Password:     "pw",
		DB:           2,
		PoolSize:     5,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 5 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestOptionsFromConfigURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@example.com:6380/3"})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "example.com:6380" || opts.DB != 3 {
		t.Fatalf("unexpected options from url: %+v", opts)
	}
}

func TestLockKeyNamespacing(t *testing.T) {
	c := &Client{}
	if got := c.LockKey("cron-worker", "dev"); got != "ce:lock:cron-worker:dev" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := c.LockKey("", "dev"); got != "ce:lock:dev" {
		t.Fatalf("empty parts must be skipped, got %q", got)
	}
}

func TestEventChannelNamespacing(t *testing.T) {
	c := &Client{}
	if got := c.EventChannel("transfer.confirmed"); got != "ce:events:transfer.confirmed" {
		t.Fatalf("unexpected channel %q", got)
	}
}
