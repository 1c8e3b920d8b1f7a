package memcache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New()
	c.Set("price:ETHUSDT", 3500.5, time.Minute)

	v, ok := c.Get("price:ETHUSDT")
	if !ok {
		t.Fatal("expected cached value")
	}
	if v.(float64) != 3500.5 {
		t.Errorf("got %v, want 3500.5", v)
	}

	if _, ok := c.Get("price:BTCUSDT"); ok {
		t.Error("unexpected hit for absent key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("k", "v", time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock = clock.Add(61 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after expiry")
	}

	// Expired entry was dropped on read.
	if len(c.entries) != 0 {
		t.Errorf("expected empty cache, have %d entries", len(c.entries))
	}
}

func TestCacheDeleteAndNonPositiveTTL(t *testing.T) {
	c := New()
	c.Set("k", 1, 0)
	if _, ok := c.Get("k"); ok {
		t.Error("zero ttl must not store")
	}

	c.Set("k", 1, time.Minute)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}
