package memory

import (
	"context"
	"sync"
	"time"

	"github.com/robertarktes/ticket-inventory/internal/clock"
)

// KV is an expiring key-value store standing in for redis in tests and local
// runs. It backs both idempotency replay and rate limit counters.
type KV struct {
	mu      sync.Mutex
	clock   clock.Clock
	values  map[string]kvEntry
	claims  map[string]time.Time
	counter map[string]kvCounter
}

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

type kvCounter struct {
	n         int64
	expiresAt time.Time
}

func NewKV(clk clock.Clock) *KV {
	return &KV{
		clock:   clk,
		values:  make(map[string]kvEntry),
		claims:  make(map[string]time.Time),
		counter: make(map[string]kvCounter),
	}
}

func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.values[key]
	if !ok || !k.clock.Now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (k *KV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.values[key] = kvEntry{value: append([]byte(nil), value...), expiresAt: k.clock.Now().Add(ttl)}
	return nil
}

func (k *KV) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.clock.Now()
	if until, ok := k.claims[key]; ok && now.Before(until) {
		return false, nil
	}
	k.claims[key] = now.Add(ttl)
	return true, nil
}

func (k *KV) Unclaim(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.claims, key)
	return nil
}

func (k *KV) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.clock.Now()
	c, ok := k.counter[key]
	if !ok || !now.Before(c.expiresAt) {
		c = kvCounter{expiresAt: now.Add(window)}
	}
	c.n++
	k.counter[key] = c
	return c.n, nil
}
