package rateLimit

import (
	"context"
	"time"
)

// Counter is a fixed-window counter. The redis adapter and memory.KV provide one.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
	rate    int
	period  time.Duration
}

func NewRateLimiter(counter Counter, rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, rate: rate, period: period}
}

// Allow reports whether key is still within rate requests for the current period.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := rl.counter.Incr(ctx, key, rl.period)
	if err != nil {
		return false, err
	}
	return n <= int64(rl.rate), nil
}
