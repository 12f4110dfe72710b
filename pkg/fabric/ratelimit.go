package fabric

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults: 10 requests per minute.
const (
	DefaultRateRequests = 10
	DefaultRatePer      = time.Minute
)

// RateLimiterStats exposes acquisition counters.
type RateLimiterStats struct {
	Total     int64         `json:"total"`
	Waited    int64         `json:"waited"`
	TotalWait time.Duration `json:"total_wait"`
}

// RateLimiter is a token bucket shared by every request the client sends.
// Acquire blocks until a token is available or the context ends.
type RateLimiter struct {
	lim *rate.Limiter

	mu    sync.Mutex
	stats RateLimiterStats
}

// NewRateLimiter builds a bucket admitting requests per window, with burst
// defaulting to requests. A negative requests value disables limiting.
func NewRateLimiter(requests int, per time.Duration, burst int) *RateLimiter {
	if requests < 0 {
		return &RateLimiter{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	if requests == 0 {
		requests = DefaultRateRequests
	}
	if per <= 0 {
		per = DefaultRatePer
	}
	if burst <= 0 {
		burst = requests
	}
	interval := per / time.Duration(requests)
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(interval), burst)}
}

// Acquire blocks until a token is available.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l.lim.Allow() {
		l.record(0)
		return nil
	}
	start := time.Now()
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	l.record(time.Since(start))
	return nil
}

func (l *RateLimiter) record(waited time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Total++
	if waited > 0 {
		l.stats.Waited++
		l.stats.TotalWait += waited
	}
}

// Stats returns a snapshot of the counters.
func (l *RateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
