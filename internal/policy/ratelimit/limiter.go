// Package ratelimit paces outbound HTTP requests with per-host token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Config controls the default bucket handed to each host.
type Config struct {
	// RPS is the sustained request rate per host. Zero or negative
	// disables pacing.
	RPS float64
	// Burst is the bucket size. Values below one are raised to one.
	Burst int
}

// Limiter hands out tokens per host. Hosts are discovered lazily as
// requests arrive.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter

	limit rate.Limit
	burst int
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// Wait blocks until the host of rawURL has a token available or ctx is
// done. URLs that do not parse share a single fallback bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	bucket, ok := l.buckets[host]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[host] = bucket
	}
	l.mu.Unlock()

	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}
