package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

type RateLimitConfig struct {
	Window        time.Duration
	IdentityLimit int
	OriginLimit   int
}

// RateLimiter applies tumbling windows keyed by identity and by network origin.
// A request passes only when both windows have room; both counters then increment.
type RateLimiter struct {
	store interfaces.RateWindowStore
	cfg   RateLimitConfig
	now   func() time.Time
}

func NewRateLimiter(store interfaces.RateWindowStore, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{store: store, cfg: cfg, now: time.Now}
}

// Allow consumes one request from both windows. An empty origin only checks identity.
func (l *RateLimiter) Allow(ctx context.Context, identity, origin string) (models.RateDecision, error) {
	req := interfaces.RateAcquire{
		IdentityKey:   "identity:" + strings.ToLower(identity),
		IdentityLimit: l.cfg.IdentityLimit,
		OriginLimit:   l.cfg.OriginLimit,
		Window:        l.cfg.Window,
		Now:           l.now(),
	}
	if origin != "" {
		req.OriginKey = "origin:" + strings.ToLower(origin)
	}

	decision, err := l.store.Acquire(ctx, req)
	if err != nil {
		return models.RateDecision{}, fmt.Errorf("rate limit: %w", err)
	}
	return decision, nil
}

// Limit is the identity ceiling, reported in X-RateLimit-Limit.
func (l *RateLimiter) Limit() int {
	return l.cfg.IdentityLimit
}
