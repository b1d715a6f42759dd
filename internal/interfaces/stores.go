package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// NonceStore tracks nonces that have already been used.
type NonceStore interface {
	// Seen reports whether nonce was recorded within its TTL.
	Seen(ctx context.Context, nonce string, now time.Time) (bool, error)
	// Add records nonce. It returns false when the nonce was already present.
	Add(ctx context.Context, nonce string, now time.Time) (bool, error)
}

// RateWindowStore holds tumbling-window counters for the identity and origin keyspaces.
type RateWindowStore interface {
	// Acquire increments both counters when both are under their limits. When either
	// limit is reached nothing is incremented and the blocking key is reported.
	Acquire(ctx context.Context, req RateAcquire) (models.RateDecision, error)
}

// RateAcquire describes one admission against two windows.
type RateAcquire struct {
	IdentityKey   string
	OriginKey     string
	IdentityLimit int
	OriginLimit   int
	Window        time.Duration
	Now           time.Time
}

// AttemptHistory records admitted attempts per identity for frequency analysis.
type AttemptHistory interface {
	Snapshot(ctx context.Context, identity, origin string, since time.Time) (models.HistorySnapshot, error)
	Record(ctx context.Context, identity string, entry models.HistoryEntry) error
}
