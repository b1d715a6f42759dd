package service

import (
	"context"
	"fmt"
	"time"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// ReplayGuard rejects nonces that were already used within their TTL.
type ReplayGuard struct {
	store interfaces.NonceStore
	now   func() time.Time
}

func NewReplayGuard(store interfaces.NonceStore) *ReplayGuard {
	return &ReplayGuard{store: store, now: time.Now}
}

// Check returns a REPLAY_ATTACK error when nonce has been recorded.
func (g *ReplayGuard) Check(ctx context.Context, nonce string) error {
	seen, err := g.store.Seen(ctx, nonce, g.now())
	if err != nil {
		return fmt.Errorf("replay check: %w", err)
	}
	if seen {
		return replayError(nonce)
	}
	return nil
}

// Record marks nonce as used. Recording an already-used nonce is itself a replay,
// which closes the window between a concurrent Check and Record.
func (g *ReplayGuard) Record(ctx context.Context, nonce string) error {
	added, err := g.store.Add(ctx, nonce, g.now())
	if err != nil {
		return fmt.Errorf("replay record: %w", err)
	}
	if !added {
		return replayError(nonce)
	}
	return nil
}

func replayError(nonce string) error {
	return models.NewSecurityError(models.CodeReplayAttack,
		fmt.Sprintf("nonce %q already used", nonce))
}
