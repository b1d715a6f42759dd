package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisNonceStore(t *testing.T) {
	mr, client := newRedis(t)
	s := NewRedisNonceStore(client, 5*time.Minute)
	ctx := context.Background()

	ok, err := s.Add(ctx, "n1", t0)
	require.NoError(t, err)
	assert.True(t, ok)

	seen, err := s.Seen(ctx, "n1", t0)
	require.NoError(t, err)
	assert.True(t, seen)

	ok, err = s.Add(ctx, "n1", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(6 * time.Minute)
	seen, _ = s.Seen(ctx, "n1", t0)
	assert.False(t, seen)
}

func TestRedisRateWindowStore_LimitAndOrigin(t *testing.T) {
	_, client := newRedis(t)
	s := NewRedisRateWindowStore(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := s.Acquire(ctx, acquire("a", "origin:ip", 3, 10, t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := s.Acquire(ctx, acquire("a", "origin:ip", 3, 10, t0.Add(10*time.Second)))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.LimitedByIdentity, d.LimitedBy)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	d, err = s.Acquire(ctx, acquire("b", "origin:ip", 3, 4, t0.Add(10*time.Second)))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = s.Acquire(ctx, acquire("c", "origin:ip", 3, 4, t0.Add(11*time.Second)))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, models.LimitedByOrigin, d.LimitedBy)
}

func TestRedisRateWindowStore_Rollover(t *testing.T) {
	_, client := newRedis(t)
	s := NewRedisRateWindowStore(client)
	ctx := context.Background()

	d, _ := s.Acquire(ctx, acquire("a", "", 1, 1, t0))
	assert.True(t, d.Allowed)
	d, _ = s.Acquire(ctx, acquire("a", "", 1, 1, t0.Add(30*time.Second)))
	assert.False(t, d.Allowed)
	d, _ = s.Acquire(ctx, acquire("a", "", 1, 1, t0.Add(61*time.Second)))
	assert.True(t, d.Allowed)
}

func TestRedisAttemptHistory(t *testing.T) {
	_, client := newRedis(t)
	h := NewRedisAttemptHistory(client)
	ctx := context.Background()

	snap, err := h.Snapshot(ctx, "a", "ip1", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, snap.HasHistory)

	require.NoError(t, h.Record(ctx, "a", models.HistoryEntry{Timestamp: t0.Add(-2 * time.Hour), Amount: decimal.NewFromInt(2), Origin: "ip1"}))
	require.NoError(t, h.Record(ctx, "a", models.HistoryEntry{Timestamp: t0.Add(-time.Minute), Amount: decimal.NewFromInt(3), Origin: "ip1"}))

	snap, err = h.Snapshot(ctx, "a", "ip2", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, snap.HasHistory)
	assert.Equal(t, 1, snap.RecentAttempts)
	assert.False(t, snap.SeenFromOrigin)

	snap, _ = h.Snapshot(ctx, "a", "ip1", t0.Add(-time.Hour))
	assert.True(t, snap.SeenFromOrigin)
}
