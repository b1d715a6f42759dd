package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// MemoryNonceStore keeps used nonces in process memory. Expired entries are swept
// only when the set grows past capacity.
type MemoryNonceStore struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	ttl      time.Duration
	capacity int
}

func NewMemoryNonceStore(ttl time.Duration, capacity int) *MemoryNonceStore {
	return &MemoryNonceStore{
		seen:     make(map[string]time.Time),
		ttl:      ttl,
		capacity: capacity,
	}
}

func (s *MemoryNonceStore) Seen(_ context.Context, nonce string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[nonce]
	return ok && now.Sub(at) < s.ttl, nil
}

func (s *MemoryNonceStore) Add(_ context.Context, nonce string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.seen[nonce]; ok && now.Sub(at) < s.ttl {
		return false, nil
	}
	if len(s.seen) >= s.capacity {
		for n, at := range s.seen {
			if now.Sub(at) >= s.ttl {
				delete(s.seen, n)
			}
		}
	}
	s.seen[nonce] = now
	return true, nil
}

// Len returns the number of tracked nonces.
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type rateWindow struct {
	start time.Time
	count int
}

// MemoryRateWindowStore implements tumbling windows for both keyspaces under one lock
// so the check-then-increment of the two counters is atomic.
type MemoryRateWindowStore struct {
	mu          sync.Mutex
	windows     map[string]*rateWindow
	lastCleanup time.Time
}

func NewMemoryRateWindowStore() *MemoryRateWindowStore {
	return &MemoryRateWindowStore{windows: make(map[string]*rateWindow)}
}

func (s *MemoryRateWindowStore) Acquire(_ context.Context, req interfaces.RateAcquire) (models.RateDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup(req.Now, req.Window)

	idw := s.current(req.IdentityKey, req.Now, req.Window)
	if idw.count >= req.IdentityLimit {
		return blocked(models.LimitedByIdentity, idw, req), nil
	}

	var ow *rateWindow
	if req.OriginKey != "" {
		ow = s.current(req.OriginKey, req.Now, req.Window)
		if ow.count >= req.OriginLimit {
			return blocked(models.LimitedByOrigin, ow, req), nil
		}
	}

	idw.count++
	remaining := req.IdentityLimit - idw.count
	resetAt := idw.start.Add(req.Window)
	if ow != nil {
		ow.count++
		if r := req.OriginLimit - ow.count; r < remaining {
			remaining = r
		}
		if end := ow.start.Add(req.Window); end.After(resetAt) {
			resetAt = end
		}
	}
	return models.RateDecision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

// current returns the live window for key, rolling it over when expired. A fresh
// window starts with a zero count; Acquire increments it on admission.
func (s *MemoryRateWindowStore) current(key string, now time.Time, window time.Duration) *rateWindow {
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &rateWindow{start: now}
		s.windows[key] = w
	}
	return w
}

func (s *MemoryRateWindowStore) cleanup(now time.Time, window time.Duration) {
	if now.Sub(s.lastCleanup) < 5*window {
		return
	}
	s.lastCleanup = now
	for k, w := range s.windows {
		if now.Sub(w.start) >= window {
			delete(s.windows, k)
		}
	}
}

func blocked(by string, w *rateWindow, req interfaces.RateAcquire) models.RateDecision {
	resetAt := w.start.Add(req.Window)
	return models.RateDecision{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(req.Now),
		LimitedBy:  by,
	}
}

// maxHistoryPerIdentity bounds memory per identity.
const maxHistoryPerIdentity = 100

// MemoryAttemptHistory keeps the last attempts of each identity.
type MemoryAttemptHistory struct {
	mu      sync.RWMutex
	entries map[string][]models.HistoryEntry
}

func NewMemoryAttemptHistory() *MemoryAttemptHistory {
	return &MemoryAttemptHistory{entries: make(map[string][]models.HistoryEntry)}
}

func (h *MemoryAttemptHistory) Snapshot(_ context.Context, identity, origin string, since time.Time) (models.HistorySnapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.entries[identity]
	snap := models.HistorySnapshot{HasHistory: len(entries) > 0}
	for _, e := range entries {
		if e.Timestamp.After(since) {
			snap.RecentAttempts++
		}
		if e.Origin == origin {
			snap.SeenFromOrigin = true
		}
	}
	return snap, nil
}

func (h *MemoryAttemptHistory) Record(_ context.Context, identity string, entry models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.entries[identity], entry)
	if len(entries) > maxHistoryPerIdentity {
		entries = entries[len(entries)-maxHistoryPerIdentity:]
	}
	h.entries[identity] = entries
	return nil
}

// MemorySequencer hands out token IDs from an in-process counter.
type MemorySequencer struct {
	next atomic.Int64
}

func NewMemorySequencer(start int64) *MemorySequencer {
	s := &MemorySequencer{}
	s.next.Store(start)
	return s
}

func (s *MemorySequencer) NextTokenID(context.Context) (int64, error) {
	return s.next.Add(1), nil
}
