package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type QueueConfig struct {
	MaxSize      int
	TickInterval time.Duration
	Retention    time.Duration
}

// QueueObserver receives lifecycle events. Implementations must not block; they are
// called with the queue lock held.
type QueueObserver interface {
	Notify(event models.QueueEvent, item *models.QueueItem)
}

const recentTerminalLimit = 10

// FulfillmentQueue is an in-memory FIFO of work items with at most one non-terminal
// item per identity. Items only move to processing through Dequeue.
type FulfillmentQueue struct {
	mu         sync.RWMutex
	cfg        QueueConfig
	pending    []*models.QueueItem
	processing *models.QueueItem
	terminal   []*models.QueueItem
	byIdentity map[string]*models.QueueItem
	stats      statsRecorder
	observer   QueueObserver
	now        func() time.Time
}

func NewFulfillmentQueue(cfg QueueConfig, observer QueueObserver) *FulfillmentQueue {
	return &FulfillmentQueue{
		cfg:        cfg,
		byIdentity: make(map[string]*models.QueueItem),
		observer:   observer,
		now:        time.Now,
	}
}

func identityKey(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Submit appends a new item for identity and returns its receipt, computed under the
// same lock as the insert. It fails with DUPLICATE_PENDING when the identity already
// owns a queued or processing item, and QUEUE_FULL at capacity.
func (q *FulfillmentQueue) Submit(identity string, payload models.Payload) (models.SubmitReceipt, error) {
	if identityKey(identity) == "" {
		return models.SubmitReceipt{}, models.NewValidationError("identity is required", nil)
	}
	if err := payload.Validate(); err != nil {
		return models.SubmitReceipt{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := identityKey(identity)
	if existing, ok := q.byIdentity[key]; ok && !existing.Status.Terminal() {
		err := models.NewQueueError(models.CodeDuplicatePending,
			fmt.Sprintf("identity already has a pending request at position %d", existing.Position))
		err.ExistingPosition = existing.Position
		return models.SubmitReceipt{}, err
	}
	if len(q.pending) >= q.cfg.MaxSize {
		return models.SubmitReceipt{}, models.NewQueueError(models.CodeQueueFull,
			fmt.Sprintf("queue is full (%d max)", q.cfg.MaxSize))
	}

	item := &models.QueueItem{
		ID:        uuid.NewString(),
		Identity:  identity,
		Payload:   payload,
		Status:    models.StatusQueued,
		CreatedAt: q.now(),
	}
	q.pending = append(q.pending, item)
	q.byIdentity[key] = item
	q.reposition()
	q.emit(models.EventItemAdded, item)

	telemetry.Logger.Info("Item added to queue",
		zap.String("item_id", item.ID),
		zap.String("identity", identity),
		zap.Int("position", item.Position),
	)
	pos := q.positionLocked(item)
	return models.SubmitReceipt{
		ID:              item.ID,
		Position:        pos.Position,
		EstimatedWaitMs: pos.EstimatedWaitMs,
	}, nil
}

// Status reports the position of the latest item owned by identity. Terminal items
// are reported with their result or error and position zero.
func (q *FulfillmentQueue) Status(identity string) models.QueuePosition {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.byIdentity[identityKey(identity)]
	if !ok {
		return models.QueuePosition{Found: false}
	}
	return q.positionLocked(item)
}

func (q *FulfillmentQueue) positionLocked(item *models.QueueItem) models.QueuePosition {
	pos := models.QueuePosition{
		Found:    true,
		ItemID:   item.ID,
		Position: item.Position,
		Status:   item.Status,
		Error:    item.Error,
	}
	tick := q.cfg.TickInterval.Milliseconds()

	switch item.Status {
	case models.StatusProcessing:
		pos.EstimatedWaitMs = tick
	case models.StatusQueued:
		busy := 0
		if q.processing != nil {
			busy = 1
		}
		queueRank := item.Position - busy
		pos.AheadOfYou = max(0, queueRank-1) + busy
		pos.EstimatedWaitMs = int64(pos.AheadOfYou) * tick
	default:
		pos.Result = item.Clone().Result
	}
	return pos
}

// Cancel moves the identity's queued item to cancelled. Processing and terminal
// items cannot be cancelled.
func (q *FulfillmentQueue) Cancel(identity string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byIdentity[identityKey(identity)]
	if !ok || item.Status != models.StatusQueued {
		return false
	}

	for i, p := range q.pending {
		if p == item {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	now := q.now()
	item.Status = models.StatusCancelled
	item.CompletedAt = &now
	item.Position = 0
	q.terminal = append(q.terminal, item)
	q.stats.recordFinish(item)
	q.reposition()
	q.emit(models.EventItemCancelled, item)

	telemetry.Logger.Info("Queue item cancelled",
		zap.String("item_id", item.ID),
		zap.String("identity", item.Identity),
	)
	return true
}

// Dequeue marks the oldest queued item as processing. It returns false when an item
// is already processing or nothing is queued.
func (q *FulfillmentQueue) Dequeue() (*models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing != nil || len(q.pending) == 0 {
		return nil, false
	}

	item := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	now := q.now()
	item.Status = models.StatusProcessing
	item.StartedAt = &now
	q.processing = item
	q.stats.recordStart(item)
	q.reposition()
	q.emit(models.EventItemProcessing, item)
	return item.Clone(), true
}

// AssignToken records the token identifier reserved for the processing item.
func (q *FulfillmentQueue) AssignToken(itemID string, tokenID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.processing == nil || q.processing.ID != itemID {
		return false
	}
	q.processing.TokenID = tokenID
	return true
}

// Complete copies the collaborator result onto the processing item.
func (q *FulfillmentQueue) Complete(itemID string, result *models.FulfillmentResult) bool {
	return q.finish(itemID, func(item *models.QueueItem) {
		item.Status = models.StatusCompleted
		item.Result = result
	})
}

// Fail records the error on the processing item.
func (q *FulfillmentQueue) Fail(itemID string, cause error) bool {
	return q.finish(itemID, func(item *models.QueueItem) {
		item.Status = models.StatusFailed
		item.Error = cause.Error()
	})
}

func (q *FulfillmentQueue) finish(itemID string, apply func(*models.QueueItem)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.processing
	if item == nil || item.ID != itemID {
		return false
	}
	apply(item)
	now := q.now()
	item.CompletedAt = &now
	item.Position = 0
	q.processing = nil
	q.terminal = append(q.terminal, item)
	q.stats.recordFinish(item)
	q.reposition()

	event := models.EventItemCompleted
	if item.Status == models.StatusFailed {
		event = models.EventItemFailed
	}
	q.emit(event, item)
	return true
}

// Busy reports whether an item is currently processing.
func (q *FulfillmentQueue) Busy() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.processing != nil
}

func (q *FulfillmentQueue) Stats() models.QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.statsLocked()
}

func (q *FulfillmentQueue) statsLocked() models.QueueStats {
	processing := 0
	if q.processing != nil {
		processing = 1
	}
	return q.stats.snapshot(len(q.pending), processing, q.cfg.TickInterval)
}

// Snapshot returns the admin view: queued items, the processing item and the most
// recent terminal items.
func (q *FulfillmentQueue) Snapshot() models.QueueSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snap := models.QueueSnapshot{
		Queue:          make([]*models.QueueItem, 0, len(q.pending)),
		RecentTerminal: make([]*models.QueueItem, 0, recentTerminalLimit),
		Stats:          q.statsLocked(),
	}
	for _, item := range q.pending {
		snap.Queue = append(snap.Queue, item.Clone())
	}
	if q.processing != nil {
		snap.Processing = q.processing.Clone()
	}
	start := max(0, len(q.terminal)-recentTerminalLimit)
	for _, item := range q.terminal[start:] {
		snap.RecentTerminal = append(snap.RecentTerminal, item.Clone())
	}
	return snap
}

// Prune drops terminal items that finished before now minus the retention period.
func (q *FulfillmentQueue) Prune(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := now.Add(-q.cfg.Retention)
	kept := q.terminal[:0]
	removed := 0
	for _, item := range q.terminal {
		if item.CompletedAt != nil && item.CompletedAt.Before(cutoff) {
			key := identityKey(item.Identity)
			if q.byIdentity[key] == item {
				delete(q.byIdentity, key)
			}
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.terminal); i++ {
		q.terminal[i] = nil
	}
	q.terminal = kept
	return removed
}

// reposition assigns 1-indexed positions over non-terminal items; the processing
// item, when present, holds position 1.
func (q *FulfillmentQueue) reposition() {
	offset := 0
	if q.processing != nil {
		q.processing.Position = 1
		offset = 1
	}
	for i, item := range q.pending {
		item.Position = offset + i + 1
	}

	processing := 0.0
	if q.processing != nil {
		processing = 1
	}
	telemetry.QueueDepth.WithLabelValues(string(models.StatusQueued)).Set(float64(len(q.pending)))
	telemetry.QueueDepth.WithLabelValues(string(models.StatusProcessing)).Set(processing)
}

func (q *FulfillmentQueue) emit(t models.QueueEventType, item *models.QueueItem) {
	if q.observer == nil {
		return
	}
	q.observer.Notify(models.NewQueueEvent(t, item, q.now()), item.Clone())
}
