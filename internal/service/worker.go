package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type WorkerConfig struct {
	TickInterval time.Duration
	// FulfillTimeout bounds a single collaborator call. There are no retries: the
	// collaborator is not assumed to be idempotent.
	FulfillTimeout time.Duration
}

// QueueWorker processes queue items one at a time on a fixed tick.
type QueueWorker struct {
	queue     *FulfillmentQueue
	fulfiller interfaces.Fulfiller
	sequencer interfaces.TokenSequencer
	cfg       WorkerConfig

	busy    atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	flight  sync.WaitGroup
	mu      sync.Mutex
}

func NewQueueWorker(queue *FulfillmentQueue, fulfiller interfaces.Fulfiller, sequencer interfaces.TokenSequencer, cfg WorkerConfig) *QueueWorker {
	return &QueueWorker{
		queue:     queue,
		fulfiller: fulfiller,
		sequencer: sequencer,
		cfg:       cfg,
	}
}

// Start begins ticking until ctx is cancelled or Stop is called. Calling Start on a
// running worker is a no-op.
func (w *QueueWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running.Store(true)
	w.loop.Add(1)
	go w.run(ctx)

	telemetry.Logger.Info("Queue worker started", zap.Duration("tick", w.cfg.TickInterval))
}

// Stop halts ticking and waits for the in-flight item, if any, to finish.
func (w *QueueWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.loop.Wait()
	w.flight.Wait()
	telemetry.Logger.Info("Queue worker stopped")
}

// Running reports whether the tick loop is active.
func (w *QueueWorker) Running() bool {
	return w.running.Load()
}

func (w *QueueWorker) run(ctx context.Context) {
	defer w.loop.Done()
	defer w.running.Store(false)

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.queue.Prune(now)
			if w.busy.Load() {
				continue
			}
			w.flight.Add(1)
			go func() {
				defer w.flight.Done()
				// The in-flight call outlives loop cancellation; it has its own timeout.
				w.ProcessNext(context.WithoutCancel(ctx))
			}()
		}
	}
}

// ProcessNext dequeues and fulfills the oldest queued item. It returns false when
// another item is in flight or the queue is empty.
func (w *QueueWorker) ProcessNext(ctx context.Context) bool {
	if !w.busy.CompareAndSwap(false, true) {
		return false
	}
	defer w.busy.Store(false)

	item, ok := w.queue.Dequeue()
	if !ok {
		return false
	}
	w.process(ctx, item)
	return true
}

func (w *QueueWorker) process(ctx context.Context, item *models.QueueItem) {
	ctx, span := telemetry.Tracer.Start(ctx, "worker.Fulfill")
	defer span.End()
	span.SetAttributes(attribute.String("item_id", item.ID), attribute.String("identity", item.Identity))

	log := telemetry.Logger.With(zap.String("item_id", item.ID), zap.String("identity", item.Identity))
	log.Info("Processing queue item")

	tokenID, err := w.sequencer.NextTokenID(ctx)
	if err != nil {
		w.fail(span, log, item, fmt.Errorf("reserve token id: %w", err))
		return
	}
	w.queue.AssignToken(item.ID, tokenID)
	span.SetAttributes(attribute.Int64("token_id", tokenID))

	start := time.Now()
	result, err := w.fulfill(ctx, models.FulfillmentRequest{
		ItemID:   item.ID,
		Identity: item.Identity,
		TokenID:  tokenID,
		Payload:  item.Payload,
	})
	telemetry.FulfillmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		w.fail(span, log, item, err)
		return
	}

	w.queue.Complete(item.ID, result)
	telemetry.FulfillmentsTotal.WithLabelValues("completed").Inc()
	log.Info("Queue item completed",
		zap.Int64("token_id", tokenID),
		zap.String("transaction_ref", result.TransactionRef),
	)
}

// fulfill performs exactly one collaborator call. Panics are converted to errors so
// a broken collaborator fails the item instead of the process.
func (w *QueueWorker) fulfill(ctx context.Context, req models.FulfillmentRequest) (result *models.FulfillmentResult, err error) {
	if w.cfg.FulfillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.FulfillTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("fulfillment panicked: %v", r)
		}
	}()

	result, err = w.fulfiller.Fulfill(ctx, req)
	if err == nil && result == nil {
		err = errors.New("fulfillment returned no result")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("fulfillment timed out after %s: %w", w.cfg.FulfillTimeout, err)
	}
	return result, err
}

func (w *QueueWorker) fail(span trace.Span, log *zap.Logger, item *models.QueueItem, err error) {
	ferr := models.NewFulfillmentError(err)
	span.RecordError(ferr)
	span.SetStatus(codes.Error, string(ferr.Code))
	w.queue.Fail(item.ID, err)
	telemetry.FulfillmentsTotal.WithLabelValues("failed").Inc()
	log.Error("Queue item failed", zap.String("code", string(ferr.Code)), zap.Error(err))
}
