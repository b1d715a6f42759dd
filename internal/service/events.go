package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

type queuedEvent struct {
	event models.QueueEvent
	item  *models.QueueItem
}

// EventDispatcher fans queue lifecycle events out to the event bus and the archive
// from a background goroutine, so queue operations never wait on I/O. When the
// buffer is full events are dropped and counted.
type EventDispatcher struct {
	publisher interfaces.Publisher
	archive   interfaces.QueueArchive
	topic     string
	timeout   time.Duration
	events    chan queuedEvent
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewEventDispatcher(publisher interfaces.Publisher, archive interfaces.QueueArchive, topic string, buffer int) *EventDispatcher {
	return &EventDispatcher{
		publisher: publisher,
		archive:   archive,
		topic:     topic,
		timeout:   5 * time.Second,
		events:    make(chan queuedEvent, buffer),
		done:      make(chan struct{}),
	}
}

func (d *EventDispatcher) Notify(event models.QueueEvent, item *models.QueueItem) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.events <- queuedEvent{event: event, item: item}:
	default:
		telemetry.EventsDropped.Inc()
		telemetry.Logger.Warn("Queue event dropped, dispatch buffer full",
			zap.String("type", string(event.Type)),
			zap.String("item_id", event.ItemID),
		)
	}
}

// Run drains events until Close is called. Remaining buffered events are flushed
// before Run returns.
func (d *EventDispatcher) Run() {
	defer close(d.done)
	for ev := range d.events {
		d.deliver(ev)
	}
}

func (d *EventDispatcher) deliver(ev queuedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if d.archive != nil {
		if err := d.archive.SaveItem(ctx, ev.item); err != nil {
			telemetry.Logger.Error("Failed to archive queue item",
				zap.String("item_id", ev.item.ID),
				zap.Error(err),
			)
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, d.topic, ev.event); err != nil {
			telemetry.Logger.Error("Failed to publish queue event",
				zap.String("type", string(ev.event.Type)),
				zap.String("item_id", ev.event.ItemID),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	<-d.done
}
