package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// QueueArchive defines the contract for durable queue item storage
type QueueArchive interface {
	SaveItem(ctx context.Context, item *models.QueueItem) error
	LatestByIdentity(ctx context.Context, identity string) (*models.QueueItem, error)
}

// TokenSequencer hands out monotonically increasing token identifiers
type TokenSequencer interface {
	NextTokenID(ctx context.Context) (int64, error)
}

// Fulfiller performs the privileged write for a dequeued item
type Fulfiller interface {
	Fulfill(ctx context.Context, req models.FulfillmentRequest) (*models.FulfillmentResult, error)
}

// Publisher publishes messages to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}
