package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// Requester is the subset of *nats.Conn used for request-reply.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Reply is the collaborator's response envelope.
type Reply struct {
	Result *models.FulfillmentResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

// NatsFulfiller asks the external minting service to fulfill an item over NATS
// request-reply. The deadline comes from ctx.
type NatsFulfiller struct {
	conn    Requester
	subject string
}

func NewNatsFulfiller(conn Requester, subject string) *NatsFulfiller {
	return &NatsFulfiller{conn: conn, subject: subject}
}

func (f *NatsFulfiller) Fulfill(ctx context.Context, req models.FulfillmentRequest) (*models.FulfillmentResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal fulfillment request: %w", err)
	}

	msg, err := f.conn.RequestWithContext(ctx, f.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no fulfillment service listening on %s: %w", f.subject, err)
		}
		return nil, fmt.Errorf("fulfillment request: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode fulfillment reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if reply.Result == nil {
		return nil, errors.New("fulfillment reply carried no result")
	}
	return reply.Result, nil
}
