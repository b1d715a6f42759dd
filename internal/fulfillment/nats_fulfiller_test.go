package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

type fakeRequester struct {
	subject string
	sent    []byte
	reply   []byte
	err     error
}

func (f *fakeRequester) RequestWithContext(_ context.Context, subj string, data []byte) (*nats.Msg, error) {
	f.subject = subj
	f.sent = data
	if f.err != nil {
		return nil, f.err
	}
	return &nats.Msg{Subject: subj, Data: f.reply}, nil
}

var request = models.FulfillmentRequest{
	ItemID:   "item-1",
	Identity: "0xabc",
	TokenID:  9,
	Payload:  models.Payload{Artwork: "ipfs://art"},
}

func TestNatsFulfiller_Success(t *testing.T) {
	reply, _ := json.Marshal(Reply{Result: &models.FulfillmentResult{ExternalID: "9", TransactionRef: "0xtx"}})
	conn := &fakeRequester{reply: reply}

	res, err := NewNatsFulfiller(conn, "mint.fulfill").Fulfill(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, "0xtx", res.TransactionRef)
	assert.Equal(t, "mint.fulfill", conn.subject)

	var sent models.FulfillmentRequest
	require.NoError(t, json.Unmarshal(conn.sent, &sent))
	assert.Equal(t, int64(9), sent.TokenID)
}

func TestNatsFulfiller_RemoteError(t *testing.T) {
	conn := &fakeRequester{reply: []byte(`{"error":"insufficient gas"}`)}

	_, err := NewNatsFulfiller(conn, "mint.fulfill").Fulfill(context.Background(), request)
	assert.EqualError(t, err, "insufficient gas")
}

func TestNatsFulfiller_NoResponders(t *testing.T) {
	conn := &fakeRequester{err: nats.ErrNoResponders}

	_, err := NewNatsFulfiller(conn, "mint.fulfill").Fulfill(context.Background(), request)
	assert.True(t, errors.Is(err, nats.ErrNoResponders))
}

func TestNatsFulfiller_EmptyReply(t *testing.T) {
	conn := &fakeRequester{reply: []byte(`{}`)}

	_, err := NewNatsFulfiller(conn, "mint.fulfill").Fulfill(context.Background(), request)
	assert.Error(t, err)
}
