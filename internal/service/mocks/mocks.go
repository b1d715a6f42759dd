package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockFulfiller is a testify mock of interfaces.Fulfiller.
type MockFulfiller struct {
	mock.Mock
}

func NewMockFulfiller(t testingT) *MockFulfiller {
	m := &MockFulfiller{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockFulfiller) Fulfill(ctx context.Context, req models.FulfillmentRequest) (*models.FulfillmentResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.FulfillmentResult)
	return res, args.Error(1)
}

// MockSequencer is a testify mock of interfaces.TokenSequencer.
type MockSequencer struct {
	mock.Mock
}

func NewMockSequencer(t testingT) *MockSequencer {
	m := &MockSequencer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSequencer) NextTokenID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPublisher is a testify mock of interfaces.Publisher.
type MockPublisher struct {
	mock.Mock
}

func NewMockPublisher(t testingT) *MockPublisher {
	m := &MockPublisher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	return m.Called(ctx, topic, message).Error(0)
}

// MockQueueArchive is a testify mock of interfaces.QueueArchive.
type MockQueueArchive struct {
	mock.Mock
}

func NewMockQueueArchive(t testingT) *MockQueueArchive {
	m := &MockQueueArchive{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockQueueArchive) SaveItem(ctx context.Context, item *models.QueueItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockQueueArchive) LatestByIdentity(ctx context.Context, identity string) (*models.QueueItem, error) {
	args := m.Called(ctx, identity)
	item, _ := args.Get(0).(*models.QueueItem)
	return item, args.Error(1)
}

// MockNonceStore is a testify mock of interfaces.NonceStore.
type MockNonceStore struct {
	mock.Mock
}

func NewMockNonceStore(t testingT) *MockNonceStore {
	m := &MockNonceStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNonceStore) Seen(ctx context.Context, nonce string, now time.Time) (bool, error) {
	args := m.Called(ctx, nonce, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockNonceStore) Add(ctx context.Context, nonce string, now time.Time) (bool, error) {
	args := m.Called(ctx, nonce, now)
	return args.Bool(0), args.Error(1)
}

var (
	_ interfaces.Fulfiller      = (*MockFulfiller)(nil)
	_ interfaces.TokenSequencer = (*MockSequencer)(nil)
	_ interfaces.Publisher      = (*MockPublisher)(nil)
	_ interfaces.QueueArchive   = (*MockQueueArchive)(nil)
	_ interfaces.NonceStore     = (*MockNonceStore)(nil)
)
