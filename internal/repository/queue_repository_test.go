package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

func TestQueueRepository_SaveItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewQueueRepository(db)
	item := &models.QueueItem{
		ID:        "item-1",
		Identity:  "0xabc",
		Payload:   models.Payload{Artwork: "ipfs://art"},
		Status:    models.StatusQueued,
		CreatedAt: t0,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_items")).
		WithArgs("item-1", "0xabc", sqlmock.AnyArg(), "queued", nil, nil, nil, t0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveItem(context.Background(), item))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_LatestByIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewQueueRepository(db)
	started := t0.Add(time.Second)
	done := t0.Add(5 * time.Second)

	rows := sqlmock.NewRows([]string{"id", "identity", "payload", "status", "token_id", "result", "error", "created_at", "started_at", "completed_at"}).
		AddRow("item-1", "0xabc", []byte(`{"artwork":"ipfs://art"}`), "completed", int64(7),
			[]byte(`{"external_id":"7","transaction_ref":"0xtx"}`), nil, t0, started, done)
	mock.ExpectQuery(regexp.QuoteMeta("FROM queue_items WHERE identity = $1")).
		WithArgs("0xabc").
		WillReturnRows(rows)

	item, err := repo.LatestByIdentity(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, int64(7), item.TokenID)
	assert.Equal(t, "ipfs://art", item.Payload.Artwork)
	require.NotNil(t, item.Result)
	assert.Equal(t, "0xtx", item.Result.TransactionRef)
	assert.Equal(t, done, *item.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_LatestByIdentity_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM queue_items")).
		WithArgs("0xnone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	item, err := NewQueueRepository(db).LatestByIdentity(context.Background(), "0xnone")
	assert.NoError(t, err)
	assert.Nil(t, item)
}

func TestQueueRepository_NextTokenID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE token_counter SET value = value + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(12)))

	id, err := NewQueueRepository(db).NextTokenID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}
