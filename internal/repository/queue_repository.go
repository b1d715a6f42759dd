package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

type QueueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS queue_items (
			id VARCHAR(64) PRIMARY KEY,
			identity VARCHAR(64) NOT NULL,
			payload JSONB NOT NULL,
			status VARCHAR(20) NOT NULL,
			token_id BIGINT,
			result JSONB,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_identity ON queue_items(identity, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status)`,
		`CREATE TABLE IF NOT EXISTS token_counter (
			id INT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`INSERT INTO token_counter (id, value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// SaveItem upserts the current state of a queue item.
func (r *QueueRepository) SaveItem(ctx context.Context, item *models.QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var result []byte
	if item.Result != nil {
		if result, err = json.Marshal(item.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, identity, payload, status, token_id, result, error, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			token_id = EXCLUDED.token_id,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`, item.ID, item.Identity, payload, string(item.Status), nullInt64(item.TokenID), nullBytes(result),
		nullString(item.Error), item.CreatedAt, item.StartedAt, item.CompletedAt)
	return err
}

// LatestByIdentity returns the newest archived item of identity, or nil when none exists.
func (r *QueueRepository) LatestByIdentity(ctx context.Context, identity string) (*models.QueueItem, error) {
	var (
		item     models.QueueItem
		status   string
		payload  []byte
		result   []byte
		tokenID  sql.NullInt64
		errText  sql.NullString
		started  sql.NullTime
		finished sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity, payload, status, token_id, result, error, created_at, started_at, completed_at
		FROM queue_items WHERE identity = $1
		ORDER BY created_at DESC LIMIT 1
	`, identity).Scan(&item.ID, &item.Identity, &payload, &status, &tokenID, &result, &errText,
		&item.CreatedAt, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	item.Status = models.QueueStatus(status)
	item.TokenID = tokenID.Int64
	item.Error = errText.String
	if started.Valid {
		item.StartedAt = &started.Time
	}
	if finished.Valid {
		item.CompletedAt = &finished.Time
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(result) > 0 {
		item.Result = &models.FulfillmentResult{}
		if err := json.Unmarshal(result, item.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &item, nil
}

// NextTokenID atomically increments the persistent token counter.
func (r *QueueRepository) NextTokenID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE token_counter SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next token id: %w", err)
	}
	return id, nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullBytes(v []byte) interface{} {
	if v == nil {
		return nil
	}
	return v
}
