package models

import (
	"fmt"
	"strings"
	"time"
)

type QueueStatus string

const (
	StatusQueued     QueueStatus = "queued"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
	StatusCancelled  QueueStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Known payload extension keys.
const (
	ExtENSName      = "ens_name"
	ExtBaseName     = "base_name"
	ExtFarcasterFID = "farcaster_fid"
)

var allowedExtensions = map[string]struct{}{
	ExtENSName:      {},
	ExtBaseName:     {},
	ExtFarcasterFID: {},
}

// Payload is the work handed to the fulfillment collaborator. Artwork is an
// opaque reference to the rendered content.
type Payload struct {
	Artwork    string            `json:"artwork"`
	Extensions map[string]string `json:"extensions,omitempty"`
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Artwork) == "" {
		return NewValidationError("payload artwork is required", nil)
	}
	for k, v := range p.Extensions {
		if _, ok := allowedExtensions[k]; !ok {
			return NewValidationError(fmt.Sprintf("unknown payload extension %q", k), nil)
		}
		if strings.TrimSpace(v) == "" {
			return NewValidationError(fmt.Sprintf("payload extension %q is empty", k), nil)
		}
	}
	return nil
}

// FulfillmentRequest is sent to the external collaborator.
type FulfillmentRequest struct {
	ItemID   string  `json:"item_id"`
	Identity string  `json:"identity"`
	TokenID  int64   `json:"token_id"`
	Payload  Payload `json:"payload"`
}

// FulfillmentResult is what the collaborator returns on success.
type FulfillmentResult struct {
	ExternalID     string            `json:"external_id"`
	TransactionRef string            `json:"transaction_ref"`
	ArtifactRefs   []string          `json:"artifact_refs,omitempty"`
	RewardAmounts  map[string]string `json:"reward_amounts,omitempty"`
}

type QueueItem struct {
	ID          string             `json:"id"`
	Identity    string             `json:"identity"`
	Payload     Payload            `json:"payload"`
	Status      QueueStatus        `json:"status"`
	Position    int                `json:"position"`
	TokenID     int64              `json:"token_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Result      *FulfillmentResult `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand to callers outside the queue lock.
func (i *QueueItem) Clone() *QueueItem {
	c := *i
	if i.Payload.Extensions != nil {
		c.Payload.Extensions = make(map[string]string, len(i.Payload.Extensions))
		for k, v := range i.Payload.Extensions {
			c.Payload.Extensions[k] = v
		}
	}
	if i.StartedAt != nil {
		t := *i.StartedAt
		c.StartedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	if i.Result != nil {
		r := *i.Result
		r.ArtifactRefs = append([]string(nil), i.Result.ArtifactRefs...)
		if i.Result.RewardAmounts != nil {
			r.RewardAmounts = make(map[string]string, len(i.Result.RewardAmounts))
			for k, v := range i.Result.RewardAmounts {
				r.RewardAmounts[k] = v
			}
		}
		c.Result = &r
	}
	return &c
}

// SubmitReceipt is returned by a successful submission.
type SubmitReceipt struct {
	ID              string `json:"id"`
	Position        int    `json:"position"`
	EstimatedWaitMs int64  `json:"estimated_wait_ms"`
}

// QueuePosition answers a status query for an identity.
type QueuePosition struct {
	Found           bool               `json:"found"`
	ItemID          string             `json:"item_id,omitempty"`
	Position        int                `json:"position"`
	AheadOfYou      int                `json:"ahead_of_you"`
	Status          QueueStatus        `json:"status,omitempty"`
	EstimatedWaitMs int64              `json:"estimated_wait_ms"`
	Result          *FulfillmentResult `json:"result,omitempty"`
	Error           string             `json:"error,omitempty"`
}

type QueueStats struct {
	Queued           int   `json:"total_queued"`
	Processing       int   `json:"processing"`
	Completed        int   `json:"completed"`
	Failed           int   `json:"failed"`
	Cancelled        int   `json:"cancelled"`
	AverageWaitMs    int64 `json:"average_wait_ms"`
	AverageProcessMs int64 `json:"average_process_ms"`
	EstimatedWaitMs  int64 `json:"estimated_wait_ms"`
}

// QueueSnapshot is the admin view of the queue.
type QueueSnapshot struct {
	Queue          []*QueueItem `json:"queue"`
	Processing     *QueueItem   `json:"processing"`
	RecentTerminal []*QueueItem `json:"recent_terminal"`
	Stats          QueueStats   `json:"stats"`
}

type QueueEventType string

const (
	EventItemAdded      QueueEventType = "item.added"
	EventItemProcessing QueueEventType = "item.processing"
	EventItemCompleted  QueueEventType = "item.completed"
	EventItemFailed     QueueEventType = "item.failed"
	EventItemCancelled  QueueEventType = "item.cancelled"
)

const TopicQueueEvents = "mint.queue.events"

// QueueEvent is published on every lifecycle transition.
type QueueEvent struct {
	Type     QueueEventType `json:"type"`
	ItemID   string         `json:"item_id"`
	Identity string         `json:"identity"`
	Status   QueueStatus    `json:"status"`
	Position int            `json:"position"`
	TokenID  int64          `json:"token_id,omitempty"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
}

func NewQueueEvent(t QueueEventType, item *QueueItem, at time.Time) QueueEvent {
	return QueueEvent{
		Type:     t,
		ItemID:   item.ID,
		Identity: item.Identity,
		Status:   item.Status,
		Position: item.Position,
		TokenID:  item.TokenID,
		Error:    item.Error,
		At:       at,
	}
}

// PartitionKey keeps all events of one identity on the same partition.
func (e QueueEvent) PartitionKey() string {
	return e.Identity
}
