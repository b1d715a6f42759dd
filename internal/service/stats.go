package service

import (
	"time"

	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

// statsRecorder accumulates lifetime counters for the queue. It is not safe for
// concurrent use; the queue guards it with its own lock.
type statsRecorder struct {
	completed    int
	failed       int
	cancelled    int
	started      int
	finished     int
	totalWait    time.Duration
	totalProcess time.Duration
}

func (s *statsRecorder) recordStart(item *models.QueueItem) {
	if item.StartedAt == nil {
		return
	}
	s.started++
	s.totalWait += item.StartedAt.Sub(item.CreatedAt)
}

func (s *statsRecorder) recordFinish(item *models.QueueItem) {
	switch item.Status {
	case models.StatusCompleted:
		s.completed++
	case models.StatusFailed:
		s.failed++
	case models.StatusCancelled:
		s.cancelled++
		return
	}
	if item.StartedAt != nil && item.CompletedAt != nil {
		s.finished++
		s.totalProcess += item.CompletedAt.Sub(*item.StartedAt)
	}
}

// snapshot derives the reported stats. Averages fall back to the tick interval
// until there is history; the estimate for a new submission is queued × tick.
func (s *statsRecorder) snapshot(queued, processing int, tick time.Duration) models.QueueStats {
	avgWait := tick
	if s.started > 0 {
		avgWait = s.totalWait / time.Duration(s.started)
	}
	avgProcess := tick
	if s.finished > 0 {
		avgProcess = s.totalProcess / time.Duration(s.finished)
	}
	return models.QueueStats{
		Queued:           queued,
		Processing:       processing,
		Completed:        s.completed,
		Failed:           s.failed,
		Cancelled:        s.cancelled,
		AverageWaitMs:    avgWait.Milliseconds(),
		AverageProcessMs: avgProcess.Milliseconds(),
		EstimatedWaitMs:  int64(queued) * tick.Milliseconds(),
	}
}
