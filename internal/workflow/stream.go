package workflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/notify"
)

// Events is the slice of the dispatcher the streamer needs.
type Events interface {
	Dispatch(ctx context.Context, e notify.Event) int
}

// Streamer polls operation status and relays progress updates to the
// initiating user and the operation's topic subscribers.
type Streamer struct {
	client       *Client
	events       Events
	pollInterval time.Duration
	log          *zap.Logger
}

func NewStreamer(client *Client, events Events, pollInterval time.Duration, log *zap.Logger) *Streamer {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Streamer{
		client:       client,
		events:       events,
		pollInterval: pollInterval,
		log:          log,
	}
}

// StreamProgress follows one operation until it reaches a terminal status
// or ctx is cancelled. Each status change is relayed verbatim; engine
// outages are retried with exponential backoff and the stream resumes at
// whatever the next successful poll reports.
func (s *Streamer) StreamProgress(ctx context.Context, operationID, userID string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.pollInterval
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until ctx cancel

	lastProgress := -1
	lastStatus := ""

	for {
		status, err := s.client.Status(ctx, operationID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("workflow status poll failed",
				zap.String("operation_id", operationID), zap.Error(err))
			if !sleep(ctx, bo.NextBackOff()) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()

		if status.Progress != lastProgress || status.Status != lastStatus {
			lastProgress = status.Progress
			lastStatus = status.Status
			s.relay(ctx, status, userID)
		}
		if status.Terminal() {
			return nil
		}
		if !sleep(ctx, s.pollInterval) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Streamer) relay(ctx context.Context, status *OperationStatus, userID string) {
	kind := notify.KindWorkflowProgress
	switch status.Status {
	case StatusCompleted:
		kind = notify.KindWorkflowCompleted
	case StatusFailed:
		kind = notify.KindWorkflowFailed
	}

	data := map[string]interface{}{
		"status":   status.Status,
		"progress": status.Progress,
	}
	if len(status.Result) > 0 {
		data["result"] = status.Result
	}
	if status.Error != "" {
		data["error"] = status.Error
	}

	s.events.Dispatch(ctx, notify.Event{
		Kind:        kind,
		UserID:      userID,
		OperationID: status.OperationID,
		Data:        data,
	})
}
