package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// TaskQueue is the default queue the syncer worker listens on.
const TaskQueue = "progress-sync"

// ProgressSyncInput is the input for the progress sync workflow.
type ProgressSyncInput struct {
	EventID   string
	SessionID string
	Progress  domain.TourProgress
}

// WorkflowID derives a stable workflow id from the event so redelivered
// events do not start a second sync.
func WorkflowID(eventID string) string {
	return "progress-sync-" + eventID
}

// ProgressSyncWorkflow upserts one saved progress snapshot into the central
// store, retrying with backoff while the store is unavailable.
func ProgressSyncWorkflow(ctx workflow.Context, input ProgressSyncInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting progress sync", "tourID", input.Progress.TourID, "sessionID", input.SessionID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{"InvalidProgress"},
		},
	})

	var a *ProgressActivities
	if err := workflow.ExecuteActivity(ctx, a.UpsertProgress, input.Progress).Get(ctx, nil); err != nil {
		logger.Error("progress sync failed", "tourID", input.Progress.TourID, "error", err)
		return err
	}

	logger.Info("Progress synced", "tourID", input.Progress.TourID)
	return nil
}
