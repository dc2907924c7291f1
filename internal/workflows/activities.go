package workflows

import (
	"context"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/usecases"
	"github.com/samirrijal/audiotour/internal/pkg/metrics"
)

// ProgressActivities holds the activity implementations for the progress sync workflow.
type ProgressActivities struct {
	Sync   *usecases.ProgressSyncService
	Logger *slog.Logger
}

// UpsertProgress writes a device progress snapshot into the central store.
func (a *ProgressActivities) UpsertProgress(ctx context.Context, progress domain.TourProgress) error {
	if progress.TourID == "" {
		return temporal.NewNonRetryableApplicationError("progress without tour id", "InvalidProgress", nil)
	}

	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	info := activity.GetInfo(ctx)

	if err := a.Sync.Sync(ctx, &progress); err != nil {
		metrics.ProgressSynced.WithLabelValues("error").Inc()
		logger.Warn("progress sync attempt failed",
			"tour_id", progress.TourID,
			"attempt", info.Attempt,
			"error", err,
		)
		return err
	}

	metrics.ProgressSynced.WithLabelValues("ok").Inc()
	logger.Debug("progress synced", "tour_id", progress.TourID, "visited", len(progress.VisitedStopIDs))
	return nil
}

// IsInvalidProgress reports whether err is the non-retryable input error of UpsertProgress.
func IsInvalidProgress(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == "InvalidProgress"
}
