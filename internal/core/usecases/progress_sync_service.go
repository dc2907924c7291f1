package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// ProgressSyncService replicates device progress into a central store.
type ProgressSyncService struct {
	central ports.ProgressStore
}

// NewProgressSyncService creates a new ProgressSyncService.
func NewProgressSyncService(central ports.ProgressStore) *ProgressSyncService {
	return &ProgressSyncService{central: central}
}

// Sync upserts a progress snapshot. The store keeps whichever copy was played
// most recently.
func (s *ProgressSyncService) Sync(ctx context.Context, progress *domain.TourProgress) error {
	if progress == nil || progress.TourID == "" {
		return errors.New("progress without tour id")
	}
	p := progress.Clone()
	if p.ActiveAudioPositionMillis < 0 {
		p.ActiveAudioPositionMillis = 0
	}
	if err := s.central.Save(ctx, &p); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}
