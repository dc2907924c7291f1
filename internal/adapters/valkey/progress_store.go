package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

const progressKeyPrefix = "progress:"

// ProgressStore implements ports.ProgressStore on top of a Cache. Progress
// entries never expire.
type ProgressStore struct {
	cache *Cache
}

// NewProgressStore creates a progress store sharing cache's client.
func NewProgressStore(cache *Cache) *ProgressStore {
	return &ProgressStore{cache: cache}
}

func progressKey(tourID string) string { return progressKeyPrefix + tourID }

// Load returns the stored progress or the default progress for tourID.
func (s *ProgressStore) Load(ctx context.Context, tourID string) (*domain.TourProgress, error) {
	data, err := s.cache.Get(ctx, progressKey(tourID))
	if errors.Is(err, ErrCacheMiss) {
		p := domain.DefaultProgress(tourID)
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", tourID, err)
	}

	var p domain.TourProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", tourID, err)
	}
	if p.TourID == "" {
		p.TourID = tourID
	}
	if p.VisitedStopIDs == nil {
		p.VisitedStopIDs = []string{}
	}
	return &p, nil
}

// Save overwrites the stored progress.
func (s *ProgressStore) Save(ctx context.Context, p *domain.TourProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, progressKey(p.TourID), data, 0)
}

// Delete removes stored progress.
func (s *ProgressStore) Delete(ctx context.Context, tourID string) error {
	return s.cache.Delete(ctx, progressKey(tourID))
}
