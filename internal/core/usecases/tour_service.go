package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// TourService handles tour-level operations outside a running session.
type TourService struct {
	tours    ports.TourStore
	progress ports.ProgressStore
	remover  ports.TourRemover
	catalog  *TourCatalog
}

// NewTourService creates a new TourService. remover and catalog may be nil.
func NewTourService(tours ports.TourStore, progress ports.ProgressStore, remover ports.TourRemover, catalog *TourCatalog) *TourService {
	return &TourService{tours: tours, progress: progress, remover: remover, catalog: catalog}
}

// Stops returns the tour's stops in route order.
func (s *TourService) Stops(ctx context.Context, tourID string) ([]domain.Stop, error) {
	return s.tours.GetStops(ctx, tourID)
}

// Progress returns the stored progress for a tour, cleaned against its stops.
func (s *TourService) Progress(ctx context.Context, tourID string) (*domain.TourProgress, error) {
	stops, err := s.tours.GetStops(ctx, tourID)
	if err != nil {
		return nil, fmt.Errorf("get stops: %w", err)
	}
	p, err := s.progress.Load(ctx, tourID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", TourID: tourID, Err: err}
	}
	if p == nil {
		d := domain.DefaultProgress(tourID)
		p = &d
	}
	progress := p.Clone()
	progress.Sanitize(stops)
	return &progress, nil
}

// RemoveTour deletes the tour's stored progress and, when supported, its
// downloaded content.
func (s *TourService) RemoveTour(ctx context.Context, tourID string) error {
	if err := s.progress.Delete(ctx, tourID); err != nil {
		return &domain.PersistenceError{Op: "delete", TourID: tourID, Err: err}
	}
	if s.catalog != nil {
		_ = s.catalog.Invalidate(ctx, tourID)
	}
	if s.remover != nil {
		if err := s.remover.RemoveTour(ctx, tourID); err != nil {
			return fmt.Errorf("remove tour content: %w", err)
		}
	}
	return nil
}
