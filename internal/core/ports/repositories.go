package ports

import (
	"context"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// TourStore reads tour content.
type TourStore interface {
	// GetStops returns the tour's stops in route order.
	GetStops(ctx context.Context, tourID string) ([]domain.Stop, error)
	// AssetURI resolves a narration key to a playable URI.
	AssetURI(ctx context.Context, tourID, narrationKey string) (string, error)
}

// TourRemover deletes downloaded tour content.
type TourRemover interface {
	RemoveTour(ctx context.Context, tourID string) error
}

// ProgressStore persists per-tour progress.
type ProgressStore interface {
	// Load returns the stored progress, or the default progress when none exists.
	Load(ctx context.Context, tourID string) (*domain.TourProgress, error)
	Save(ctx context.Context, progress *domain.TourProgress) error
	Delete(ctx context.Context, tourID string) error
}
