package usecases

import (
	"context"
	"encoding/json"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
	"github.com/samirrijal/audiotour/internal/pkg/metrics"
)

// TourCatalog is a read-through cache in front of a TourStore.
type TourCatalog struct {
	tours ports.TourStore
	cache ports.CacheService
}

// NewTourCatalog creates a new TourCatalog. cache may be nil.
func NewTourCatalog(tours ports.TourStore, cache ports.CacheService) *TourCatalog {
	return &TourCatalog{tours: tours, cache: cache}
}

// GetStops returns the tour's stops in route order.
func (s *TourCatalog) GetStops(ctx context.Context, tourID string) ([]domain.Stop, error) {
	cacheKey := "tours:stops:" + tourID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stops []domain.Stop
			if err := json.Unmarshal(data, &stops); err == nil {
				metrics.CacheHits.WithLabelValues("tour_stops").Inc()
				return stops, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("tour_stops").Inc()
	}

	stops, err := s.tours.GetStops(ctx, tourID)
	if err != nil {
		return nil, err
	}

	// Cache for 5 minutes (published tours rarely change)
	if s.cache != nil {
		if data, err := json.Marshal(stops); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return stops, nil
}

// AssetURI resolves a narration key to a playable URI.
func (s *TourCatalog) AssetURI(ctx context.Context, tourID, narrationKey string) (string, error) {
	cacheKey := "tours:asset:" + tourID + ":" + narrationKey
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			metrics.CacheHits.WithLabelValues("tour_asset").Inc()
			return string(data), nil
		}
		metrics.CacheMisses.WithLabelValues("tour_asset").Inc()
	}

	uri, err := s.tours.AssetURI(ctx, tourID, narrationKey)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, []byte(uri), 600)
	}

	return uri, nil
}

// Invalidate drops cached entries for a tour's stop list.
func (s *TourCatalog) Invalidate(ctx context.Context, tourID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, "tours:stops:"+tourID)
}
