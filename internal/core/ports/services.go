package ports

import (
	"context"
	"time"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// WatchOptions tunes the position stream.
type WatchOptions struct {
	Interval         time.Duration
	DistanceInterval float64
	HighAccuracy     bool
}

// LocationProvider supplies device positions.
type LocationProvider interface {
	// RequestPermission reports whether both foreground and background access were granted.
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (*domain.PositionSample, error)
	// Watch streams samples until ctx is cancelled. The channel is closed on exit.
	Watch(ctx context.Context, opts WatchOptions) (<-chan domain.PositionSample, error)
}

// AudioHandle identifies one loaded asset inside an AudioEngine.
type AudioHandle string

// AudioEngine plays narration assets. Status channels must never block the engine.
type AudioEngine interface {
	Load(ctx context.Context, uri string) (AudioHandle, <-chan domain.PlaybackStatus, error)
	Play(ctx context.Context, h AudioHandle) error
	Pause(ctx context.Context, h AudioHandle) error
	Seek(ctx context.Context, h AudioHandle, positionMillis int64) error
	// Unload releases the asset and closes its status channel.
	Unload(ctx context.Context, h AudioHandle) error
}

// EventPublisher publishes player events to a message broker.
type EventPublisher interface {
	PublishTourEvent(ctx context.Context, event *domain.TourEvent) error
}

// EventSubscriber subscribes to player events from a message broker.
type EventSubscriber interface {
	SubscribeTourEvents(ctx context.Context, handler func(ctx context.Context, event *domain.TourEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
