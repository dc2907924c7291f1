package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// PermissionReply is what a device answers on its permission subject.
type PermissionReply struct {
	Foreground bool `json:"foreground"`
	Background bool `json:"background"`
}

// LocationProvider implements ports.LocationProvider with positions that a
// device publishes on tour.location.<device>.
type LocationProvider struct {
	conn     *nats.Conn
	deviceID string
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last *domain.PositionSample
}

// NewLocationProvider creates a provider for deviceID.
func NewLocationProvider(conn *nats.Conn, deviceID string, logger *slog.Logger) *LocationProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationProvider{
		conn:     conn,
		deviceID: deviceID,
		timeout:  5 * time.Second,
		logger:   logger.With("component", "nats_location", "device_id", deviceID),
	}
}

// RequestPermission asks the device for foreground and background location
// access. Both are required.
func (p *LocationProvider) RequestPermission(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.conn.RequestWithContext(ctx, permissionSubject(p.deviceID), nil)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return false, fmt.Errorf("device %s is not listening: %w", p.deviceID, err)
		}
		return false, fmt.Errorf("permission request: %w", err)
	}

	var reply PermissionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return false, fmt.Errorf("decode permission reply: %w", err)
	}
	return reply.Foreground && reply.Background, nil
}

// CurrentPosition returns the last sample seen, or waits for the next one.
func (p *LocationProvider) CurrentPosition(ctx context.Context) (*domain.PositionSample, error) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last != nil {
		s := *last
		return &s, nil
	}

	sub, err := p.conn.SubscribeSync(positionSubject(p.deviceID))
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for position: %w", err)
	}
	sample, err := decodeSample(msg.Data)
	if err != nil {
		return nil, err
	}
	p.remember(sample)
	return &sample, nil
}

// Watch streams samples, dropping those that moved less than
// opts.DistanceInterval unless opts.Interval has passed since the last one.
func (p *LocationProvider) Watch(ctx context.Context, opts ports.WatchOptions) (<-chan domain.PositionSample, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := p.conn.ChanSubscribe(positionSubject(p.deviceID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan domain.PositionSample, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		var prev *domain.PositionSample
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				sample, err := decodeSample(msg.Data)
				if err != nil {
					p.logger.Warn("dropping malformed position", "error", err)
					continue
				}
				if !shouldEmit(prev, sample, opts) {
					continue
				}
				p.remember(sample)
				prev = &sample
				select {
				case out <- sample:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *LocationProvider) remember(s domain.PositionSample) {
	p.mu.Lock()
	p.last = &s
	p.mu.Unlock()
}

func shouldEmit(prev *domain.PositionSample, next domain.PositionSample, opts ports.WatchOptions) bool {
	if prev == nil {
		return true
	}
	if opts.DistanceInterval > 0 && domain.DistanceMeters(prev.Location, next.Location) >= opts.DistanceInterval {
		return true
	}
	if opts.Interval > 0 && next.Timestamp.Sub(prev.Timestamp) >= opts.Interval {
		return true
	}
	return opts.DistanceInterval <= 0 && opts.Interval <= 0
}

func decodeSample(data []byte) (domain.PositionSample, error) {
	var s domain.PositionSample
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode position: %w", err)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s, nil
}

// ServePermission answers permission requests for deviceID with reply until
// the returned subscription is unsubscribed.
func ServePermission(conn *nats.Conn, deviceID string, reply PermissionReply) (*nats.Subscription, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	return conn.Subscribe(permissionSubject(deviceID), func(msg *nats.Msg) {
		_ = msg.Respond(data)
	})
}
