package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

const (
	tourEventsStream  = "TOUR_EVENTS"
	tourEventsSubject = "tour.events"
)

// Connect opens a plain NATS connection that keeps reconnecting.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher enables JetStream on conn and makes sure the event stream exists.
func NewPublisher(conn *nats.Conn) (*Publisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      tourEventsStream,
		Subjects:  []string{tourEventsSubject + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishTourEvent publishes to tour.events.<tour>.<type>.
func (p *Publisher) PublishTourEvent(ctx context.Context, event *domain.TourEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(EventSubject(event.TourID, event.Type), data,
		nats.Context(ctx),
		nats.MsgId(event.ID),
	)
	return err
}

// PublishPosition publishes a device position on the core NATS subject the
// location provider listens to.
func (p *Publisher) PublishPosition(deviceID string, sample domain.PositionSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return p.conn.Publish(positionSubject(deviceID), data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// EventSubject returns the subject a tour event is published on.
func EventSubject(tourID string, typ domain.TourEventType) string {
	return tourEventsSubject + "." + subjectToken(tourID) + "." + string(typ)
}

// EventFilter returns the wildcard subject for one tour's events, or for all
// tours when tourID is empty.
func EventFilter(tourID string) string {
	if tourID == "" {
		return tourEventsSubject + ".>"
	}
	return tourEventsSubject + "." + subjectToken(tourID) + ".>"
}

func positionSubject(deviceID string) string {
	return "tour.location." + subjectToken(deviceID)
}

func permissionSubject(deviceID string) string {
	return "tour.permission." + subjectToken(deviceID)
}

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return r.Replace(id)
}
