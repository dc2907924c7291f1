package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing conn. durable names the consumer.
func NewSubscriber(conn *nats.Conn, durable string) (*Subscriber, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, durable: durable}, nil
}

// SubscribeTourEvents delivers every tour event. A handler error triggers redelivery.
func (s *Subscriber) SubscribeTourEvents(ctx context.Context, handler func(ctx context.Context, event *domain.TourEvent) error) error {
	sub, err := s.js.Subscribe(tourEventsSubject+".>", func(msg *nats.Msg) {
		var event domain.TourEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Poison message, redelivery cannot fix it.
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
