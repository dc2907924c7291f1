package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/audiotour/internal/adapters/nats"
	"github.com/samirrijal/audiotour/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "snapshots" | "events"
	TourID  string `json:"tour_id"` // events filter (optional, "" = all tours)
}

// wsEnvelope tags every outgoing frame with its channel.
type wsEnvelope struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// WebSocketHandler streams player snapshots to the client, and relays tour
// events from NATS on request.
// Clients send JSON: {"action":"subscribe","channel":"events","tour_id":"old-town"}
// Snapshots are subscribed by default.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		logger := slog.Default().With("component", "websocket", "remote_addr", c.RemoteAddr().String())
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		done := make(chan struct{})
		var wg sync.WaitGroup

		var stopSnapshots func()
		subscribeSnapshots := func() bool {
			if deps.Player == nil || stopSnapshots != nil {
				return false
			}
			snaps, cancel := deps.Player.Subscribe()
			stopSnapshots = cancel
			wg.Add(1)
			go func() {
				defer wg.Done()
				for snap := range snaps {
					if err := writeJSON(wsEnvelope{Channel: "snapshots", Data: snap}); err != nil {
						return
					}
				}
			}()
			return true
		}
		subscribeSnapshots()

		subs := make(map[string]*nats.Subscription) // subject -> subscription

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Channel {
			case "", "snapshots":
				switch m.Action {
				case "subscribe":
					if !subscribeSnapshots() {
						_ = writeJSON(map[string]string{"status": "already subscribed", "channel": "snapshots"})
						continue
					}
					_ = writeJSON(map[string]string{"status": "subscribed", "channel": "snapshots"})
				case "unsubscribe":
					if stopSnapshots != nil {
						stopSnapshots()
						stopSnapshots = nil
					}
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": "snapshots"})
				default:
					_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
				}

			case "events":
				if deps.NATS == nil {
					_ = writeJSON(map[string]string{"error": "events are not available"})
					continue
				}
				subject := natsadapter.EventFilter(m.TourID)
				switch m.Action {
				case "subscribe":
					if _, exists := subs[subject]; exists {
						_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
						continue
					}
					s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
						_ = writeJSON(wsEnvelope{Channel: "events", Data: json.RawMessage(msg.Data)})
					})
					if err != nil {
						_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
						continue
					}
					subs[subject] = s
					_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})
				case "unsubscribe":
					if s, exists := subs[subject]; exists {
						_ = s.Unsubscribe()
						delete(subs, subject)
						_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
					} else {
						_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					}
				default:
					_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
			}
		}

		close(done)
		if stopSnapshots != nil {
			stopSnapshots()
		}
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		wg.Wait()
		logger.Info("ws client disconnected")
	}
}
