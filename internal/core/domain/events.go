package domain

import "time"

// TourEventType names a player lifecycle event.
type TourEventType string

const (
	EventStopTriggered TourEventType = "stop_triggered"
	EventStopCompleted TourEventType = "stop_completed"
	EventProgressSaved TourEventType = "progress_saved"
	EventSessionClosed TourEventType = "session_closed"
)

// TourEvent is published to the message broker as the player runs.
type TourEvent struct {
	ID        string        `json:"id"`
	Type      TourEventType `json:"type"`
	TourID    string        `json:"tour_id"`
	SessionID string        `json:"session_id"`
	StopID    string        `json:"stop_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Progress  *TourProgress `json:"progress,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
