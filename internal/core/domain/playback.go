package domain

// PlaybackState is the lifecycle state of the narration player.
type PlaybackState string

const (
	PlaybackIdle     PlaybackState = "idle"
	PlaybackLoading  PlaybackState = "loading"
	PlaybackReady    PlaybackState = "ready"
	PlaybackPlaying  PlaybackState = "playing"
	PlaybackFinished PlaybackState = "finished"
)

// PlaybackStatus is a status report from the audio engine.
type PlaybackStatus struct {
	Loaded         bool  `json:"loaded"`
	Playing        bool  `json:"playing"`
	Buffering      bool  `json:"buffering"`
	PositionMillis int64 `json:"position_ms"`
	DurationMillis int64 `json:"duration_ms"`
	JustFinished   bool  `json:"just_finished,omitempty"`
}
