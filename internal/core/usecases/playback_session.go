package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// SessionSnapshot is a point-in-time view of a PlaybackSession.
type SessionSnapshot struct {
	State  domain.PlaybackState  `json:"state"`
	StopID string                `json:"stop_id,omitempty"`
	Status domain.PlaybackStatus `json:"status"`
}

// PlaybackSession owns the audio engine handle for one tour. At most one asset
// is loaded at a time and any previous asset is unloaded before the next load
// starts.
type PlaybackSession struct {
	engine     ports.AudioEngine
	logger     *slog.Logger
	onComplete func(stopID string)

	loadMu sync.Mutex

	mu        sync.Mutex
	gen       uint64
	state     domain.PlaybackState
	stopID    string
	handle    ports.AudioHandle
	events    <-chan domain.PlaybackStatus
	status    domain.PlaybackStatus
	completed bool
}

// NewPlaybackSession creates an idle session. onComplete is called once per
// load, on the goroutine that delivered the finishing status.
func NewPlaybackSession(engine ports.AudioEngine, logger *slog.Logger, onComplete func(stopID string)) *PlaybackSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackSession{
		engine:     engine,
		logger:     logger.With("component", "playback_session"),
		onComplete: onComplete,
		state:      domain.PlaybackIdle,
	}
}

// Load replaces the current asset with uri and leaves the session paused.
func (s *PlaybackSession) Load(ctx context.Context, stopID, uri string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	prev := s.handle
	s.gen++
	gen := s.gen
	s.handle = ""
	s.events = nil
	s.state = domain.PlaybackLoading
	s.stopID = stopID
	s.status = domain.PlaybackStatus{}
	s.completed = false
	s.mu.Unlock()

	if prev != "" {
		if err := s.engine.Unload(ctx, prev); err != nil {
			s.mu.Lock()
			// Keep the handle so the next Load or Unload retries it.
			if s.handle == "" {
				s.handle = prev
			}
			if gen == s.gen {
				s.state = domain.PlaybackIdle
				s.stopID = ""
			}
			s.mu.Unlock()
			return &domain.PlaybackLoadError{StopID: stopID, Err: fmt.Errorf("unload previous narration: %w", err)}
		}
	}

	h, events, err := s.engine.Load(ctx, uri)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if err == nil {
			// Nobody owns this handle any more.
			if uerr := s.engine.Unload(context.WithoutCancel(ctx), h); uerr != nil {
				s.logger.Warn("failed to unload superseded narration", "stop_id", stopID, "error", uerr)
			}
		}
		return domain.ErrLoadSuperseded
	}
	if err != nil {
		s.state = domain.PlaybackIdle
		s.stopID = ""
		s.mu.Unlock()
		return &domain.PlaybackLoadError{StopID: stopID, Err: err}
	}
	s.handle = h
	s.events = events
	s.state = domain.PlaybackReady
	s.status.Loaded = true
	s.mu.Unlock()

	return nil
}

// Play starts or resumes playback. A finished asset replays from the start.
func (s *PlaybackSession) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.PlaybackPlaying:
		return nil
	case domain.PlaybackFinished:
		if err := s.engine.Seek(ctx, s.handle, 0); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
		s.status.PositionMillis = 0
	case domain.PlaybackReady:
	default:
		return fmt.Errorf("play from %s: %w", s.state, domain.ErrInvalidTransition)
	}

	if err := s.engine.Play(ctx, s.handle); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	s.state = domain.PlaybackPlaying
	s.status.Playing = true
	return nil
}

// Pause pauses a playing asset. It is a no-op in any other state.
func (s *PlaybackSession) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.PlaybackPlaying {
		return nil
	}
	if err := s.engine.Pause(ctx, s.handle); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	s.state = domain.PlaybackReady
	s.status.Playing = false
	return nil
}

// Seek moves the playhead, clamped to [0, duration], and returns the applied
// position. The duration bound only applies once the engine has reported it.
func (s *PlaybackSession) Seek(ctx context.Context, positionMillis int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.PlaybackReady && s.state != domain.PlaybackPlaying {
		return 0, fmt.Errorf("seek from %s: %w", s.state, domain.ErrInvalidTransition)
	}
	pos := clampPosition(positionMillis, s.status.DurationMillis)
	if err := s.engine.Seek(ctx, s.handle, pos); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	s.status.PositionMillis = pos
	return pos, nil
}

// HandleStatus applies an engine status report. gen must be the value returned
// by Events alongside the channel the status came from; reports for an older
// asset are dropped. It reports whether this status completed the asset.
func (s *PlaybackSession) HandleStatus(gen uint64, st domain.PlaybackStatus) bool {
	s.mu.Lock()
	if gen != s.gen || s.state == domain.PlaybackIdle || s.state == domain.PlaybackLoading {
		s.mu.Unlock()
		return false
	}

	s.status.Loaded = st.Loaded
	s.status.Buffering = st.Buffering
	if st.DurationMillis > 0 {
		s.status.DurationMillis = st.DurationMillis
	}
	s.status.PositionMillis = clampPosition(st.PositionMillis, s.status.DurationMillis)
	s.status.JustFinished = false

	finished := false
	if st.JustFinished && s.state == domain.PlaybackPlaying {
		s.state = domain.PlaybackFinished
		s.status.Playing = false
		s.status.JustFinished = true
		if !s.completed {
			s.completed = true
			finished = true
		}
	}
	stopID := s.stopID
	s.mu.Unlock()

	if finished && s.onComplete != nil {
		s.onComplete(stopID)
	}
	return finished
}

// Unload releases the current asset and supersedes any in-flight load.
func (s *PlaybackSession) Unload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	h := s.handle
	s.handle = ""
	s.events = nil
	s.state = domain.PlaybackIdle
	s.stopID = ""
	s.status = domain.PlaybackStatus{}
	s.completed = false

	if h == "" {
		return nil
	}
	if err := s.engine.Unload(ctx, h); err != nil {
		return fmt.Errorf("unload: %w", err)
	}
	return nil
}

// Events returns the status channel of the loaded asset, or nil, together
// with the generation to pass to HandleStatus.
func (s *PlaybackSession) Events() (<-chan domain.PlaybackStatus, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, s.gen
}

// DetachEvents forgets a status channel the engine has closed.
func (s *PlaybackSession) DetachEvents(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.events = nil
	}
}

// Snapshot returns the current state.
func (s *PlaybackSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{State: s.state, StopID: s.stopID, Status: s.status}
}

func clampPosition(pos, duration int64) int64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}
