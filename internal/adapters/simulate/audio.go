package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// ErrUnknownHandle is returned for handles that were never loaded or are already unloaded.
var ErrUnknownHandle = errors.New("unknown audio handle")

// AudioOptions configures the simulated engine.
type AudioOptions struct {
	// Tick is how often a playing clip reports status.
	Tick time.Duration
	// ClipLength is the duration of every loaded clip.
	ClipLength time.Duration
	// Speed scales virtual time. 1 plays in real time.
	Speed float64
}

type clip struct {
	uri      string
	duration int64
	position int64
	playing  bool
	closed   bool
	events   chan domain.PlaybackStatus
	stop     chan struct{}
}

// AudioEngine implements ports.AudioEngine with virtual clips that advance on
// a ticker. Nothing is decoded or played.
type AudioEngine struct {
	opts   AudioOptions
	logger *slog.Logger

	mu    sync.Mutex
	seq   int
	clips map[ports.AudioHandle]*clip
}

// NewAudioEngine creates a simulated engine.
func NewAudioEngine(opts AudioOptions, logger *slog.Logger) *AudioEngine {
	if opts.Tick <= 0 {
		opts.Tick = 500 * time.Millisecond
	}
	if opts.ClipLength <= 0 {
		opts.ClipLength = 90 * time.Second
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioEngine{
		opts:   opts,
		logger: logger.With("component", "simulated_audio"),
		clips:  make(map[ports.AudioHandle]*clip),
	}
}

// Load registers a paused clip. file:// URIs must point to an existing file.
func (e *AudioEngine) Load(ctx context.Context, uri string) (ports.AudioHandle, <-chan domain.PlaybackStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	u, err := url.Parse(uri)
	if err != nil || uri == "" {
		return "", nil, fmt.Errorf("invalid narration uri %q", uri)
	}
	if u.Scheme == "file" {
		if _, err := os.Stat(u.Path); err != nil {
			return "", nil, fmt.Errorf("open %s: %w", u.Path, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	h := ports.AudioHandle(fmt.Sprintf("sim-%d", e.seq))
	c := &clip{
		uri:      uri,
		duration: e.opts.ClipLength.Milliseconds(),
		events:   make(chan domain.PlaybackStatus, 8),
		stop:     make(chan struct{}),
	}
	e.clips[h] = c
	e.emitLocked(c, false)
	go e.run(c)

	e.logger.Debug("clip loaded", "handle", h, "uri", uri)
	return h, c.events, nil
}

// Play resumes a clip.
func (e *AudioEngine) Play(_ context.Context, h ports.AudioHandle) error {
	return e.update(h, func(c *clip) { c.playing = true })
}

// Pause pauses a clip.
func (e *AudioEngine) Pause(_ context.Context, h ports.AudioHandle) error {
	return e.update(h, func(c *clip) { c.playing = false })
}

// Seek moves a clip's playhead.
func (e *AudioEngine) Seek(_ context.Context, h ports.AudioHandle, positionMillis int64) error {
	return e.update(h, func(c *clip) {
		c.position = min(max(positionMillis, 0), c.duration)
	})
}

// Unload stops a clip and closes its status channel.
func (e *AudioEngine) Unload(_ context.Context, h ports.AudioHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clips[h]
	if !ok {
		return ErrUnknownHandle
	}
	delete(e.clips, h)
	c.closed = true
	close(c.stop)
	close(c.events)
	return nil
}

func (e *AudioEngine) update(h ports.AudioHandle, fn func(*clip)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clips[h]
	if !ok {
		return ErrUnknownHandle
	}
	fn(c)
	e.emitLocked(c, false)
	return nil
}

func (e *AudioEngine) run(c *clip) {
	ticker := time.NewTicker(e.opts.Tick)
	defer ticker.Stop()

	step := int64(float64(e.opts.Tick.Milliseconds()) * e.opts.Speed)
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if c.closed || !c.playing {
				e.mu.Unlock()
				continue
			}
			c.position += step
			finished := c.position >= c.duration
			if finished {
				c.position = c.duration
				c.playing = false
			}
			e.emitLocked(c, finished)
			e.mu.Unlock()
		}
	}
}

// emitLocked never blocks: when the buffer is full the oldest status is dropped.
func (e *AudioEngine) emitLocked(c *clip, finished bool) {
	if c.closed {
		return
	}
	st := domain.PlaybackStatus{
		Loaded:         true,
		Playing:        c.playing,
		PositionMillis: c.position,
		DurationMillis: c.duration,
		JustFinished:   finished,
	}
	for {
		select {
		case c.events <- st:
			return
		default:
		}
		select {
		case <-c.events:
		default:
		}
	}
}
