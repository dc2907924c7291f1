package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
	"github.com/samirrijal/audiotour/internal/pkg/metrics"
	"github.com/samirrijal/audiotour/internal/pkg/telemetry"
)

// Trigger reasons reported in events and metrics.
const (
	ReasonGeofence = "geofence"
	ReasonNext     = "next"
	ReasonPrevious = "previous"
	ReasonManual   = "manual"
)

const (
	defaultLoadTimeout      = 30 * time.Second
	defaultSaveTimeout      = 5 * time.Second
	defaultSampleInterval   = 2 * time.Second
	defaultDistanceInterval = 5.0
)

// ControllerConfig tunes a TourController.
type ControllerConfig struct {
	TourID      string
	Watch       ports.WatchOptions
	LoadTimeout time.Duration
	SaveTimeout time.Duration
}

// ControllerOption customises a TourController.
type ControllerOption func(*TourController)

// WithPublisher fans player events out to a broker.
func WithPublisher(p ports.EventPublisher) ControllerOption {
	return func(c *TourController) { c.publisher = p }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *TourController) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the wall clock used for LastPlayedAt and events.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *TourController) { c.now = now }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) ControllerOption {
	return func(c *TourController) { c.sessionID = id }
}

// NextStopHint points at the nearest unvisited stop from the last known position.
type NextStopHint struct {
	StopID         string  `json:"stop_id"`
	Title          string  `json:"title"`
	DistanceMeters float64 `json:"distance_meters"`
	BearingDegrees float64 `json:"bearing_degrees"`
}

// Snapshot is the display read model of a TourController.
type Snapshot struct {
	TourID               string                 `json:"tour_id"`
	SessionID            string                 `json:"session_id"`
	State                domain.PlaybackState   `json:"state"`
	ActiveStop           *domain.Stop           `json:"active_stop,omitempty"`
	IsPlaying            bool                   `json:"is_playing"`
	PositionMillis       int64                  `json:"position_ms"`
	Playback             domain.PlaybackStatus  `json:"playback"`
	VisitedStopIDs       []string               `json:"visited_stop_ids"`
	Stops                []domain.Stop          `json:"stops"`
	CompletedCount       int                    `json:"completed_count"`
	TotalStops           int                    `json:"total_stops"`
	PermissionGranted    bool                   `json:"permission_granted"`
	AwaitingConfirmation bool                   `json:"awaiting_confirmation"`
	Background           bool                   `json:"background"`
	PendingSave          bool                   `json:"pending_save"`
	LastPosition         *domain.PositionSample `json:"last_position,omitempty"`
	NextStop             *NextStopHint          `json:"next_stop,omitempty"`
	LastPlayedAt         string                 `json:"last_played_at,omitempty"`
	LoadingSince         string                 `json:"loading_since,omitempty"`
	LastError            string                 `json:"last_error,omitempty"`
	Closed               bool                   `json:"closed"`
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdPause
	cmdSeek
	cmdNext
	cmdPrev
	cmdGoTo
	cmdBackground
	cmdForeground
	cmdRefresh
	cmdClose
)

type command struct {
	kind     commandKind
	stopID   string
	position int64
	ctx      context.Context
	reply    chan error
}

type pendingLoad struct {
	seq     uint64
	stopID  string
	play    bool
	seekTo  int64
	started time.Time
	cancel  context.CancelFunc
}

type loadResult struct {
	seq uint64
	err error
}

// TourController runs one open tour: it turns position samples into stop
// activations, drives the PlaybackSession and persists progress. Every event
// is handled on a single goroutine; the exported methods hand commands to it.
type TourController struct {
	cfg       ControllerConfig
	sessionID string
	tours     ports.TourStore
	location  ports.LocationProvider
	store     ports.ProgressStore
	publisher ports.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
	session   *PlaybackSession

	commands chan command
	loadDone chan loadResult
	done     chan struct{}
	started  atomic.Bool

	// Owned by the run loop once Start returns.
	ctx             context.Context
	cancel          context.CancelFunc
	watchCancel     context.CancelFunc
	samples         <-chan domain.PositionSample
	stops           []domain.Stop
	progress        domain.TourProgress
	lastSample      *domain.PositionSample
	pendingSample   *domain.PositionSample
	loading         *pendingLoad
	loadSeq         uint64
	awaitingConfirm bool
	permission      bool
	background      bool
	dirty           bool
	lastErr         error
	closed          bool

	mu           sync.RWMutex
	snapshot     Snapshot
	progressView domain.TourProgress
	subs         map[int]chan Snapshot
	subsClosed   bool
	nextSub      int
}

// NewTourController wires a controller for cfg.TourID. Call Start to run it.
func NewTourController(
	cfg ControllerConfig,
	tours ports.TourStore,
	location ports.LocationProvider,
	store ports.ProgressStore,
	engine ports.AudioEngine,
	opts ...ControllerOption,
) *TourController {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if cfg.Watch.Interval <= 0 {
		cfg.Watch.Interval = defaultSampleInterval
	}
	if cfg.Watch.DistanceInterval <= 0 {
		cfg.Watch.DistanceInterval = defaultDistanceInterval
	}

	c := &TourController{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		tours:     tours,
		location:  location,
		store:     store,
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    telemetry.Tracer(),
		commands:  make(chan command),
		loadDone:  make(chan loadResult),
		done:      make(chan struct{}),
		progress:  domain.DefaultProgress(cfg.TourID),
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "tour_controller", "tour_id", cfg.TourID, "session_id", c.sessionID)
	c.session = NewPlaybackSession(engine, c.logger, c.handleStopCompleted)
	return c
}

// SessionID identifies this controller run in events and logs.
func (c *TourController) SessionID() string { return c.sessionID }

// TourID returns the tour this controller plays.
func (c *TourController) TourID() string { return c.cfg.TourID }

// Start loads stops and progress, asks for location access and starts the
// event loop. A stored active stop is loaded and positioned but not played.
// Only a tour store failure is fatal; without location access the session
// runs in manual mode.
func (c *TourController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("tour controller already started")
	}

	stops, err := c.tours.GetStops(ctx, c.cfg.TourID)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("get stops for tour %s: %w", c.cfg.TourID, err)
	}
	for _, verr := range ValidateStops(stops) {
		c.logger.Warn("stop excluded from geofence triggering", "error", verr)
	}
	c.stops = stops

	c.progress = c.loadProgress(ctx)
	c.progress.Sanitize(stops)

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.startWatch(ctx)

	metrics.ActiveSessions.Inc()
	c.logger.Info("tour session started",
		"stops", len(stops),
		"visited", len(c.progress.VisitedStopIDs),
		"permission", c.permission,
	)

	c.restore()
	c.publishSnapshot()
	go c.run()
	return nil
}

func (c *TourController) loadProgress(ctx context.Context) domain.TourProgress {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanProgressLoad,
		trace.WithAttributes(attribute.String(telemetry.AttrTourID, c.cfg.TourID)))
	defer span.End()

	p, err := c.store.Load(ctx, c.cfg.TourID)
	if err != nil {
		perr := &domain.PersistenceError{Op: "load", TourID: c.cfg.TourID, Err: err}
		span.RecordError(perr)
		c.lastErr = perr
		c.logger.Warn("progress load failed, starting fresh", "error", perr)
		return domain.DefaultProgress(c.cfg.TourID)
	}
	if p == nil {
		return domain.DefaultProgress(c.cfg.TourID)
	}
	progress := p.Clone()
	progress.TourID = c.cfg.TourID
	return progress
}

func (c *TourController) startWatch(ctx context.Context) {
	granted, err := c.location.RequestPermission(ctx)
	if err != nil || !granted {
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
		} else {
			err = domain.ErrPermissionDenied
		}
		c.lastErr = err
		c.logger.Warn("location unavailable, geofence triggering disabled", "error", err)
		return
	}

	watchCtx, cancel := context.WithCancel(c.ctx)
	samples, err := c.location.Watch(watchCtx, c.cfg.Watch)
	if err != nil {
		cancel()
		c.lastErr = fmt.Errorf("watch position: %w", err)
		c.logger.Warn("location watch failed, geofence triggering disabled", "error", err)
		return
	}
	c.permission = true
	c.watchCancel = cancel
	c.samples = samples
}

func (c *TourController) restore() {
	stop, ok := c.activeStop()
	if !ok {
		return
	}
	c.progress.IsPlaying = false
	c.awaitingConfirm = true
	c.logger.Info("restoring active stop",
		"stop_id", stop.ID,
		"position_ms", c.progress.ActiveAudioPositionMillis,
	)
	c.beginLoad(c.ctx, stop, false, c.progress.ActiveAudioPositionMillis)
}

func (c *TourController) run() {
	defer close(c.done)
	defer c.cancel()
	defer metrics.ActiveSessions.Dec()
	defer c.closeSubscribers()

	for !c.closed {
		events, gen := c.session.Events()

		select {
		case sample, ok := <-c.samples:
			if !ok {
				c.samples = nil
				c.logger.Info("location stream ended")
				break
			}
			c.handleSample(sample)
		case st, ok := <-events:
			if !ok {
				c.session.DetachEvents(gen)
				break
			}
			c.handleStatus(gen, st)
		case res := <-c.loadDone:
			c.handleLoadResult(res)
		case cmd := <-c.commands:
			err := c.handleCommand(cmd)
			c.publishSnapshot()
			cmd.reply <- err
			continue
		}
		c.publishSnapshot()
	}
}

func (c *TourController) handleSample(sample domain.PositionSample) {
	metrics.PositionSamples.Inc()
	s := sample
	c.lastSample = &s

	// Latest sample wins while a load is in flight.
	if c.loading != nil {
		c.pendingSample = &s
		return
	}
	c.evaluate(s)
}

func (c *TourController) evaluate(sample domain.PositionSample) {
	if !sample.Location.Valid() {
		return
	}
	selected := SelectStop(sample.Location, c.stops, c.progress.VisitedStopIDs)
	if selected == nil {
		return
	}
	if selected.ID == c.progress.ActiveStopID {
		if c.awaitingConfirm {
			c.awaitingConfirm = false
			if err := c.startPlayback(c.ctx); err != nil {
				c.logger.Warn("resume on arrival failed", "stop_id", selected.ID, "error", err)
			}
		}
		return
	}
	c.activate(c.ctx, *selected, ReasonGeofence)
}

func (c *TourController) handleStatus(gen uint64, st domain.PlaybackStatus) {
	c.session.HandleStatus(gen, st)

	snap := c.session.Snapshot()
	if snap.StopID == c.progress.ActiveStopID && snap.State != domain.PlaybackFinished {
		c.progress.ActiveAudioPositionMillis = snap.Status.PositionMillis
	}
}

// handleStopCompleted runs on the loop goroutine from inside HandleStatus.
func (c *TourController) handleStopCompleted(stopID string) {
	if stopID != c.progress.ActiveStopID {
		return
	}
	metrics.StopsCompleted.Inc()
	c.progress.MarkVisited(stopID)
	c.progress.IsPlaying = false
	c.progress.ActiveAudioPositionMillis = 0
	c.logger.Info("stop completed", "stop_id", stopID, "visited", len(c.progress.VisitedStopIDs))

	c.publish(c.ctx, domain.EventStopCompleted, stopID, "")
	_ = c.persist(c.ctx, "finished")
}

// activate makes stop the active stop and starts its narration.
func (c *TourController) activate(ctx context.Context, stop domain.Stop, reason string) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanStopTrigger, trace.WithAttributes(
		attribute.String(telemetry.AttrTourID, c.cfg.TourID),
		attribute.String(telemetry.AttrStopID, stop.ID),
		attribute.String(telemetry.AttrReason, reason),
	))
	defer span.End()

	// Leaving a stop only counts as a visit if its narration ran to the end.
	if prev := c.progress.ActiveStopID; prev != "" && prev != stop.ID {
		if snap := c.session.Snapshot(); snap.StopID == prev && snap.State == domain.PlaybackFinished {
			c.progress.MarkVisited(prev)
		}
	}

	c.cancelLoad(ctx)
	c.progress.ActiveStopID = stop.ID
	c.progress.ActiveAudioPositionMillis = 0
	c.progress.IsPlaying = false
	c.awaitingConfirm = false

	metrics.GeofenceTriggers.WithLabelValues(reason).Inc()
	c.logger.Info("stop triggered", "stop_id", stop.ID, "reason", reason)
	c.publish(ctx, domain.EventStopTriggered, stop.ID, reason)

	c.beginLoad(ctx, stop, true, 0)
	_ = c.persist(c.ctx, "stop_triggered")
}

func (c *TourController) beginLoad(ctx context.Context, stop domain.Stop, play bool, seekTo int64) {
	if stop.NarrationKey == "" {
		if err := c.session.Unload(ctx); err != nil {
			c.logger.Warn("failed to unload narration", "error", err)
		}
		c.logger.Info("stop has no narration", "stop_id", stop.ID)
		return
	}

	uri, err := c.tours.AssetURI(ctx, c.cfg.TourID, stop.NarrationKey)
	if err != nil {
		if uerr := c.session.Unload(ctx); uerr != nil {
			c.logger.Warn("failed to unload narration", "error", uerr)
		}
		c.recordLoadError(&domain.PlaybackLoadError{StopID: stop.ID, Err: fmt.Errorf("resolve asset: %w", err)})
		return
	}

	c.loadSeq++
	loadCtx, cancel := context.WithTimeout(c.ctx, c.cfg.LoadTimeout)
	p := &pendingLoad{
		seq:     c.loadSeq,
		stopID:  stop.ID,
		play:    play,
		seekTo:  seekTo,
		started: c.now(),
		cancel:  cancel,
	}
	c.loading = p

	go func() {
		lctx, span := c.tracer.Start(loadCtx, telemetry.SpanNarrationLoad, trace.WithAttributes(
			attribute.String(telemetry.AttrStopID, p.stopID),
		))
		err := c.session.Load(lctx, p.stopID, uri)
		if err != nil {
			span.RecordError(err)
		}
		span.End()

		select {
		case c.loadDone <- loadResult{seq: p.seq, err: err}:
		case <-c.done:
		}
	}()
}

// cancelLoad abandons the in-flight load, if any. The session unloads the
// asset itself once the engine hands it back.
func (c *TourController) cancelLoad(ctx context.Context) {
	if c.loading == nil {
		return
	}
	c.loading.cancel()
	c.loading = nil
	if err := c.session.Unload(ctx); err != nil {
		c.logger.Warn("failed to unload narration", "error", err)
	}
}

func (c *TourController) handleLoadResult(res loadResult) {
	p := c.loading
	if p == nil || p.seq != res.seq {
		return
	}
	c.loading = nil
	p.cancel()
	metrics.LoadDuration.Observe(c.now().Sub(p.started).Seconds())

	switch {
	case errors.Is(res.err, domain.ErrLoadSuperseded):
	case res.err != nil:
		c.progress.IsPlaying = false
		c.recordLoadError(res.err)
	default:
		if p.seekTo > 0 {
			pos, err := c.session.Seek(c.ctx, p.seekTo)
			if err != nil {
				c.logger.Warn("seek after load failed", "stop_id", p.stopID, "error", err)
			} else {
				c.progress.ActiveAudioPositionMillis = pos
			}
		}
		if p.play {
			if err := c.startPlayback(c.ctx); err != nil {
				c.logger.Warn("autoplay failed", "stop_id", p.stopID, "error", err)
			}
		}
	}

	if s := c.pendingSample; s != nil {
		c.pendingSample = nil
		c.evaluate(*s)
	}
}

func (c *TourController) recordLoadError(err error) {
	metrics.LoadErrors.Inc()
	c.lastErr = err
	c.logger.Warn("narration load failed", "error", err)
}

func (c *TourController) startPlayback(ctx context.Context) error {
	if err := c.session.Play(ctx); err != nil {
		return err
	}
	c.progress.IsPlaying = true
	c.awaitingConfirm = false
	c.progress.Touch(c.now())
	return nil
}

// syncPosition copies the session playhead into progress when the session
// holds the active stop.
func (c *TourController) syncPosition() {
	snap := c.session.Snapshot()
	if snap.StopID != c.progress.ActiveStopID {
		return
	}
	switch snap.State {
	case domain.PlaybackReady, domain.PlaybackPlaying:
		c.progress.ActiveAudioPositionMillis = snap.Status.PositionMillis
	}
}

func (c *TourController) persist(ctx context.Context, reason string) error {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanProgressSave, trace.WithAttributes(
		attribute.String(telemetry.AttrTourID, c.cfg.TourID),
		attribute.String(telemetry.AttrReason, reason),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SaveTimeout)
	defer cancel()

	c.syncPosition()
	p := c.progress.Clone()
	if err := c.store.Save(ctx, &p); err != nil {
		perr := &domain.PersistenceError{Op: "save", TourID: c.cfg.TourID, Err: err}
		c.dirty = true
		c.lastErr = perr
		span.RecordError(perr)
		metrics.ProgressSaves.WithLabelValues("error").Inc()
		c.logger.Warn("progress save failed, retrying at next trigger point", "reason", reason, "error", perr)
		return perr
	}
	c.dirty = false
	metrics.ProgressSaves.WithLabelValues("ok").Inc()
	c.logger.Debug("progress saved", "reason", reason)

	c.publish(ctx, domain.EventProgressSaved, "", reason)
	return nil
}

func (c *TourController) publish(ctx context.Context, typ domain.TourEventType, stopID, reason string) {
	if c.publisher == nil {
		return
	}
	event := &domain.TourEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		TourID:    c.cfg.TourID,
		SessionID: c.sessionID,
		StopID:    stopID,
		Reason:    reason,
		Timestamp: c.now().UTC(),
	}
	if typ == domain.EventProgressSaved {
		p := c.progress.Clone()
		event.Progress = &p
	}
	if err := c.publisher.PublishTourEvent(ctx, event); err != nil {
		c.logger.Warn("failed to publish tour event", "type", typ, "error", err)
	}
}

func (c *TourController) handleCommand(cmd command) error {
	ctx := cmd.ctx
	switch cmd.kind {
	case cmdPlay:
		return c.play(ctx)
	case cmdPause:
		return c.pause(ctx)
	case cmdSeek:
		return c.seek(ctx, cmd.position)
	case cmdNext:
		return c.step(1)
	case cmdPrev:
		return c.step(-1)
	case cmdGoTo:
		idx := c.indexOf(cmd.stopID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", domain.ErrUnknownStop, cmd.stopID)
		}
		c.activate(c.ctx, c.stops[idx], ReasonManual)
		return nil
	case cmdBackground:
		c.background = true
		_ = c.persist(c.ctx, "background")
		return nil
	case cmdForeground:
		c.background = false
		return nil
	case cmdRefresh:
		return nil
	case cmdClose:
		return c.shutdown(ctx)
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (c *TourController) play(ctx context.Context) error {
	if c.loading != nil {
		c.loading.play = true
		return nil
	}
	switch c.session.Snapshot().State {
	case domain.PlaybackReady, domain.PlaybackPlaying, domain.PlaybackFinished:
		return c.startPlayback(ctx)
	}

	// Nothing loaded, e.g. after a failed load. Retry the active stop.
	stop, ok := c.activeStop()
	if !ok {
		return domain.ErrNoActiveStop
	}
	c.awaitingConfirm = false
	c.beginLoad(ctx, stop, true, c.progress.ActiveAudioPositionMillis)
	return nil
}

func (c *TourController) pause(ctx context.Context) error {
	if c.loading != nil {
		c.loading.play = false
	}
	if err := c.session.Pause(ctx); err != nil {
		return err
	}
	c.progress.IsPlaying = false
	c.awaitingConfirm = false
	_ = c.persist(c.ctx, "pause")
	return nil
}

func (c *TourController) seek(ctx context.Context, positionMillis int64) error {
	if c.loading != nil {
		c.loading.seekTo = max(positionMillis, 0)
		return nil
	}
	pos, err := c.session.Seek(ctx, positionMillis)
	if err != nil {
		return err
	}
	c.progress.ActiveAudioPositionMillis = pos
	return nil
}

func (c *TourController) step(delta int) error {
	idx := c.indexOf(c.progress.ActiveStopID)
	target := idx + delta
	if idx < 0 {
		if delta < 0 {
			return domain.ErrNoActiveStop
		}
		target = 0
	}
	if target < 0 || target >= len(c.stops) {
		return domain.ErrNoAdjacentStop
	}
	reason := ReasonNext
	if delta < 0 {
		reason = ReasonPrevious
	}
	c.activate(c.ctx, c.stops[target], reason)
	return nil
}

func (c *TourController) shutdown(ctx context.Context) error {
	c.closed = true
	if c.watchCancel != nil {
		c.watchCancel()
	}
	c.samples = nil
	if c.loading != nil {
		c.loading.cancel()
		c.loading = nil
	}

	c.syncPosition()
	var errs []error
	if err := c.session.Unload(ctx); err != nil {
		c.logger.Warn("failed to unload narration on close", "error", err)
		errs = append(errs, err)
	}
	if err := c.persist(ctx, "close"); err != nil {
		errs = append(errs, err)
	}
	c.publish(ctx, domain.EventSessionClosed, "", "")
	c.logger.Info("tour session closed", "visited", len(c.progress.VisitedStopIDs))
	return errors.Join(errs...)
}

func (c *TourController) activeStop() (domain.Stop, bool) {
	idx := c.indexOf(c.progress.ActiveStopID)
	if idx < 0 {
		return domain.Stop{}, false
	}
	return c.stops[idx], true
}

func (c *TourController) indexOf(stopID string) int {
	if stopID == "" {
		return -1
	}
	return slices.IndexFunc(c.stops, func(s domain.Stop) bool { return s.ID == stopID })
}

func (c *TourController) nextStopHint() *NextStopHint {
	if c.lastSample == nil || !c.lastSample.Location.Valid() {
		return nil
	}
	here := c.lastSample.Location
	var hint *NextStopHint
	for _, s := range c.stops {
		if s.ID == c.progress.ActiveStopID || c.progress.IsVisited(s.ID) {
			continue
		}
		d := domain.DistanceMeters(here, s.Location)
		if hint == nil || d < hint.DistanceMeters {
			hint = &NextStopHint{
				StopID:         s.ID,
				Title:          s.Title,
				DistanceMeters: d,
				BearingDegrees: domain.BearingDegrees(here, s.Location),
			}
		}
	}
	return hint
}

func (c *TourController) buildSnapshot() Snapshot {
	sess := c.session.Snapshot()
	snap := Snapshot{
		TourID:               c.cfg.TourID,
		SessionID:            c.sessionID,
		State:                sess.State,
		IsPlaying:            c.progress.IsPlaying,
		PositionMillis:       c.progress.ActiveAudioPositionMillis,
		Playback:             sess.Status,
		VisitedStopIDs:       slices.Clone(c.progress.VisitedStopIDs),
		Stops:                slices.Clone(c.stops),
		CompletedCount:       len(c.progress.VisitedStopIDs),
		TotalStops:           len(c.stops),
		PermissionGranted:    c.permission,
		AwaitingConfirmation: c.awaitingConfirm,
		Background:           c.background,
		PendingSave:          c.dirty,
		NextStop:             c.nextStopHint(),
		LastPlayedAt:         c.progress.LastPlayedAt,
		Closed:               c.closed,
	}
	if snap.VisitedStopIDs == nil {
		snap.VisitedStopIDs = []string{}
	}
	if stop, ok := c.activeStop(); ok {
		snap.ActiveStop = &stop
		if sess.StopID == stop.ID && (sess.State == domain.PlaybackReady || sess.State == domain.PlaybackPlaying) {
			snap.PositionMillis = sess.Status.PositionMillis
		}
	}
	if c.lastSample != nil {
		s := *c.lastSample
		snap.LastPosition = &s
	}
	if c.loading != nil {
		snap.LoadingSince = c.loading.started.UTC().Format(time.RFC3339)
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

func (c *TourController) publishSnapshot() {
	snap := c.buildSnapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snap
	c.progressView = c.progress.Clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *TourController) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subsClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Snapshot returns the latest read model.
func (c *TourController) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Progress returns a copy of the in-memory progress.
func (c *TourController) Progress() domain.TourProgress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progressView.Clone()
}

// Subscribe streams read model updates. Slow readers only see the latest
// snapshot. The channel is closed when the controller stops or cancel is called.
func (c *TourController) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subsClosed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshot

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

// Done is closed once the controller has shut down.
func (c *TourController) Done() <-chan struct{} { return c.done }

func (c *TourController) do(ctx context.Context, cmd command) error {
	if !c.started.Load() {
		return domain.ErrNotStarted
	}
	cmd.ctx = ctx
	cmd.reply = make(chan error, 1)

	select {
	case c.commands <- cmd:
	case <-c.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play resumes the active stop, or replays it when finished.
func (c *TourController) Play(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdPlay})
}

// Pause pauses narration and persists progress. A pause during a load
// cancels the pending autoplay.
func (c *TourController) Pause(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdPause})
}

// Seek moves the playhead of the active narration.
func (c *TourController) Seek(ctx context.Context, positionMillis int64) error {
	return c.do(ctx, command{kind: cmdSeek, position: positionMillis})
}

// NextStop triggers the stop after the active one in route order.
func (c *TourController) NextStop(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdNext})
}

// PrevStop triggers the stop before the active one in route order.
func (c *TourController) PrevStop(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdPrev})
}

// GoToStop triggers stopID as if the geofence had selected it.
func (c *TourController) GoToStop(ctx context.Context, stopID string) error {
	return c.do(ctx, command{kind: cmdGoTo, stopID: stopID})
}

// Background persists progress as the app leaves the foreground.
func (c *TourController) Background(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdBackground})
}

// Foreground marks the app as visible again.
func (c *TourController) Foreground(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdForeground})
}

// Refresh round-trips through the event loop and returns the snapshot it
// published, so the result reflects every event handled before the call.
func (c *TourController) Refresh(ctx context.Context) (Snapshot, error) {
	if err := c.do(ctx, command{kind: cmdRefresh}); err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Close unloads narration, stops the location stream and saves progress.
// It is safe to call more than once.
func (c *TourController) Close(ctx context.Context) error {
	err := c.do(ctx, command{kind: cmdClose})
	switch {
	case errors.Is(err, domain.ErrSessionClosed), errors.Is(err, domain.ErrNotStarted):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return err
}
