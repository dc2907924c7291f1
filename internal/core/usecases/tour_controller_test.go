package usecases_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/usecases"
	"github.com/samirrijal/audiotour/internal/pkg/logging"
)

const testTour = "bilbao-old-town"

var fixedNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type harness struct {
	tours  *mockTourStore
	loc    *fakeLocation
	store  *memStore
	engine *fakeEngine
	pub    *recordingPublisher
	ctrl   *usecases.TourController
}

func newHarness(t *testing.T, granted bool) *harness {
	t.Helper()
	return &harness{
		tours:  &mockTourStore{},
		loc:    newFakeLocation(granted),
		store:  newMemStore(),
		engine: newFakeEngine(),
		pub:    &recordingPublisher{},
	}
}

func (h *harness) start(t *testing.T) *usecases.TourController {
	t.Helper()
	h.ctrl = usecases.NewTourController(
		usecases.ControllerConfig{TourID: testTour, LoadTimeout: time.Second},
		h.tours, h.loc, h.store, h.engine,
		usecases.WithPublisher(h.pub),
		usecases.WithLogger(logging.Discard()),
		usecases.WithClock(func() time.Time { return fixedNow }),
		usecases.WithSessionID("session-1"),
	)
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.ctrl.Close(ctx)
	})
	return h.ctrl
}

func (h *harness) walkTo(loc domain.Coordinate) {
	h.loc.samples <- domain.PositionSample{Location: loc, Timestamp: fixedNow}
}

func (h *harness) waitState(t *testing.T, stopID string, state domain.PlaybackState) {
	t.Helper()
	waitFor(t, stopID+" "+string(state), func() bool {
		s := h.ctrl.Snapshot()
		return s.ActiveStop != nil && s.ActiveStop.ID == stopID && s.State == state
	})
}

// drain waits until the loop has taken every queued status for handle and
// handled it.
func (h *harness) drain(t *testing.T, handle string) usecases.Snapshot {
	t.Helper()
	waitFor(t, "status queue to drain", func() bool { return h.engine.pending(handle) == 0 })
	snap, err := h.ctrl.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return snap
}

func finishedStatus() domain.PlaybackStatus {
	return domain.PlaybackStatus{Loaded: true, PositionMillis: 120000, DurationMillis: 120000, JustFinished: true}
}

func TestTourController_WalkThroughTwoStops(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)
	stops := tourStops()

	h.walkTo(stops[0].Location)
	h.waitState(t, "a", domain.PlaybackPlaying)

	h.engine.emit("h1", finishedStatus())
	waitFor(t, "a to be visited", func() bool {
		s := ctrl.Snapshot()
		return len(s.VisitedStopIDs) == 1 && !s.IsPlaying
	})

	// A duplicate finish must not record a second visit.
	h.engine.emit("h1", finishedStatus())
	snap := h.drain(t, "h1")
	if !reflect.DeepEqual(snap.VisitedStopIDs, []string{"a"}) {
		t.Fatalf("expected visited [a], got %v", snap.VisitedStopIDs)
	}
	if snap.State != domain.PlaybackFinished {
		t.Errorf("expected finished, got %s", snap.State)
	}

	stored, ok := h.store.get(testTour)
	if !ok || !reflect.DeepEqual(stored.VisitedStopIDs, []string{"a"}) || stored.IsPlaying {
		t.Errorf("expected persisted visit of a, got %+v", stored)
	}

	h.walkTo(stops[1].Location)
	h.waitState(t, "b", domain.PlaybackPlaying)

	want := []string{
		"load:" + assetURI(testTour, "a.mp3"),
		"play:h1",
		"unload:h1",
		"load:" + assetURI(testTour, "b.mp3"),
		"play:h2",
	}
	if got := h.engine.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}

	snap = ctrl.Snapshot()
	if snap.CompletedCount != 1 || snap.TotalStops != 3 {
		t.Errorf("expected 1/3 completed, got %d/%d", snap.CompletedCount, snap.TotalStops)
	}
	if snap.LastPlayedAt != fixedNow.Format(time.RFC3339) {
		t.Errorf("expected last played %s, got %s", fixedNow.Format(time.RFC3339), snap.LastPlayedAt)
	}
	if snap.NextStop == nil || snap.NextStop.StopID != "c" {
		t.Errorf("expected hint towards c, got %+v", snap.NextStop)
	}
}

func TestTourController_RestoresPausedUntilArrival(t *testing.T) {
	h := newHarness(t, true)
	h.store.data[testTour] = domain.TourProgress{
		TourID:                    testTour,
		ActiveStopID:              "a",
		ActiveAudioPositionMillis: 45000,
		VisitedStopIDs:            []string{},
		IsPlaying:                 true,
	}
	ctrl := h.start(t)

	h.waitState(t, "a", domain.PlaybackReady)
	waitFor(t, "restore seek", func() bool { return h.engine.called("seek:h1:45000") })

	snap, err := ctrl.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.IsPlaying || !snap.AwaitingConfirmation {
		t.Errorf("expected paused and awaiting confirmation, got %+v", snap)
	}
	if snap.PositionMillis != 45000 {
		t.Errorf("expected position 45000, got %d", snap.PositionMillis)
	}
	if h.engine.countPrefix("play:") != 0 {
		t.Fatalf("expected no play before arrival, calls: %v", h.engine.Calls())
	}

	h.walkTo(tourStops()[0].Location)
	h.waitState(t, "a", domain.PlaybackPlaying)

	want := []string{"load:" + assetURI(testTour, "a.mp3"), "seek:h1:45000", "play:h1"}
	if got := h.engine.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestTourController_UserPlayConfirmsRestore(t *testing.T) {
	h := newHarness(t, true)
	h.store.data[testTour] = domain.TourProgress{TourID: testTour, ActiveStopID: "b", ActiveAudioPositionMillis: 1000, VisitedStopIDs: []string{"a"}}
	ctrl := h.start(t)

	h.waitState(t, "b", domain.PlaybackReady)
	if err := ctrl.Play(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.waitState(t, "b", domain.PlaybackPlaying)
	if ctrl.Snapshot().AwaitingConfirmation {
		t.Error("expected confirmation to be cleared by play")
	}
}

func TestTourController_WalkingAwayDoesNotMarkVisited(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)
	stops := tourStops()

	h.walkTo(stops[0].Location)
	h.waitState(t, "a", domain.PlaybackPlaying)
	h.walkTo(stops[1].Location)
	h.waitState(t, "b", domain.PlaybackPlaying)

	if v := ctrl.Snapshot().VisitedStopIDs; len(v) != 0 {
		t.Errorf("expected no visits, got %v", v)
	}

	// Returning to a plays it again from the start.
	h.walkTo(stops[0].Location)
	h.waitState(t, "a", domain.PlaybackPlaying)
	if got := h.engine.countPrefix("load:" + assetURI(testTour, "a.mp3")); got != 2 {
		t.Errorf("expected a to be loaded twice, got %d", got)
	}
}

func TestTourController_SampleOutsideEveryStopKeepsActive(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	h.walkTo(origin)
	h.waitState(t, "a", domain.PlaybackPlaying)
	h.walkTo(northOf(origin, 50))

	waitFor(t, "sample to be consumed", func() bool { return len(h.loc.samples) == 0 })
	snap, _ := ctrl.Refresh(context.Background())
	if snap.ActiveStop == nil || snap.ActiveStop.ID != "a" || snap.State != domain.PlaybackPlaying {
		t.Errorf("expected a to keep playing, got %+v", snap)
	}
}

func TestTourController_PausePersists(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	h.walkTo(origin)
	h.waitState(t, "a", domain.PlaybackPlaying)
	h.engine.emit("h1", domain.PlaybackStatus{Loaded: true, Playing: true, PositionMillis: 12000, DurationMillis: 60000})
	h.drain(t, "h1")

	if err := ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := h.store.get(testTour)
	if stored.IsPlaying || stored.ActiveStopID != "a" || stored.ActiveAudioPositionMillis != 12000 {
		t.Errorf("expected paused progress at 12000 on a, got %+v", stored)
	}
	if got := ctrl.Snapshot().State; got != domain.PlaybackReady {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestTourController_BackgroundPersists(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	before := h.store.saveCount()
	if err := ctrl.Background(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.store.saveCount() != before+1 {
		t.Errorf("expected one save on background, got %d", h.store.saveCount()-before)
	}
	if !ctrl.Snapshot().Background {
		t.Error("expected background flag")
	}
	if err := ctrl.Foreground(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Snapshot().Background {
		t.Error("expected foreground")
	}
}

func TestTourController_SaveFailureIsRetried(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	h.store.setSaveErr(errors.New("disk full"))
	if err := ctrl.GoToStop(context.Background(), "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.waitState(t, "b", domain.PlaybackPlaying)

	snap := ctrl.Snapshot()
	if !snap.PendingSave || !strings.Contains(snap.LastError, "disk full") {
		t.Fatalf("expected pending save with error, got %+v", snap)
	}
	if _, ok := h.store.get(testTour); ok {
		t.Fatal("expected nothing stored yet")
	}

	h.store.setSaveErr(nil)
	if err := ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, ok := h.store.get(testTour)
	if !ok || stored.ActiveStopID != "b" {
		t.Errorf("expected retried save with active b, got %+v", stored)
	}
	if ctrl.Snapshot().PendingSave {
		t.Error("expected pending save to clear")
	}
}

func TestTourController_LoadErrorDoesNotStopSession(t *testing.T) {
	h := newHarness(t, true)
	h.engine.loadFn = func(ctx context.Context, uri string) error {
		if strings.HasSuffix(uri, "a.mp3") {
			return errors.New("asset missing")
		}
		return nil
	}
	ctrl := h.start(t)
	stops := tourStops()

	h.walkTo(stops[0].Location)
	waitFor(t, "load error", func() bool {
		return strings.Contains(ctrl.Snapshot().LastError, "asset missing")
	})
	snap := ctrl.Snapshot()
	if snap.State != domain.PlaybackIdle || snap.IsPlaying {
		t.Errorf("expected idle after failed load, got %+v", snap)
	}

	h.walkTo(stops[1].Location)
	h.waitState(t, "b", domain.PlaybackPlaying)
}

func TestTourController_PermissionDeniedAllowsManualMode(t *testing.T) {
	h := newHarness(t, false)
	ctrl := h.start(t)

	snap := ctrl.Snapshot()
	if snap.PermissionGranted {
		t.Fatal("expected permission to be denied")
	}
	if !strings.Contains(snap.LastError, domain.ErrPermissionDenied.Error()) {
		t.Errorf("expected permission error, got %q", snap.LastError)
	}
	if h.loc.ctx() != nil {
		t.Error("expected no location watch without permission")
	}

	if err := ctrl.NextStop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.waitState(t, "a", domain.PlaybackPlaying)
}

func TestTourController_Navigation(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)
	ctx := context.Background()

	if err := ctrl.PrevStop(ctx); !errors.Is(err, domain.ErrNoActiveStop) {
		t.Fatalf("expected ErrNoActiveStop, got %v", err)
	}
	if err := ctrl.GoToStop(ctx, "nope"); !errors.Is(err, domain.ErrUnknownStop) {
		t.Fatalf("expected ErrUnknownStop, got %v", err)
	}
	if err := ctrl.Play(ctx); !errors.Is(err, domain.ErrNoActiveStop) {
		t.Fatalf("expected ErrNoActiveStop, got %v", err)
	}

	if err := ctrl.GoToStop(ctx, "c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.waitState(t, "c", domain.PlaybackPlaying)
	if err := ctrl.NextStop(ctx); !errors.Is(err, domain.ErrNoAdjacentStop) {
		t.Fatalf("expected ErrNoAdjacentStop, got %v", err)
	}
	if err := ctrl.PrevStop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.waitState(t, "b", domain.PlaybackPlaying)
}

func TestTourController_PauseDuringLoadCancelsAutoplay(t *testing.T) {
	h := newHarness(t, true)
	gate := make(chan struct{})
	h.engine.loadFn = func(ctx context.Context, uri string) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ctrl := h.start(t)
	ctx := context.Background()

	if err := ctrl.GoToStop(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "load to start", func() bool { return h.engine.countPrefix("load:") == 1 })

	// Samples arriving mid-load are held back.
	h.walkTo(tourStops()[1].Location)

	pauseCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := ctrl.Pause(pauseCtx); err != nil {
		t.Fatalf("pause blocked behind the load: %v", err)
	}
	if got := ctrl.Snapshot().State; got != domain.PlaybackLoading {
		t.Fatalf("expected loading, got %s", got)
	}

	close(gate)
	// The held-back sample is handled after the load and triggers b.
	h.waitState(t, "b", domain.PlaybackPlaying)
	if h.engine.called("play:h1") {
		t.Errorf("expected no autoplay of a after pause, calls: %v", h.engine.Calls())
	}
}

func TestTourController_LoadStartUsesControllerClock(t *testing.T) {
	h := newHarness(t, true)
	gate := make(chan struct{})
	h.engine.loadFn = func(ctx context.Context, uri string) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ctrl := h.start(t)

	if err := ctrl.GoToStop(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := fixedNow.Format(time.RFC3339)
	waitFor(t, "loading snapshot", func() bool { return ctrl.Snapshot().LoadingSince != "" })
	if got := ctrl.Snapshot().LoadingSince; got != want {
		t.Errorf("expected load start %s, got %s", want, got)
	}

	close(gate)
	h.waitState(t, "a", domain.PlaybackPlaying)
	if got := ctrl.Snapshot().LoadingSince; got != "" {
		t.Errorf("expected no load in flight, got %s", got)
	}
}

func TestTourController_CloseDuringLoad(t *testing.T) {
	h := newHarness(t, true)
	h.engine.loadFn = func(ctx context.Context, uri string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctrl := h.start(t)

	h.walkTo(origin)
	waitFor(t, "load to start", func() bool { return h.engine.countPrefix("load:") == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ctrl.Close(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-ctrl.Done():
	default:
		t.Fatal("expected controller to be done after close")
	}
	if err := h.loc.ctx().Err(); err == nil {
		t.Error("expected location watch to be cancelled")
	}
	stored, ok := h.store.get(testTour)
	if !ok || stored.ActiveStopID != "a" {
		t.Errorf("expected final save with active a, got %+v", stored)
	}
	if !ctrl.Snapshot().Closed {
		t.Error("expected closed snapshot")
	}
	if err := ctrl.Play(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	// Close is idempotent.
	if err := ctrl.Close(ctx); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}

func TestTourController_CloseUnloadsAndPublishes(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	h.walkTo(origin)
	h.waitState(t, "a", domain.PlaybackPlaying)

	if err := ctrl.Close(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.engine.called("unload:h1") {
		t.Errorf("expected unload on close, calls: %v", h.engine.Calls())
	}

	types := h.pub.types()
	if types[0] != domain.EventStopTriggered {
		t.Errorf("expected first event stop_triggered, got %v", types)
	}
	if types[len(types)-1] != domain.EventSessionClosed {
		t.Errorf("expected last event session_closed, got %v", types)
	}
}

func TestTourController_SanitizesStoredProgress(t *testing.T) {
	h := newHarness(t, true)
	h.store.data[testTour] = domain.TourProgress{
		TourID:         testTour,
		ActiveStopID:   "removed",
		VisitedStopIDs: []string{"a", "ghost", "a"},
	}
	ctrl := h.start(t)

	snap, err := ctrl.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ActiveStop != nil {
		t.Errorf("expected no active stop, got %+v", snap.ActiveStop)
	}
	if !reflect.DeepEqual(snap.VisitedStopIDs, []string{"a"}) {
		t.Errorf("expected visited [a], got %v", snap.VisitedStopIDs)
	}
	if h.engine.countPrefix("load:") != 0 {
		t.Errorf("expected nothing restored, calls: %v", h.engine.Calls())
	}
}

func TestTourController_StartFailsWithoutStops(t *testing.T) {
	h := newHarness(t, true)
	h.tours.getStopsFn = func(ctx context.Context, tourID string) ([]domain.Stop, error) {
		return nil, domain.ErrTourNotFound
	}
	ctrl := usecases.NewTourController(usecases.ControllerConfig{TourID: testTour}, h.tours, h.loc, h.store, h.engine)

	if err := ctrl.Start(context.Background()); !errors.Is(err, domain.ErrTourNotFound) {
		t.Fatalf("expected ErrTourNotFound, got %v", err)
	}
	if err := ctrl.Play(context.Background()); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestTourController_SubscribeReceivesUpdates(t *testing.T) {
	h := newHarness(t, true)
	ctrl := h.start(t)

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	first := <-updates
	if first.TourID != testTour {
		t.Fatalf("expected tour %s, got %s", testTour, first.TourID)
	}

	if err := ctrl.GoToStop(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State == domain.PlaybackPlaying {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for playing snapshot")
		}
	}
}
