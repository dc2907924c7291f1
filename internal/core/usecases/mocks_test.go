package usecases_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

// metersPerDegree is the length of one degree of latitude on the haversine sphere.
const metersPerDegree = 6371000 * math.Pi / 180

var origin = domain.Coordinate{Lat: 43.2630, Lon: -2.9350}

func northOf(c domain.Coordinate, meters float64) domain.Coordinate {
	return domain.Coordinate{Lat: c.Lat + meters/metersPerDegree, Lon: c.Lon}
}

// tourStops returns three stops 100 m apart along a meridian.
func tourStops() []domain.Stop {
	return []domain.Stop{
		{ID: "a", Title: "Arriaga", Location: origin, TriggerRadiusMeters: 20, NarrationKey: "a.mp3"},
		{ID: "b", Title: "Bidebarrieta", Location: northOf(origin, 100), TriggerRadiusMeters: 20, NarrationKey: "b.mp3"},
		{ID: "c", Title: "Catedral", Location: northOf(origin, 200), TriggerRadiusMeters: 20, NarrationKey: "c.mp3"},
	}
}

// --- Mock TourStore ---

type mockTourStore struct {
	getStopsFn func(ctx context.Context, tourID string) ([]domain.Stop, error)
	assetURIFn func(ctx context.Context, tourID, key string) (string, error)
}

func (m *mockTourStore) GetStops(ctx context.Context, tourID string) ([]domain.Stop, error) {
	if m.getStopsFn != nil {
		return m.getStopsFn(ctx, tourID)
	}
	return tourStops(), nil
}

func (m *mockTourStore) AssetURI(ctx context.Context, tourID, key string) (string, error) {
	if m.assetURIFn != nil {
		return m.assetURIFn(ctx, tourID, key)
	}
	return assetURI(tourID, key), nil
}

func assetURI(tourID, key string) string {
	return "file:///tours/" + tourID + "/" + key
}

// --- Fake LocationProvider ---

type fakeLocation struct {
	granted  bool
	permErr  error
	watchErr error
	samples  chan domain.PositionSample

	mu       sync.Mutex
	watchCtx context.Context
	opts     ports.WatchOptions
}

func newFakeLocation(granted bool) *fakeLocation {
	return &fakeLocation{granted: granted, samples: make(chan domain.PositionSample, 16)}
}

func (f *fakeLocation) RequestPermission(ctx context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakeLocation) CurrentPosition(ctx context.Context) (*domain.PositionSample, error) {
	return nil, nil
}

func (f *fakeLocation) Watch(ctx context.Context, opts ports.WatchOptions) (<-chan domain.PositionSample, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.mu.Lock()
	f.watchCtx = ctx
	f.opts = opts
	f.mu.Unlock()
	return f.samples, nil
}

func (f *fakeLocation) ctx() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchCtx
}

// --- Fake AudioEngine ---

type fakeEngine struct {
	loadFn   func(ctx context.Context, uri string) error
	unloadFn func(h ports.AudioHandle) error

	mu    sync.Mutex
	calls []string
	next  int
	chans map[ports.AudioHandle]chan domain.PlaybackStatus
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{chans: make(map[ports.AudioHandle]chan domain.PlaybackStatus)}
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *fakeEngine) Load(ctx context.Context, uri string) (ports.AudioHandle, <-chan domain.PlaybackStatus, error) {
	e.record("load:" + uri)
	if e.loadFn != nil {
		if err := e.loadFn(ctx, uri); err != nil {
			return "", nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	h := ports.AudioHandle(fmt.Sprintf("h%d", e.next))
	ch := make(chan domain.PlaybackStatus, 16)
	e.chans[h] = ch
	return h, ch, nil
}

func (e *fakeEngine) Play(ctx context.Context, h ports.AudioHandle) error {
	e.record("play:" + string(h))
	return nil
}

func (e *fakeEngine) Pause(ctx context.Context, h ports.AudioHandle) error {
	e.record("pause:" + string(h))
	return nil
}

func (e *fakeEngine) Seek(ctx context.Context, h ports.AudioHandle, ms int64) error {
	e.record(fmt.Sprintf("seek:%s:%d", h, ms))
	return nil
}

func (e *fakeEngine) Unload(ctx context.Context, h ports.AudioHandle) error {
	e.record("unload:" + string(h))
	if e.unloadFn != nil {
		if err := e.unloadFn(h); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.chans[h]; ok {
		close(ch)
		delete(e.chans, h)
	}
	return nil
}

func (e *fakeEngine) emit(h string, st domain.PlaybackStatus) {
	e.mu.Lock()
	ch := e.chans[ports.AudioHandle(h)]
	e.mu.Unlock()
	ch <- st
}

func (e *fakeEngine) pending(h string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.chans[ports.AudioHandle(h)])
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *fakeEngine) called(call string) bool {
	for _, c := range e.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (e *fakeEngine) countPrefix(prefix string) int {
	n := 0
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// --- In-memory ProgressStore ---

type memStore struct {
	mu      sync.Mutex
	data    map[string]domain.TourProgress
	saves   int
	deletes int
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]domain.TourProgress)}
}

func (m *memStore) Load(ctx context.Context, tourID string) (*domain.TourProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if p, ok := m.data[tourID]; ok {
		c := p.Clone()
		return &c, nil
	}
	d := domain.DefaultProgress(tourID)
	return &d, nil
}

func (m *memStore) Save(ctx context.Context, p *domain.TourProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[p.TourID] = p.Clone()
	return nil
}

func (m *memStore) Delete(ctx context.Context, tourID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, tourID)
	return nil
}

func (m *memStore) get(tourID string) (domain.TourProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[tourID]
	return p.Clone(), ok
}

func (m *memStore) setSaveErr(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// --- Recording EventPublisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TourEvent
}

func (p *recordingPublisher) PublishTourEvent(ctx context.Context, ev *domain.TourEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) types() []domain.TourEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.TourEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("miss: %s", key)
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
