package simulate

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/ports"
)

const routeYAML = `
name: test walk
accuracy_meters: 4
points:
  - {lat: 43.2630, lon: -2.9350}
  - {lat: 43.2639, lon: -2.9350}
`

func writeRoute(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRoute(t *testing.T) {
	r, err := LoadRoute(writeRoute(t, routeYAML))
	require.NoError(t, err)
	assert.Equal(t, "test walk", r.Name)
	require.Len(t, r.Points, 2)
	assert.Equal(t, 43.2639, r.Points[1].Lat)

	_, err = LoadRoute(writeRoute(t, "name: empty\n"))
	assert.Error(t, err)

	_, err = LoadRoute(writeRoute(t, "points:\n  - {lat: 123, lon: 0}\n"))
	assert.Error(t, err)

	_, err = LoadRoute(writeRoute(t, "points:\n  - {lat: 43.26, lon: -181}\n"))
	assert.Error(t, err)

	r, err = LoadRoute(writeRoute(t, "points:\n  - {lat: -90, lon: 180}\n"))
	require.NoError(t, err, "range bounds are inclusive")
	assert.Equal(t, -90.0, r.Points[0].Lat)
}

func TestDensify(t *testing.T) {
	r, err := LoadRoute(writeRoute(t, routeYAML))
	require.NoError(t, err)

	total := domain.DistanceMeters(r.Points[0], r.Points[1])
	path := r.Densify(10)
	require.Len(t, path, 1+int(math.Ceil(total/10)))
	assert.Equal(t, r.Points[0], path[0])
	assert.InDelta(t, r.Points[1].Lat, path[len(path)-1].Lat, 1e-9)
	for i := 1; i < len(path); i++ {
		assert.LessOrEqual(t, domain.DistanceMeters(path[i-1], path[i]), 10.0+1e-6)
	}

	assert.Len(t, r.Densify(0), 2, "no step keeps the vertices")
}

func TestRouteProviderWatch(t *testing.T) {
	r, err := LoadRoute(writeRoute(t, routeYAML))
	require.NoError(t, err)
	p := NewRouteProvider(r, 50, time.Millisecond, nil)

	ok, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	samples, err := p.Watch(context.Background(), ports.WatchOptions{})
	require.NoError(t, err)

	var got []domain.PositionSample
	for s := range samples {
		got = append(got, s)
	}
	require.Len(t, got, len(r.Densify(50)))
	require.NotNil(t, got[0].AccuracyMeters)
	assert.Equal(t, 4.0, *got[0].AccuracyMeters)

	cur, err := p.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 43.2639, cur.Location.Lat, 1e-9)
}

func TestRouteProviderStopsOnCancel(t *testing.T) {
	r, err := LoadRoute(writeRoute(t, routeYAML+"loop: true\npermission_denied: true\n"))
	require.NoError(t, err)
	p := NewRouteProvider(r, 5, time.Millisecond, nil)

	ok, err := p.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	samples, err := p.Watch(ctx, ports.WatchOptions{})
	require.NoError(t, err)
	<-samples
	cancel()

	done := make(chan struct{})
	go func() {
		for range samples {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
