package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

func sampleManifest(offline bool) *Manifest {
	return &Manifest{
		Tour: domain.Tour{
			ID:    "old-town",
			Title: "Old Town",
			Route: []domain.Waypoint{
				{Kind: domain.WaypointStop, ID: "cathedral", Location: domain.Coordinate{Lat: 43.2590, Lon: -2.9240},
					Stop: &domain.Stop{Title: "Cathedral", TriggerRadiusMeters: 25, NarrationKey: "cathedral-audio"}},
				{Kind: domain.WaypointControl, ID: "bend", Location: domain.Coordinate{Lat: 43.2595, Lon: -2.9235}},
				{Kind: domain.WaypointStop, ID: "market", Location: domain.Coordinate{Lat: 43.2600, Lon: -2.9230},
					Stop: &domain.Stop{Title: "Market", TriggerRadiusMeters: 30, NarrationKey: "market-audio"}},
			},
		},
		Assets: map[string]Asset{
			"cathedral-audio": {Hash: "3f2a", Type: "audio"},
			"market-audio":    {Hash: "9bc1", Type: "audio"},
		},
		BaseURL: "https://tours.example.com/bilbao/",
		Offline: offline,
	}
}

func TestGetStops(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.WriteManifest(sampleManifest(false)))

	stops, err := s.GetStops(context.Background(), "old-town")
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "cathedral", stops[0].ID)
	assert.Equal(t, 43.2590, stops[0].Location.Lat)
	assert.Equal(t, "market", stops[1].ID)
}

func TestGetStopsMissingTour(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.GetStops(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTourNotFound)

	_, err = s.GetStops(context.Background(), "../etc")
	assert.ErrorIs(t, err, domain.ErrTourNotFound)
}

func TestAssetURI(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.WriteManifest(sampleManifest(false)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old-town", "3f2a"), []byte("mp3"), 0o644))
	ctx := context.Background()

	uri, err := s.AssetURI(ctx, "old-town", "cathedral-audio")
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "old-town", "3f2a")), uri)

	uri, err = s.AssetURI(ctx, "old-town", "market-audio")
	require.NoError(t, err)
	assert.Equal(t, "https://tours.example.com/bilbao/9bc1", uri, "missing file streams from the base url")

	_, err = s.AssetURI(ctx, "old-town", "unknown")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestAssetURIOfflineAlwaysLocal(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.WriteManifest(sampleManifest(true)))

	uri, err := s.AssetURI(context.Background(), "old-town", "market-audio")
	require.NoError(t, err)
	assert.Contains(t, uri, "file://")
	assert.Contains(t, uri, "9bc1")
}

func TestListAndRemove(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.WriteManifest(sampleManifest(false)))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-tour"), 0o755))

	ids, err := s.ListTours()
	require.NoError(t, err)
	assert.Equal(t, []string{"old-town"}, ids)

	require.NoError(t, s.RemoveTour(context.Background(), "old-town"))
	require.NoError(t, s.RemoveTour(context.Background(), "old-town"))
	_, err = os.Stat(filepath.Join(dir, "old-town"))
	assert.True(t, os.IsNotExist(err))
}
