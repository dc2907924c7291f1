package usecases_test

import (
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/usecases"
)

func TestSelectStop_AtStopLocation(t *testing.T) {
	stops := tourStops()

	got := usecases.SelectStop(stops[1].Location, stops, nil)
	if got == nil {
		t.Fatal("expected a stop, got nil")
	}
	if got.ID != "b" {
		t.Errorf("expected b, got %s", got.ID)
	}
}

func TestSelectStop_BoundaryIsExclusive(t *testing.T) {
	pos := origin
	loc := northOf(origin, 50)
	d := domain.DistanceMeters(pos, loc)

	onEdge := []domain.Stop{{ID: "edge", Location: loc, TriggerRadiusMeters: d}}
	if got := usecases.SelectStop(pos, onEdge, nil); got != nil {
		t.Errorf("expected nil at exactly the radius, got %s", got.ID)
	}

	inside := []domain.Stop{{ID: "edge", Location: loc, TriggerRadiusMeters: math.Nextafter(d, math.Inf(1))}}
	if got := usecases.SelectStop(pos, inside, nil); got == nil {
		t.Error("expected stop just inside the radius to be selected")
	}
}

func TestSelectStop_SkipsVisited(t *testing.T) {
	stops := tourStops()

	if got := usecases.SelectStop(origin, stops, []string{"a"}); got != nil {
		t.Errorf("expected nil for visited stop, got %s", got.ID)
	}
}

func TestSelectStop_NearestOfOverlapping(t *testing.T) {
	stops := []domain.Stop{
		{ID: "far", Location: northOf(origin, 30), TriggerRadiusMeters: 50},
		{ID: "near", Location: northOf(origin, 10), TriggerRadiusMeters: 50},
	}

	got := usecases.SelectStop(origin, stops, nil)
	if got == nil || got.ID != "near" {
		t.Fatalf("expected near, got %+v", got)
	}
}

func TestSelectStop_TieGoesToRouteOrder(t *testing.T) {
	loc := northOf(origin, 5)
	stops := []domain.Stop{
		{ID: "first", Location: loc, TriggerRadiusMeters: 20},
		{ID: "second", Location: loc, TriggerRadiusMeters: 20},
	}

	got := usecases.SelectStop(origin, stops, nil)
	if got == nil || got.ID != "first" {
		t.Fatalf("expected first, got %+v", got)
	}
}

func TestSelectStop_IgnoresUnusableRadius(t *testing.T) {
	for _, r := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		stops := []domain.Stop{{ID: "x", Location: origin, TriggerRadiusMeters: r}}
		if got := usecases.SelectStop(origin, stops, nil); got != nil {
			t.Errorf("radius %v: expected nil, got %s", r, got.ID)
		}
	}
}

func TestSelectStop_NoCandidates(t *testing.T) {
	if got := usecases.SelectStop(origin, nil, nil); got != nil {
		t.Errorf("expected nil for empty tour, got %s", got.ID)
	}
	nan := domain.Coordinate{Lat: math.NaN(), Lon: 0}
	if got := usecases.SelectStop(nan, tourStops(), nil); got != nil {
		t.Errorf("expected nil for NaN position, got %s", got.ID)
	}
	if got := usecases.SelectStop(northOf(origin, 50), tourStops(), nil); got != nil {
		t.Errorf("expected nil between stops, got %s", got.ID)
	}
}

func TestValidateStops(t *testing.T) {
	stops := []domain.Stop{
		{ID: "ok", TriggerRadiusMeters: 25},
		{ID: "zero", TriggerRadiusMeters: 0},
		{ID: "negative", TriggerRadiusMeters: -1},
		{ID: "nan", TriggerRadiusMeters: math.NaN()},
		{ID: "inf", TriggerRadiusMeters: math.Inf(1)},
	}

	errs := usecases.ValidateStops(stops)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}
	want := []string{"zero", "negative", "nan", "inf"}
	for i, err := range errs {
		var sel *domain.SelectorInputError
		if !errors.As(err, &sel) {
			t.Fatalf("expected SelectorInputError, got %T", err)
		}
		if sel.StopID != want[i] {
			t.Errorf("error %d: expected stop %s, got %s", i, want[i], sel.StopID)
		}
	}

	if errs := usecases.ValidateStops(tourStops()); len(errs) != 0 {
		t.Errorf("expected no errors for valid stops, got %v", errs)
	}
}
