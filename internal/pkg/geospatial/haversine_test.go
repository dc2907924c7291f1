package geospatial

import (
	"math"
	"testing"

	"github.com/golang/geo/s2"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// Bilbao Abando to Madrid Atocha, roughly 320 km.
	d := Haversine(43.2610, -2.9275, 40.4065, -3.6895)
	if d < 310000 || d > 335000 {
		t.Errorf("expected ~320 km, got %.0f m", d)
	}
}

func TestHaversine_MatchesS2(t *testing.T) {
	pairs := [][4]float64{
		{43.2630, -2.9350, 43.2639, -2.9350},
		{0, 0, 0, 1},
		{-33.8688, 151.2093, 51.5074, -0.1278},
	}
	for _, p := range pairs {
		want := s2.LatLngFromDegrees(p[0], p[1]).Distance(s2.LatLngFromDegrees(p[2], p[3])).Radians() * EarthRadiusMeters
		got := Haversine(p[0], p[1], p[2], p[3])
		if math.Abs(got-want) > 1e-6*want+1e-6 {
			t.Errorf("%v: haversine %.6f, s2 %.6f", p, got, want)
		}
	}
}

func TestHaversine_Properties(t *testing.T) {
	if d := Haversine(10, 20, 10, 20); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
	if a, b := Haversine(1, 2, 3, 4), Haversine(3, 4, 1, 2); a != b {
		t.Errorf("expected symmetry, got %v vs %v", a, b)
	}
	if d := Haversine(math.NaN(), 0, 0, 0); !math.IsNaN(d) {
		t.Errorf("expected NaN, got %v", d)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > 1e-9 && math.Abs(got-tt.want-360) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestInterpolate(t *testing.T) {
	lat, lon := Interpolate(0, 0, 0, 10, 0.5)
	if math.Abs(lat) > 1e-9 || math.Abs(lon-5) > 1e-9 {
		t.Errorf("expected midpoint (0, 5), got (%v, %v)", lat, lon)
	}

	lat, lon = Interpolate(43.26, -2.93, 43.27, -2.93, 0)
	if math.Abs(lat-43.26) > 1e-9 || math.Abs(lon+2.93) > 1e-9 {
		t.Errorf("expected start point, got (%v, %v)", lat, lon)
	}
}
