package geospatial

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
// NaN inputs yield NaN.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees (0-360),
// where 0 is north and 90 is east.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)

	dLon := p2.Lng.Radians() - p1.Lng.Radians()
	y := math.Sin(dLon) * math.Cos(p2.Lat.Radians())
	x := math.Cos(p1.Lat.Radians())*math.Sin(p2.Lat.Radians()) -
		math.Sin(p1.Lat.Radians())*math.Cos(p2.Lat.Radians())*math.Cos(dLon)

	deg := (s1.Angle(math.Atan2(y, x)) * s1.Radian).Degrees()
	return math.Mod(deg+360, 360)
}

// Interpolate returns the point that lies fraction t (0..1) of the way along the
// great circle from point 1 to point 2.
func Interpolate(lat1, lon1, lat2, lon2, t float64) (lat, lon float64) {
	a := s2.PointFromLatLng(s2.LatLngFromDegrees(lat1, lon1))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(lat2, lon2))
	ll := s2.LatLngFromPoint(s2.Interpolate(t, a, b))
	return ll.Lat.Degrees(), ll.Lng.Degrees()
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
