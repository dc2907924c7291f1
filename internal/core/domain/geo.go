package domain

import (
	"math"

	"github.com/samirrijal/audiotour/internal/pkg/geospatial"
)

// Coordinate represents a geographic coordinate (WGS 84, decimal degrees).
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"latitude"`
	Lon float64 `json:"lon" yaml:"lon" validate:"longitude"`
}

// Valid reports whether both components are finite.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) && !math.IsInf(c.Lat, 0) && !math.IsInf(c.Lon, 0)
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b Coordinate) float64 {
	return geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// BearingDegrees returns the initial bearing from a to b.
func BearingDegrees(a, b Coordinate) float64 {
	return geospatial.Bearing(a.Lat, a.Lon, b.Lat, b.Lon)
}
