package domain

import (
	"time"
)

// Stop is a point of interest on a tour with its own narration.
type Stop struct {
	ID                  string     `json:"id" yaml:"id"`
	Title               string     `json:"title" yaml:"title"`
	Description         string     `json:"description,omitempty" yaml:"description"`
	Location            Coordinate `json:"location" yaml:"location"`
	TriggerRadiusMeters float64    `json:"trigger_radius_meters" yaml:"trigger_radius_meters"`
	NarrationKey        string     `json:"narration_key,omitempty" yaml:"narration_key"`
}

// WaypointKind distinguishes narrated stops from route-shaping points.
type WaypointKind string

const (
	WaypointStop    WaypointKind = "stop"
	WaypointControl WaypointKind = "control"
)

// Waypoint is one entry of a tour route. Control points only shape the path.
type Waypoint struct {
	Kind     WaypointKind `json:"kind" yaml:"kind"`
	ID       string       `json:"id" yaml:"id"`
	Location Coordinate   `json:"location" yaml:"location"`
	Stop     *Stop        `json:"stop,omitempty" yaml:"stop"`
}

// Tour is a downloaded or remote audio tour.
type Tour struct {
	ID      string     `json:"id" yaml:"id"`
	Title   string     `json:"title" yaml:"title"`
	BaseURL string     `json:"base_url,omitempty" yaml:"base_url"`
	Offline bool       `json:"offline" yaml:"offline"`
	Route   []Waypoint `json:"route" yaml:"route"`
}

// Stops returns the tour's stops in route order, skipping control points.
func (t *Tour) Stops() []Stop {
	stops := make([]Stop, 0, len(t.Route))
	for _, wp := range t.Route {
		if wp.Kind != WaypointStop || wp.Stop == nil {
			continue
		}
		s := *wp.Stop
		if s.ID == "" {
			s.ID = wp.ID
		}
		if s.Location == (Coordinate{}) {
			s.Location = wp.Location
		}
		stops = append(stops, s)
	}
	return stops
}

// Path returns every waypoint location in route order.
func (t *Tour) Path() []Coordinate {
	path := make([]Coordinate, 0, len(t.Route))
	for _, wp := range t.Route {
		loc := wp.Location
		if wp.Stop != nil && loc == (Coordinate{}) {
			loc = wp.Stop.Location
		}
		path = append(path, loc)
	}
	return path
}

// PositionSample is one location fix from the device.
type PositionSample struct {
	Location       Coordinate `json:"location"`
	AccuracyMeters *float64   `json:"accuracy_meters,omitempty"`
	HeadingDegrees *float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
