package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied means foreground or background location access was refused.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrInvalidTransition is returned for a playback command that the current state does not accept.
	ErrInvalidTransition = errors.New("invalid playback transition")
	// ErrLoadSuperseded means a newer load or an unload replaced an in-flight load.
	ErrLoadSuperseded = errors.New("load superseded")
	ErrNoActiveStop   = errors.New("no active stop")
	ErrNoAdjacentStop = errors.New("no adjacent stop")
	ErrUnknownStop    = errors.New("unknown stop")
	ErrTourNotFound   = errors.New("tour not found")
	ErrNotStarted     = errors.New("session not started")
	ErrSessionClosed  = errors.New("session closed")
)

// PlaybackLoadError wraps an audio engine failure while loading a stop's narration.
type PlaybackLoadError struct {
	StopID string
	Err    error
}

func (e *PlaybackLoadError) Error() string {
	return fmt.Sprintf("load narration for stop %s: %v", e.StopID, e.Err)
}

func (e *PlaybackLoadError) Unwrap() error { return e.Err }

// PersistenceError wraps a progress store failure.
type PersistenceError struct {
	Op     string
	TourID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s progress for tour %s: %v", e.Op, e.TourID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SelectorInputError reports a stop that cannot take part in geofence selection.
type SelectorInputError struct {
	StopID string
	Radius float64
	Err    error
}

func (e *SelectorInputError) Error() string {
	return fmt.Sprintf("stop %s has unusable trigger radius %v", e.StopID, e.Radius)
}

func (e *SelectorInputError) Unwrap() error { return e.Err }
