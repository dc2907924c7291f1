package domain

import (
	"slices"
	"time"
)

// TourProgress is the persisted per-tour listening state.
type TourProgress struct {
	TourID                    string   `json:"tour_id"`
	ActiveStopID              string   `json:"active_stop_id,omitempty"`
	ActiveAudioPositionMillis int64    `json:"active_audio_position_ms"`
	VisitedStopIDs            []string `json:"visited_stop_ids"`
	IsPlaying                 bool     `json:"is_playing"`
	LastPlayedAt              string   `json:"last_played_at,omitempty"`
}

// DefaultProgress is the state of a tour that has never been played.
func DefaultProgress(tourID string) TourProgress {
	return TourProgress{
		TourID:         tourID,
		VisitedStopIDs: []string{},
	}
}

// MarkVisited appends stopID once. It reports whether the list changed.
func (p *TourProgress) MarkVisited(stopID string) bool {
	if stopID == "" || p.IsVisited(stopID) {
		return false
	}
	p.VisitedStopIDs = append(p.VisitedStopIDs, stopID)
	return true
}

// IsVisited reports whether stopID has completed narration.
func (p *TourProgress) IsVisited(stopID string) bool {
	return slices.Contains(p.VisitedStopIDs, stopID)
}

// Clone returns a deep copy with a non-nil visited list.
func (p TourProgress) Clone() TourProgress {
	c := p
	c.VisitedStopIDs = make([]string, len(p.VisitedStopIDs))
	copy(c.VisitedStopIDs, p.VisitedStopIDs)
	return c
}

// Touch stamps LastPlayedAt in RFC 3339.
func (p *TourProgress) Touch(now time.Time) {
	p.LastPlayedAt = now.UTC().Format(time.RFC3339)
}

// Sanitize drops references to stops that are not part of the tour,
// collapses duplicate visits and clamps a negative position to zero.
func (p *TourProgress) Sanitize(stops []Stop) {
	known := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		known[s.ID] = struct{}{}
	}

	visited := make([]string, 0, len(p.VisitedStopIDs))
	for _, id := range p.VisitedStopIDs {
		if _, ok := known[id]; !ok || slices.Contains(visited, id) {
			continue
		}
		visited = append(visited, id)
	}
	p.VisitedStopIDs = visited

	if _, ok := known[p.ActiveStopID]; !ok {
		p.ActiveStopID = ""
		p.ActiveAudioPositionMillis = 0
		p.IsPlaying = false
	}
	if p.ActiveAudioPositionMillis < 0 {
		p.ActiveAudioPositionMillis = 0
	}
}
