package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// ProgressRepo implements ports.ProgressStore with pgx. Concurrent writers
// for the same tour resolve by last_played_at: the most recently played copy wins.
type ProgressRepo struct {
	db *DB
}

// NewProgressRepo creates a new ProgressRepo.
func NewProgressRepo(db *DB) *ProgressRepo {
	return &ProgressRepo{db: db}
}

// Load returns the stored progress or the default progress.
func (r *ProgressRepo) Load(ctx context.Context, tourID string) (*domain.TourProgress, error) {
	p := domain.DefaultProgress(tourID)
	var lastPlayed *time.Time
	err := r.db.Pool.QueryRow(ctx, `
		SELECT active_stop_id, active_position_ms, visited_stop_ids, is_playing, last_played_at
		FROM tour_progress WHERE tour_id = $1
	`, tourID).Scan(
		&p.ActiveStopID, &p.ActiveAudioPositionMillis, &p.VisitedStopIDs, &p.IsPlaying, &lastPlayed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	if p.VisitedStopIDs == nil {
		p.VisitedStopIDs = []string{}
	}
	if lastPlayed != nil {
		p.LastPlayedAt = lastPlayed.UTC().Format(time.RFC3339)
	}
	return &p, nil
}

// Save upserts progress unless the stored copy was played more recently.
func (r *ProgressRepo) Save(ctx context.Context, p *domain.TourProgress) error {
	var lastPlayed *time.Time
	if p.LastPlayedAt != "" {
		t, err := time.Parse(time.RFC3339, p.LastPlayedAt)
		if err != nil {
			return fmt.Errorf("parse last_played_at: %w", err)
		}
		lastPlayed = &t
	}
	visited := p.VisitedStopIDs
	if visited == nil {
		visited = []string{}
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tour_progress (tour_id, active_stop_id, active_position_ms, visited_stop_ids, is_playing, last_played_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tour_id) DO UPDATE
		SET active_stop_id = EXCLUDED.active_stop_id,
		    active_position_ms = EXCLUDED.active_position_ms,
		    visited_stop_ids = EXCLUDED.visited_stop_ids,
		    is_playing = EXCLUDED.is_playing,
		    last_played_at = EXCLUDED.last_played_at,
		    updated_at = now()
		WHERE tour_progress.last_played_at IS NULL
		   OR EXCLUDED.last_played_at >= tour_progress.last_played_at
	`, p.TourID, p.ActiveStopID, p.ActiveAudioPositionMillis, visited, p.IsPlaying, lastPlayed)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// Delete removes a tour's progress.
func (r *ProgressRepo) Delete(ctx context.Context, tourID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM tour_progress WHERE tour_id = $1`, tourID)
	return err
}
