package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS tour_progress (
	tour_id            TEXT PRIMARY KEY,
	active_stop_id     TEXT NOT NULL DEFAULT '',
	active_position_ms INTEGER NOT NULL DEFAULT 0,
	visited_stop_ids   TEXT NOT NULL DEFAULT '[]',
	is_playing         INTEGER NOT NULL DEFAULT 0,
	last_played_at     TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
)`

// ProgressStore implements ports.ProgressStore on an on-device SQLite file.
type ProgressStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*ProgressStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &ProgressStore{db: db}, nil
}

// Load returns the stored progress or the default progress.
func (s *ProgressStore) Load(ctx context.Context, tourID string) (*domain.TourProgress, error) {
	p := domain.DefaultProgress(tourID)
	var (
		visited string
		playing int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT active_stop_id, active_position_ms, visited_stop_ids, is_playing, last_played_at
		FROM tour_progress WHERE tour_id = ?
	`, tourID).Scan(&p.ActiveStopID, &p.ActiveAudioPositionMillis, &visited, &playing, &p.LastPlayedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}

	if err := json.Unmarshal([]byte(visited), &p.VisitedStopIDs); err != nil {
		return nil, fmt.Errorf("decode visited stops: %w", err)
	}
	if p.VisitedStopIDs == nil {
		p.VisitedStopIDs = []string{}
	}
	p.IsPlaying = playing != 0
	return &p, nil
}

// Save upserts the progress row. The last write wins.
func (s *ProgressStore) Save(ctx context.Context, p *domain.TourProgress) error {
	visited := p.VisitedStopIDs
	if visited == nil {
		visited = []string{}
	}
	data, err := json.Marshal(visited)
	if err != nil {
		return fmt.Errorf("encode visited stops: %w", err)
	}
	playing := 0
	if p.IsPlaying {
		playing = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tour_progress (tour_id, active_stop_id, active_position_ms, visited_stop_ids, is_playing, last_played_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tour_id) DO UPDATE
		SET active_stop_id = excluded.active_stop_id,
		    active_position_ms = excluded.active_position_ms,
		    visited_stop_ids = excluded.visited_stop_ids,
		    is_playing = excluded.is_playing,
		    last_played_at = excluded.last_played_at,
		    updated_at = excluded.updated_at
	`, p.TourID, p.ActiveStopID, p.ActiveAudioPositionMillis, string(data), playing, p.LastPlayedAt,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// Delete removes a tour's progress.
func (s *ProgressStore) Delete(ctx context.Context, tourID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tour_progress WHERE tour_id = ?`, tourID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *ProgressStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *ProgressStore) Close() error {
	return s.db.Close()
}
