package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

// TourRepo implements ports.TourStore over the central tour catalog.
type TourRepo struct {
	db *DB
}

// NewTourRepo creates a new TourRepo.
func NewTourRepo(db *DB) *TourRepo {
	return &TourRepo{db: db}
}

// Upsert inserts or replaces a tour with its stops and narration assets.
func (r *TourRepo) Upsert(ctx context.Context, t *domain.Tour, assets map[string]string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO tours (id, title, base_url, offline)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, base_url = EXCLUDED.base_url, offline = EXCLUDED.offline
	`, t.ID, t.Title, t.BaseURL, t.Offline); err != nil {
		return fmt.Errorf("upsert tour: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tour_stops WHERE tour_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear stops: %w", err)
	}

	batch := &pgx.Batch{}
	stops := t.Stops()
	for i, s := range stops {
		batch.Queue(`
			INSERT INTO tour_stops (tour_id, stop_id, seq, title, description, location, trigger_radius_m, narration_key)
			VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $9)
		`, t.ID, s.ID, i, s.Title, s.Description, s.Location.Lon, s.Location.Lat,
			s.TriggerRadiusMeters, s.NarrationKey)
	}
	for key, uri := range assets {
		batch.Queue(`
			INSERT INTO tour_assets (tour_id, narration_key, uri)
			VALUES ($1, $2, $3)
			ON CONFLICT (tour_id, narration_key) DO UPDATE SET uri = EXCLUDED.uri
		`, t.ID, key, uri)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch close: %w", err)
	}

	return tx.Commit(ctx)
}

// GetStops returns the tour's stops in route order.
func (r *TourRepo) GetStops(ctx context.Context, tourID string) ([]domain.Stop, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT stop_id, title, description,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       trigger_radius_m, narration_key
		FROM tour_stops
		WHERE tour_id = $1
		ORDER BY seq
	`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []domain.Stop
	for rows.Next() {
		var s domain.Stop
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Description,
			&s.Location.Lat, &s.Location.Lon,
			&s.TriggerRadiusMeters, &s.NarrationKey,
		); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(stops) == 0 {
		var exists bool
		if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tours WHERE id = $1)`, tourID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrTourNotFound, tourID)
		}
	}
	return stops, nil
}

// AssetURI returns the registered asset URI, falling back to the tour's base URL.
func (r *TourRepo) AssetURI(ctx context.Context, tourID, narrationKey string) (string, error) {
	var uri string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT uri FROM tour_assets WHERE tour_id = $1 AND narration_key = $2
	`, tourID, narrationKey).Scan(&uri)
	if err == nil {
		return uri, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	var baseURL string
	err = r.db.Pool.QueryRow(ctx, `SELECT base_url FROM tours WHERE id = $1`, tourID).Scan(&baseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", domain.ErrTourNotFound, tourID)
	}
	if err != nil {
		return "", err
	}
	if baseURL == "" {
		return "", fmt.Errorf("tour %s has no asset %q and no base url", tourID, narrationKey)
	}
	return strings.TrimRight(baseURL, "/") + "/" + narrationKey, nil
}

// RemoveTour deletes a tour and, by cascade, its stops and assets.
func (r *TourRepo) RemoveTour(ctx context.Context, tourID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM tours WHERE id = $1`, tourID)
	return err
}
