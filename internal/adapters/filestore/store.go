package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/samirrijal/audiotour/internal/core/domain"
)

const manifestName = "tour.json"

// ErrAssetNotFound is returned when a narration key has no asset entry, or
// the asset is neither on disk nor reachable through a base URL.
var ErrAssetNotFound = errors.New("asset not found")

// Asset describes one downloaded file of a tour.
type Asset struct {
	Hash string `json:"hash"`
	Type string `json:"type,omitempty"`
}

// Manifest is the content of <toursDir>/<tourID>/tour.json.
type Manifest struct {
	Tour    domain.Tour      `json:"tour"`
	Assets  map[string]Asset `json:"assets"`
	BaseURL string           `json:"base_url,omitempty"`
	Offline bool             `json:"offline"`
}

// Store implements ports.TourStore and ports.TourRemover over the downloaded
// tour directory layout.
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) tourDir(tourID string) (string, error) {
	if tourID == "" || tourID != filepath.Base(tourID) || strings.HasPrefix(tourID, ".") {
		return "", fmt.Errorf("invalid tour id %q: %w", tourID, domain.ErrTourNotFound)
	}
	return filepath.Join(s.dir, tourID), nil
}

// ReadManifest loads a tour's manifest. A missing tour yields domain.ErrTourNotFound.
func (s *Store) ReadManifest(tourID string) (*Manifest, error) {
	dir, err := s.tourDir(tourID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("tour %s: %w", tourID, domain.ErrTourNotFound)
	}
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s manifest: %w", tourID, err)
	}
	if m.Tour.ID == "" {
		m.Tour.ID = tourID
	}
	if m.Tour.BaseURL == "" {
		m.Tour.BaseURL = m.BaseURL
	}
	m.Tour.Offline = m.Tour.Offline || m.Offline
	return &m, nil
}

// WriteManifest stores a manifest, creating the tour directory.
func (s *Store) WriteManifest(m *Manifest) error {
	dir, err := s.tourDir(m.Tour.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, manifestName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, manifestName))
}

// ListTours returns the ids of every directory holding a manifest.
func (s *Store) ListTours() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), manifestName)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// GetStops returns the tour's stops in route order.
func (s *Store) GetStops(_ context.Context, tourID string) ([]domain.Stop, error) {
	m, err := s.ReadManifest(tourID)
	if err != nil {
		return nil, err
	}
	return m.Tour.Stops(), nil
}

// AssetURI resolves a narration key. Files present on disk win; otherwise a
// non-offline tour streams from <baseURL>/<hash>.
func (s *Store) AssetURI(_ context.Context, tourID, narrationKey string) (string, error) {
	m, err := s.ReadManifest(tourID)
	if err != nil {
		return "", err
	}

	hash := narrationKey
	if a, ok := m.Assets[narrationKey]; ok && a.Hash != "" {
		hash = a.Hash
	} else if len(m.Assets) > 0 {
		return "", fmt.Errorf("narration %q of tour %s: %w", narrationKey, tourID, ErrAssetNotFound)
	}
	if hash == "" || hash != filepath.Base(hash) {
		return "", fmt.Errorf("narration %q of tour %s: %w", narrationKey, tourID, ErrAssetNotFound)
	}

	local := filepath.Join(s.dir, tourID, hash)
	if _, err := os.Stat(local); err == nil || m.Tour.Offline {
		abs, err := filepath.Abs(local)
		if err != nil {
			return "", err
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}

	if m.Tour.BaseURL == "" {
		return "", fmt.Errorf("narration %q of tour %s is not downloaded: %w", narrationKey, tourID, ErrAssetNotFound)
	}
	return strings.TrimRight(m.Tour.BaseURL, "/") + "/" + url.PathEscape(hash), nil
}

// RemoveTour deletes the tour directory. Removing a missing tour is not an error.
func (s *Store) RemoveTour(_ context.Context, tourID string) error {
	dir, err := s.tourDir(tourID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
