package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/samirrijal/audiotour/internal/adapters/filestore"
	"github.com/samirrijal/audiotour/internal/adapters/postgres"
	"github.com/samirrijal/audiotour/internal/core/usecases"
	"github.com/samirrijal/audiotour/internal/pkg/config"
)

// importer copies downloaded tour manifests into the central catalog.
//
//	importer [tours dir] [tour ids, comma separated]
func main() {
	cfg, err := config.Load("audiotour-importer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	dir := cfg.Player.ToursDir
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	store := filestore.New(dir)

	ids, err := store.ListTours()
	if err != nil {
		log.Fatalf("list tours: %v", err)
	}

	filter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, id := range strings.Split(os.Args[2], ",") {
			filter[strings.TrimSpace(id)] = true
		}
	}

	log.Printf("importing %d tours from %s", len(ids), dir)

	repo := postgres.NewTourRepo(db)

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4)

	for _, id := range ids {
		if len(filter) > 0 && !filter[id] {
			continue
		}

		wg.Add(1)
		go func(tourID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := importTour(ctx, store, repo, tourID); err != nil {
				log.Printf("ERROR [%s]: %v", tourID, err)
			}
		}(id)
	}

	wg.Wait()
	log.Println("import complete")
}

func importTour(ctx context.Context, store *filestore.Store, repo *postgres.TourRepo, tourID string) error {
	m, err := store.ReadManifest(tourID)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	tour := m.Tour
	if tour.ID == "" {
		tour.ID = tourID
	}
	if tour.BaseURL == "" {
		tour.BaseURL = m.BaseURL
	}
	tour.Offline = tour.Offline || m.Offline

	stops := tour.Stops()
	for _, verr := range usecases.ValidateStops(stops) {
		log.Printf("[%s] %v", tourID, verr)
	}

	if err := repo.Upsert(ctx, &tour, assetURIs(tour.BaseURL, m.Assets)); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	log.Printf("[%s] %d stops, %d assets", tourID, len(stops), len(m.Assets))
	return nil
}

// assetURIs maps narration keys to their remote location. Without a base URL
// nothing is registered and lookups fall back to the tour's base URL.
func assetURIs(baseURL string, assets map[string]filestore.Asset) map[string]string {
	out := make(map[string]string, len(assets))
	if baseURL == "" {
		return out
	}
	base := strings.TrimRight(baseURL, "/")
	for key, a := range assets {
		if a.Hash == "" {
			continue
		}
		out[key] = base + "/" + a.Hash
	}
	return out
}
