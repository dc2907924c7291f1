package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/audiotour/internal/adapters/postgres"
	"github.com/samirrijal/audiotour/internal/adapters/sqlite"
	"github.com/samirrijal/audiotour/internal/adapters/valkey"
	"github.com/samirrijal/audiotour/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Player *usecases.TourController
	Tours  *usecases.TourService
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  *valkey.Cache
	SQLite *sqlite.ProgressStore
	// DocsPath is the OpenAPI document served at /docs/openapi.yaml.
	DocsPath string
}
