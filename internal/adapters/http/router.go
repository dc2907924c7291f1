package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/audiotour/internal/pkg/metrics"
)

// commandTimeout bounds player commands. Loads past this keep running in the
// controller; the request just stops waiting.
const commandTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(nil))
	app.Use(AccessLogMiddleware())

	// Rate limiting: 240 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        240,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	player := v1.Group("/player")
	player.Get("/", PlayerSnapshotHandler(deps))
	for _, action := range []string{"play", "pause", "next", "previous", "background", "foreground"} {
		player.Post("/"+action, timeout.NewWithContext(PlayerCommandHandler(deps, action), commandTimeout))
	}
	player.Post("/seek", timeout.NewWithContext(PlayerSeekHandler(deps), commandTimeout))
	player.Post("/stops/:id", timeout.NewWithContext(PlayerGoToStopHandler(deps), commandTimeout))

	v1.Get("/tours/:id/stops", timeout.NewWithContext(TourStopsHandler(deps), commandTimeout))
	v1.Get("/tours/:id/progress", timeout.NewWithContext(TourProgressHandler(deps), commandTimeout))
	v1.Delete("/tours/:id", timeout.NewWithContext(RemoveTourHandler(deps), commandTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app, deps.DocsPath)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
