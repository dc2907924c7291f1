package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/audiotour/internal/adapters/filestore"
	"github.com/samirrijal/audiotour/internal/adapters/http"
	natsadapter "github.com/samirrijal/audiotour/internal/adapters/nats"
	"github.com/samirrijal/audiotour/internal/adapters/postgres"
	"github.com/samirrijal/audiotour/internal/adapters/simulate"
	"github.com/samirrijal/audiotour/internal/adapters/sqlite"
	"github.com/samirrijal/audiotour/internal/adapters/valkey"
	"github.com/samirrijal/audiotour/internal/core/ports"
	"github.com/samirrijal/audiotour/internal/core/usecases"
	"github.com/samirrijal/audiotour/internal/pkg/config"
	"github.com/samirrijal/audiotour/internal/pkg/logging"
	"github.com/samirrijal/audiotour/internal/pkg/metrics"
	"github.com/samirrijal/audiotour/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("audiotour-player")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	tourID := cfg.Player.TourID
	if tourID == "" && len(os.Args) > 1 {
		tourID = os.Args[1]
	}
	if tourID == "" {
		log.Fatal("no tour selected: set player.tour_id or pass it as the first argument")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		logger.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// Downloaded tours
	files := filestore.New(cfg.Player.ToursDir)
	catalog := usecases.NewTourCatalog(files, cacheSvc)

	// Progress
	var (
		progress    ports.ProgressStore
		db          *postgres.DB
		sqliteStore *sqlite.ProgressStore
	)
	switch cfg.Player.ProgressBackend {
	case config.BackendValkey:
		if cache == nil {
			log.Fatal("valkey progress backend selected but valkey is unavailable")
		}
		progress = valkey.NewProgressStore(cache)
	case config.BackendPostgres:
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		progress = postgres.NewProgressRepo(db)
	default:
		sqliteStore, err = sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer sqliteStore.Close()
		progress = sqliteStore
	}

	// NATS
	var opts []usecases.ControllerOption
	opts = append(opts, usecases.WithLogger(logger))
	natsConn, err := natsadapter.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable", "error", err)
		natsConn = nil
	} else {
		pub, err := natsadapter.NewPublisher(natsConn)
		if err != nil {
			logger.Warn("event stream unavailable", "error", err)
		} else {
			opts = append(opts, usecases.WithPublisher(pub))
		}
	}

	location, err := newLocation(cfg, natsConn, logger)
	if err != nil {
		log.Fatalf("location: %v", err)
	}

	engine := simulate.NewAudioEngine(simulate.AudioOptions{
		Tick:       cfg.Simulation.Tick,
		ClipLength: cfg.Simulation.ClipLength,
	}, logger)

	player := usecases.NewTourController(usecases.ControllerConfig{
		TourID: tourID,
		Watch: ports.WatchOptions{
			Interval:         cfg.Player.SampleInterval,
			DistanceInterval: cfg.Player.DistanceInterval,
			HighAccuracy:     true,
		},
		LoadTimeout: cfg.Player.LoadTimeout,
		SaveTimeout: cfg.Player.SaveTimeout,
	}, catalog, location, progress, engine, opts...)

	if err := player.Start(ctx); err != nil {
		log.Fatalf("start tour: %v", err)
	}
	logger.Info("tour started", "tour_id", tourID, "session_id", player.SessionID())

	if db != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.UpdateDBPoolMetrics(db.Stat())
				}
			}
		}()
	}

	deps := &http.Dependencies{
		Player:   player,
		Tours:    usecases.NewTourService(catalog, progress, files, catalog),
		NATS:     natsConn,
		DB:       db,
		Cache:    cache,
		SQLite:   sqliteStore,
		DocsPath: "api/openapi.yaml",
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "Audio Tour Player",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("player API starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received, saving progress", "signal", sig.String())
	case <-player.Done():
		logger.Warn("tour controller stopped")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Player.CloseTimeout)
	defer closeCancel()
	if err := player.Close(closeCtx); err != nil {
		logger.Error("close tour", "error", err)
	}

	if err := app.ShutdownWithContext(closeCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	if natsConn != nil {
		_ = natsConn.Drain()
	}

	logger.Info("player stopped")
}

func newLocation(cfg *config.Config, conn *nats.Conn, logger *slog.Logger) (ports.LocationProvider, error) {
	if cfg.Player.LocationSource == config.SourceNATS {
		if conn == nil {
			return nil, fmt.Errorf("nats location source selected but nats is unavailable")
		}
		return natsadapter.NewLocationProvider(conn, cfg.NATS.DeviceID, logger), nil
	}

	if cfg.Simulation.RouteFile == "" {
		return nil, fmt.Errorf("simulation.route_file is required for the simulated location source")
	}
	route, err := simulate.LoadRoute(cfg.Simulation.RouteFile)
	if err != nil {
		return nil, err
	}
	return simulate.NewRouteProvider(route, cfg.Simulation.StepMeters, cfg.Simulation.Tick, logger), nil
}
