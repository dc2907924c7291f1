package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	natsadapter "github.com/samirrijal/audiotour/internal/adapters/nats"
	"github.com/samirrijal/audiotour/internal/adapters/simulate"
	"github.com/samirrijal/audiotour/internal/core/ports"
	"github.com/samirrijal/audiotour/internal/pkg/config"
	"github.com/samirrijal/audiotour/internal/pkg/logging"
)

// devicesim plays a route file as a phone: it answers permission requests and
// publishes positions for nats.device_id.
//
//	devicesim [route file]
func main() {
	cfg, err := config.Load("audiotour-devicesim")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	routeFile := cfg.Simulation.RouteFile
	if len(os.Args) > 1 {
		routeFile = os.Args[1]
	}
	if routeFile == "" {
		log.Fatal("no route: set simulation.route_file or pass it as the first argument")
	}
	route, err := simulate.LoadRoute(routeFile)
	if err != nil {
		log.Fatalf("route: %v", err)
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	pub, err := natsadapter.NewPublisher(nc)
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	granted := !route.PermissionDenied
	sub, err := natsadapter.ServePermission(nc, cfg.NATS.DeviceID, natsadapter.PermissionReply{
		Foreground: granted,
		Background: granted,
	})
	if err != nil {
		log.Fatalf("permission responder: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	walker := simulate.NewRouteProvider(route, cfg.Simulation.StepMeters, cfg.Simulation.Tick, logger)
	samples, err := walker.Watch(ctx, ports.WatchOptions{})
	if err != nil {
		log.Fatalf("route: %v", err)
	}

	logger.Info("device simulation started", "device_id", cfg.NATS.DeviceID, "route", route.Name, "permission", granted)
	published := 0
	for s := range samples {
		if err := pub.PublishPosition(cfg.NATS.DeviceID, s); err != nil {
			logger.Warn("publish position", "error", err)
			continue
		}
		published++
	}
	logger.Info("device simulation finished", "samples", published)
}
