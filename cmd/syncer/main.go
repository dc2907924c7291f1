package main

import (
	"context"
	"errors"
	"log"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/audiotour/internal/adapters/nats"
	"github.com/samirrijal/audiotour/internal/adapters/postgres"
	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/usecases"
	"github.com/samirrijal/audiotour/internal/pkg/config"
	"github.com/samirrijal/audiotour/internal/pkg/logging"
	"github.com/samirrijal/audiotour/internal/workflows"
)

func main() {
	cfg, err := config.Load("audiotour-syncer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.ProgressSyncWorkflow)
	w.RegisterActivity(&workflows.ProgressActivities{
		Sync:   usecases.NewProgressSyncService(postgres.NewProgressRepo(db)),
		Logger: logger,
	})

	if err := w.Start(); err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer w.Stop()

	nc, err := natsadapter.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Close()

	sub, err := natsadapter.NewSubscriber(nc, "progress-sync")
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeTourEvents(ctx, func(ctx context.Context, event *domain.TourEvent) error {
		if event.Type != domain.EventProgressSaved || event.Progress == nil {
			return nil
		}
		_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        workflows.WorkflowID(event.ID),
			TaskQueue: cfg.Temporal.TaskQueue,
		}, workflows.ProgressSyncWorkflow, workflows.ProgressSyncInput{
			EventID:   event.ID,
			SessionID: event.SessionID,
			Progress:  *event.Progress,
		})
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		if err != nil {
			logger.Warn("start progress sync", "event_id", event.ID, "tour_id", event.TourID, "error", err)
		}
		return err
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	logger.Info("progress syncer started", "task_queue", cfg.Temporal.TaskQueue)
	<-worker.InterruptCh()
	logger.Info("progress syncer stopping")
}
