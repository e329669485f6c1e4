package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/osmfj/MapComplete/internal/pkg/config"
	"github.com/osmfj/MapComplete/internal/pkg/logging"
	"github.com/osmfj/MapComplete/internal/workflows"
)

const workflowID = "mapsync-prefetch"

func main() {
	cfg, err := config.Load("mapsync-warmer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.PrefetchWorkflow)
	w.RegisterActivity(workflows.NewPrefetchActivities(cfg.Warmer.APIURL))

	if len(cfg.Warmer.Viewports) > 0 {
		input := workflows.PrefetchInput{}
		for _, vp := range cfg.Warmer.Viewports {
			input.Viewports = append(input.Viewports, workflows.WarmViewport(vp))
		}
		run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
			ID:           workflowID,
			TaskQueue:    cfg.Temporal.TaskQueue,
			CronSchedule: fmt.Sprintf("@every %dm", cfg.Warmer.Interval),
		}, workflows.PrefetchWorkflow, input)
		if err != nil {
			slog.Warn("prefetch schedule not started", "error", err)
		} else {
			slog.Info("prefetch scheduled", "workflow_id", run.GetID(), "run_id", run.GetRunID(),
				"viewports", len(input.Viewports), "every_min", cfg.Warmer.Interval)
		}
	} else {
		slog.Info("no warmer viewports configured, worker only")
	}

	slog.Info("warmer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
