package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WarmViewport is one map view the prefetch workflow loads.
type WarmViewport struct {
	Name   string
	Lat    float64
	Lon    float64
	Zoom   float64
	Width  int
	Height int
}

// PrefetchInput is the input for the prefetch workflow.
type PrefetchInput struct {
	Viewports []WarmViewport
}

// PrefetchResult summarises one run.
type PrefetchResult struct {
	Warmed  []string
	Failed  []string
	Features map[string]int // features loaded after each warmed viewport
}

// PrefetchWorkflow walks the loader through a list of viewports so that the
// shared snapshot and the fetch log are warm before clients arrive. Each
// viewport is reported, then the workflow waits until the loader is idle
// again. A viewport that keeps failing is skipped; the run continues.
func PrefetchWorkflow(ctx workflow.Context, input PrefetchInput) (*PrefetchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting prefetch workflow", "viewports", len(input.Viewports))

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	// The loader retries failed Overpass queries itself, so waiting for it
	// to become idle may take several minutes.
	awaitOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 5,
		},
	}
	reportCtx := workflow.WithActivityOptions(ctx, actOpts)
	awaitCtx := workflow.WithActivityOptions(ctx, awaitOpts)

	result := &PrefetchResult{Features: make(map[string]int)}
	for _, vp := range input.Viewports {
		if err := workflow.ExecuteActivity(reportCtx, "ReportViewport", vp).Get(ctx, nil); err != nil {
			logger.Warn("report viewport failed, skipping", "viewport", vp.Name, "error", err)
			result.Failed = append(result.Failed, vp.Name)
			continue
		}

		var features int
		if err := workflow.ExecuteActivity(awaitCtx, "AwaitIdle").Get(ctx, &features); err != nil {
			logger.Warn("loader did not settle, skipping", "viewport", vp.Name, "error", err)
			result.Failed = append(result.Failed, vp.Name)
			continue
		}

		result.Warmed = append(result.Warmed, vp.Name)
		result.Features[vp.Name] = features
	}

	logger.Info("Prefetch finished", "warmed", len(result.Warmed), "failed", len(result.Failed))
	return result, nil
}
