package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

// TaskQueue is the default queue the warmer worker listens on.
const TaskQueue = "pklocator-warmup"

// PrefetchInput selects the lines to warm.
type PrefetchInput struct {
	Near     *domain.GeoPoint
	Lines    []string
	MaxLines int
}

// PrefetchResult lists the outcome per line.
type PrefetchResult struct {
	Warmed []string
	Failed []string
	Points int
}

// PrefetchWorkflow loads the PK points of the selected lines one after the
// other so that the shared cache holds them before a locator needs them. A
// line that fails after retries is recorded and skipped.
func PrefetchWorkflow(ctx workflow.Context, input PrefetchInput) (PrefetchResult, error) {
	logger := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	var codes []string
	if err := workflow.ExecuteActivity(ctx, CandidateLinesActivity, input).Get(ctx, &codes); err != nil {
		return PrefetchResult{}, err
	}

	var result PrefetchResult
	for _, code := range codes {
		var n int
		if err := workflow.ExecuteActivity(ctx, WarmLineActivity, code).Get(ctx, &n); err != nil {
			logger.Warn("prefetch line failed", "line", code, "error", err)
			result.Failed = append(result.Failed, code)
			continue
		}
		result.Warmed = append(result.Warmed, code)
		result.Points += n
	}

	logger.Info("prefetch done", "warmed", len(result.Warmed), "failed", len(result.Failed))
	return result, nil
}
