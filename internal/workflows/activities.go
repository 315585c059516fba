package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/core/usecases"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

// Activity names as registered on the worker.
const (
	CandidateLinesActivity = "CandidateLines"
	WarmLineActivity       = "WarmLine"
)

// PrefetchActivities holds the activity implementations for the prefetch
// workflow. Points is normally a usecases.CachedPointSource so that a load
// lands in the shared cache tier.
type PrefetchActivities struct {
	Index  *usecases.LineIndex
	Points ports.LinePointSource
}

// CandidateLines returns the lines to warm: the explicit list if given, the
// lines around Near otherwise, or the whole index. The result is capped at
// MaxLines when positive.
func (a *PrefetchActivities) CandidateLines(ctx context.Context, in PrefetchInput) ([]string, error) {
	var codes []string
	switch {
	case len(in.Lines) > 0:
		codes = append(codes, in.Lines...)
	case in.Near != nil:
		for _, e := range a.Index.CandidatesNear(in.Near.Lat, in.Near.Lon) {
			codes = append(codes, e.Code)
		}
	default:
		for _, e := range a.Index.Entries() {
			codes = append(codes, e.Code)
		}
	}
	if in.MaxLines > 0 && len(codes) > in.MaxLines {
		codes = codes[:in.MaxLines]
	}
	activity.GetLogger(ctx).Info("prefetch candidates", "lines", len(codes))
	return codes, nil
}

// WarmLine loads one line's points and returns how many there are. A line
// missing from the dataset is not retried.
func (a *PrefetchActivities) WarmLine(ctx context.Context, code string) (int, error) {
	points, err := a.Points.LoadLinePoints(ctx, code)
	if errors.Is(err, dataset.ErrNotFound) {
		return 0, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("line %s has no points", code), "NotFound", err)
	}
	if err != nil {
		return 0, fmt.Errorf("load line %s: %w", code, err)
	}
	return len(points), nil
}
