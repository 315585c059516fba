package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

// importWorkers bounds concurrent point set copies.
const importWorkers = 4

// ImportReport summarizes an Import run.
type ImportReport struct {
	Lines       int
	Points      int
	Missing     []string
	Corrections int
}

// Import copies a whole dataset from src into dst. Lines whose point file is
// absent are recorded in Missing and keep their index entry.
func Import(ctx context.Context, src ports.Dataset, dst ports.DatasetWriter) (ImportReport, error) {
	var report ImportReport

	entries, err := src.LoadIndex(ctx)
	if err != nil {
		return report, fmt.Errorf("load index: %w", err)
	}
	if err := dst.UpsertLines(ctx, entries); err != nil {
		return report, fmt.Errorf("write index: %w", err)
	}
	report.Lines = len(entries)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importWorkers)
	for _, e := range entries {
		g.Go(func() error {
			points, err := src.LoadLinePoints(gctx, e.Code)
			if errors.Is(err, dataset.ErrNotFound) {
				slog.Warn("line has no point file", "line", e.Code)
				mu.Lock()
				report.Missing = append(report.Missing, e.Code)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("load points %s: %w", e.Code, err)
			}
			if err := dst.ReplaceLinePoints(gctx, e.Code, points); err != nil {
				return fmt.Errorf("write points %s: %w", e.Code, err)
			}
			mu.Lock()
			report.Points += len(points)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	rules, err := src.LoadCorrections(ctx)
	if err != nil {
		return report, fmt.Errorf("load corrections: %w", err)
	}
	if err := dst.ReplaceCorrections(ctx, rules); err != nil {
		return report, fmt.Errorf("write corrections: %w", err)
	}
	report.Corrections = len(rules)

	return report, nil
}
