package ports

import (
	"context"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

// LineIndexSource loads the catalog of line bounding boxes.
type LineIndexSource interface {
	LoadIndex(ctx context.Context) ([]domain.LineIndexEntry, error)
}

// LinePointSource loads the ordered PK points of one line.
type LinePointSource interface {
	LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error)
}

// CorrectionSource loads correction rules. An absent rule set is not an
// error and yields an empty slice.
type CorrectionSource interface {
	LoadCorrections(ctx context.Context) ([]domain.CorrectionRule, error)
}

// Dataset groups the three sources a locator needs.
type Dataset interface {
	LineIndexSource
	LinePointSource
	CorrectionSource
}

// DatasetWriter persists a dataset (used by the importer).
type DatasetWriter interface {
	UpsertLines(ctx context.Context, entries []domain.LineIndexEntry) error
	ReplaceLinePoints(ctx context.Context, code string, points []domain.PKPoint) error
	ReplaceCorrections(ctx context.Context, rules []domain.CorrectionRule) error
}
