package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/adapters/filestore"
	"github.com/samirrijal/pklocator/internal/app"
	"github.com/samirrijal/pklocator/internal/core/domain"
)

type memWriter struct {
	mu          sync.Mutex
	lines       []domain.LineIndexEntry
	points      map[string][]domain.PKPoint
	corrections []domain.CorrectionRule
	failPoints  string
}

func (w *memWriter) UpsertLines(ctx context.Context, entries []domain.LineIndexEntry) error {
	w.lines = entries
	return nil
}

func (w *memWriter) ReplaceLinePoints(ctx context.Context, code string, points []domain.PKPoint) error {
	if code == w.failPoints {
		return errors.New("disk full")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points[code] = points
	return nil
}

func (w *memWriter) ReplaceCorrections(ctx context.Context, rules []domain.CorrectionRule) error {
	w.corrections = rules
	return nil
}

func importFS() fstest.MapFS {
	return fstest.MapFS{
		"index_lignes.json": {Data: []byte(`[
			{"code_ligne":"001000","minLat":48.0,"maxLat":48.2,"minLon":2.0,"maxLon":2.3},
			{"code_ligne":"002000","minLat":45.0,"maxLat":45.5,"minLon":4.0,"maxLon":4.5}
		]`)},
		"pk_001000.json":   {Data: []byte(`[{"pk":10.0,"lat":48.10,"lon":2.10},{"pk":10.2,"lat":48.101,"lon":2.101}]`)},
		"corrections.json": {Data: []byte(`[{"ligne":"001000","pk_start":10,"pk_end":11,"correction":0.05}]`)},
	}
}

func TestImport(t *testing.T) {
	dst := &memWriter{points: map[string][]domain.PKPoint{}}

	report, err := app.Import(context.Background(), filestore.NewFS(importFS()), dst)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Lines)
	assert.Equal(t, 2, report.Points)
	assert.Equal(t, []string{"002000"}, report.Missing)
	assert.Equal(t, 1, report.Corrections)

	require.Len(t, dst.lines, 2)
	assert.Equal(t, "001000", dst.lines[0].Code)
	assert.Len(t, dst.points["001000"], 2)
	assert.NotContains(t, dst.points, "002000")
	require.Len(t, dst.corrections, 1)
	assert.Equal(t, 0.05, dst.corrections[0].Delta)
}

func TestImport_WriteFailure(t *testing.T) {
	dst := &memWriter{points: map[string][]domain.PKPoint{}, failPoints: "001000"}

	_, err := app.Import(context.Background(), filestore.NewFS(importFS()), dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write points 001000")
	assert.Nil(t, dst.corrections)
}

func TestImport_MissingIndex(t *testing.T) {
	dst := &memWriter{points: map[string][]domain.PKPoint{}}

	_, err := app.Import(context.Background(), filestore.NewFS(fstest.MapFS{}), dst)
	require.Error(t, err)
	assert.Nil(t, dst.lines)
}
