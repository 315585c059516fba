package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

// LineRepo implements ports.Dataset and ports.DatasetWriter with pgx.
type LineRepo struct {
	db *DB
}

// NewLineRepo creates a new LineRepo.
func NewLineRepo(db *DB) *LineRepo {
	return &LineRepo{db: db}
}

// LoadIndex returns line boxes in import order.
func (r *LineRepo) LoadIndex(ctx context.Context) ([]domain.LineIndexEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT code, min_lat, max_lat, min_lon, max_lon
		FROM lines
		ORDER BY position, code
	`)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var entries []domain.LineIndexEntry
	for rows.Next() {
		var e domain.LineIndexEntry
		if err := rows.Scan(&e.Code, &e.MinLat, &e.MaxLat, &e.MinLon, &e.MaxLon); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("lines table: %w", dataset.ErrNotFound)
	}
	return entries, nil
}

// LoadLinePoints returns the points of one line in storage order.
func (r *LineRepo) LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT pk, lat, lon
		FROM pk_points
		WHERE line_code = $1
		ORDER BY seq
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query points for %s: %w", code, err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PKPoint, error) {
		var p domain.PKPoint
		err := row.Scan(&p.PK, &p.Lat, &p.Lon)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan points for %s: %w", code, err)
	}

	if len(points) == 0 {
		var exists bool
		if err := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM lines WHERE code = $1)`, code,
		).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("line %s: %w", code, dataset.ErrNotFound)
		}
	}
	return points, nil
}

// LoadCorrections returns the rules in import order; none is not an error.
func (r *LineRepo) LoadCorrections(ctx context.Context) ([]domain.CorrectionRule, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT line_code, pk_start, pk_end, correction, COALESCE(description, '')
		FROM pk_corrections
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CorrectionRule, error) {
		var c domain.CorrectionRule
		err := row.Scan(&c.Line, &c.PKStart, &c.PKEnd, &c.Delta, &c.Description)
		return c, err
	})
}

// UpsertLines inserts or updates line boxes, recording their order.
func (r *LineRepo) UpsertLines(ctx context.Context, entries []domain.LineIndexEntry) error {
	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(`
			INSERT INTO lines (code, min_lat, max_lat, min_lon, max_lon, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE
			SET min_lat = EXCLUDED.min_lat, max_lat = EXCLUDED.max_lat,
			    min_lon = EXCLUDED.min_lon, max_lon = EXCLUDED.max_lon,
			    position = EXCLUDED.position, updated_at = now()
		`, e.Code, e.MinLat, e.MaxLat, e.MinLon, e.MaxLon, i)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// ReplaceLinePoints swaps the point set of a line in one transaction.
func (r *LineRepo) ReplaceLinePoints(ctx context.Context, code string, points []domain.PKPoint) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM pk_points WHERE line_code = $1`, code); err != nil {
		return fmt.Errorf("delete points for %s: %w", code, err)
	}

	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{code, i, p.PK, p.Lat, p.Lon}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"pk_points"},
		[]string{"line_code", "seq", "pk", "lat", "lon"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy points for %s: %w", code, err)
	}

	return tx.Commit(ctx)
}

// ReplaceCorrections swaps the whole rule set in one transaction.
func (r *LineRepo) ReplaceCorrections(ctx context.Context, rules []domain.CorrectionRule) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM pk_corrections`); err != nil {
		return fmt.Errorf("delete corrections: %w", err)
	}

	batch := &pgx.Batch{}
	for i, c := range rules {
		batch.Queue(`
			INSERT INTO pk_corrections (line_code, pk_start, pk_end, correction, description, position)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		`, c.Line, c.PKStart, c.PKEnd, c.Delta, c.Description, i)
	}
	br := tx.SendBatch(ctx, batch)
	for range rules {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
