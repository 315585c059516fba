// Package dataset decodes and validates the locator's JSON data files:
// the line index, the per-line PK point files and the optional corrections.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

const (
	IndexFile       = "index_lignes.json"
	CorrectionsFile = "corrections.json"
)

// ErrNotFound is returned by stores when a requested file or line does not exist.
var ErrNotFound = errors.New("dataset: not found")

var validate = validator.New()

// PointsFile returns the file name holding the points of a line.
func PointsFile(code string) string {
	return "pk_" + code + ".json"
}

// DecodeIndex reads and validates a line index document.
func DecodeIndex(r io.Reader) ([]domain.LineIndexEntry, error) {
	var entries []domain.LineIndexEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode line index: %w", err)
	}
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		if err := validate.Struct(entries[i]); err != nil {
			return nil, fmt.Errorf("line index entry %d: %w", i, err)
		}
		if _, dup := seen[entries[i].Code]; dup {
			return nil, fmt.Errorf("line index entry %d: duplicate code %q", i, entries[i].Code)
		}
		seen[entries[i].Code] = struct{}{}
	}
	return entries, nil
}

// DecodePoints reads and validates the point file of one line. Storage
// order is preserved.
func DecodePoints(r io.Reader) ([]domain.PKPoint, error) {
	var points []domain.PKPoint
	if err := json.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if err := ValidatePoints(points); err != nil {
		return nil, err
	}
	return points, nil
}

// ValidatePoints checks every point's coordinates.
func ValidatePoints(points []domain.PKPoint) error {
	for i := range points {
		if err := validate.Struct(points[i]); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// DecodeCorrections reads and validates a corrections document. An empty
// document (no bytes) yields no rules.
func DecodeCorrections(r io.Reader) ([]domain.CorrectionRule, error) {
	var rules []domain.CorrectionRule
	if err := json.NewDecoder(r).Decode(&rules); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode corrections: %w", err)
	}
	for i := range rules {
		if err := validate.Struct(rules[i]); err != nil {
			return nil, fmt.Errorf("correction %d: %w", i, err)
		}
	}
	return rules, nil
}
