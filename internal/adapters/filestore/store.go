package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

// Store reads the locator dataset from a directory tree:
// index_lignes.json, pk_<code>.json and an optional corrections.json.
type Store struct {
	fsys fs.FS
}

// New opens a store over dir.
func New(dir string) *Store {
	return NewFS(os.DirFS(dir))
}

// NewFS opens a store over any file system.
func NewFS(fsys fs.FS) *Store {
	return &Store{fsys: fsys}
}

func (s *Store) LoadIndex(ctx context.Context) ([]domain.LineIndexEntry, error) {
	f, err := s.open(ctx, dataset.IndexFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.DecodeIndex(f)
}

func (s *Store) LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error) {
	if code == "" || strings.ContainsAny(code, `/\`) {
		return nil, fmt.Errorf("invalid line code %q", code)
	}
	f, err := s.open(ctx, dataset.PointsFile(code))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.DecodePoints(f)
}

// LoadCorrections returns no rules when corrections.json is absent.
func (s *Store) LoadCorrections(ctx context.Context) ([]domain.CorrectionRule, error) {
	f, err := s.open(ctx, dataset.CorrectionsFile)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.DecodeCorrections(f)
}

func (s *Store) open(ctx context.Context, name string) (fs.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, dataset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}
