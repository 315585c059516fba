package usecases

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

// DefaultMargin pads every line box, roughly 20 km of latitude.
const DefaultMargin = 0.18

// queryTolerance is the half side of the rect used to probe the tree. The
// tree's intersection test excludes touching edges, so hits are re-checked
// against the inclusive padded box.
const queryTolerance = 1e-9

// LineIndex is the immutable catalog of line bounding boxes.
type LineIndex struct {
	entries []domain.LineIndexEntry
	byCode  map[string]int
	margin  float64
	tree    *rtreego.Rtree
}

// indexedBox is one padded line box stored in the tree.
type indexedBox struct {
	pos    int
	padded domain.Bounds
	rect   rtreego.Rect
}

func (b *indexedBox) Bounds() rtreego.Rect { return b.rect }

// NewLineIndex builds an index over entries. A non-positive margin falls back
// to DefaultMargin.
func NewLineIndex(entries []domain.LineIndexEntry, margin float64) *LineIndex {
	if margin <= 0 {
		margin = DefaultMargin
	}
	byCode := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, ok := byCode[e.Code]; !ok {
			byCode[e.Code] = i
		}
	}
	boxes := make([]rtreego.Spatial, 0, len(entries))
	for i, e := range entries {
		padded := e.Bounds().Expand(margin)
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{padded.MinLat, padded.MinLon},
			rtreego.Point{padded.MaxLat, padded.MaxLon},
		)
		if err != nil {
			continue
		}
		boxes = append(boxes, &indexedBox{pos: i, padded: padded, rect: rect})
	}

	return &LineIndex{
		entries: entries,
		byCode:  byCode,
		margin:  margin,
		tree:    rtreego.NewTree(2, 4, 16, boxes...),
	}
}

// CandidatesNear returns, in load order, every line whose padded box contains
// the point. An empty result means no line is nearby.
func (ix *LineIndex) CandidatesNear(lat, lon float64) []domain.LineIndexEntry {
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	hits := ix.tree.SearchIntersect(rtreego.Point{lat, lon}.ToRect(queryTolerance))

	positions := make([]int, 0, len(hits))
	for _, h := range hits {
		box := h.(*indexedBox)
		if box.padded.Contains(p) {
			positions = append(positions, box.pos)
		}
	}
	if len(positions) == 0 {
		return nil
	}
	sort.Ints(positions)

	out := make([]domain.LineIndexEntry, len(positions))
	for i, pos := range positions {
		out[i] = ix.entries[pos]
	}
	return out
}

// Lookup returns the entry for code.
func (ix *LineIndex) Lookup(code string) (domain.LineIndexEntry, bool) {
	i, ok := ix.byCode[code]
	if !ok {
		return domain.LineIndexEntry{}, false
	}
	return ix.entries[i], true
}

// Entries returns a copy of all entries in load order.
func (ix *LineIndex) Entries() []domain.LineIndexEntry {
	out := make([]domain.LineIndexEntry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

func (ix *LineIndex) Len() int        { return len(ix.entries) }
func (ix *LineIndex) Margin() float64 { return ix.margin }
