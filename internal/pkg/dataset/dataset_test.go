package dataset_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

func TestDecodeIndex(t *testing.T) {
	doc := `[
		{"code_ligne":"001000","minLat":48.0,"maxLat":48.2,"minLon":2.0,"maxLon":2.3},
		{"code_ligne":"750000","minLat":43.1,"maxLat":44.9,"minLon":-1.5,"maxLon":1.6}
	]`

	entries, err := dataset.DecodeIndex(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "001000", entries[0].Code)
	assert.Equal(t, 48.2, entries[0].MaxLat)
	assert.Equal(t, "750000", entries[1].Code)
	assert.Equal(t, -1.5, entries[1].MinLon)
}

func TestDecodeIndex_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing code", `[{"minLat":1,"maxLat":2,"minLon":1,"maxLon":2}]`},
		{"inverted lat", `[{"code_ligne":"a","minLat":3,"maxLat":2,"minLon":1,"maxLon":2}]`},
		{"lon out of range", `[{"code_ligne":"a","minLat":1,"maxLat":2,"minLon":1,"maxLon":200}]`},
		{"duplicate code", `[{"code_ligne":"a","minLat":1,"maxLat":2,"minLon":1,"maxLon":2},{"code_ligne":"a","minLat":1,"maxLat":2,"minLon":1,"maxLon":2}]`},
		{"not an array", `{"code_ligne":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dataset.DecodeIndex(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodePoints_KeepsStorageOrder(t *testing.T) {
	doc := `[{"pk":10.2,"lat":48.101,"lon":2.101},{"pk":10.0,"lat":48.10,"lon":2.10}]`

	points, err := dataset.DecodePoints(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 10.2, points[0].PK)
	assert.Equal(t, 10.0, points[1].PK)
}

func TestDecodePoints_Malformed(t *testing.T) {
	_, err := dataset.DecodePoints(strings.NewReader(`[{"pk":1,"lat":95,"lon":2}]`))
	assert.Error(t, err)

	_, err = dataset.DecodePoints(strings.NewReader(`[{"pk":"x"}]`))
	assert.Error(t, err)
}

func TestDecodeCorrections(t *testing.T) {
	doc := `[{"ligne":"750000","pk_start":120.0,"pk_end":121.0,"correction":0.05,"description":"survey offset"}]`

	rules, err := dataset.DecodeCorrections(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "750000", rules[0].Line)
	assert.Equal(t, 0.05, rules[0].Delta)
	assert.Equal(t, "survey offset", rules[0].Description)
}

func TestDecodeCorrections_Empty(t *testing.T) {
	rules, err := dataset.DecodeCorrections(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestDecodeCorrections_InvertedRange(t *testing.T) {
	_, err := dataset.DecodeCorrections(strings.NewReader(`[{"ligne":"a","pk_start":5,"pk_end":4,"correction":1}]`))
	assert.Error(t, err)
}

func TestPointsFile(t *testing.T) {
	assert.Equal(t, "pk_001000.json", dataset.PointsFile("001000"))
	assert.False(t, errors.Is(errors.New("x"), dataset.ErrNotFound))
}
