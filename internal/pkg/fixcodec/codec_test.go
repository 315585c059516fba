package fixcodec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/fixcodec"
)

var now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestDecodeSample(t *testing.T) {
	s, err := fixcodec.DecodeSample([]byte(`{
		"latitude": 48.1005, "longitude": 2.1005, "accuracy": 12.5, "speed": 22.2,
		"timestamp": "2024-03-01T07:59:59Z"
	}`), "cab-1", now)
	require.NoError(t, err)

	assert.Equal(t, "cab-1", s.DeviceID)
	assert.Equal(t, 48.1005, s.Latitude)
	require.NotNil(t, s.Accuracy)
	assert.Equal(t, 12.5, *s.Accuracy)
	require.NotNil(t, s.NativeSpeed)
	assert.Equal(t, 22.2, *s.NativeSpeed)
	assert.Equal(t, now.Add(-time.Second), s.Timestamp)
}

func TestDecodeSample_Defaults(t *testing.T) {
	s, err := fixcodec.DecodeSample([]byte(`{"device_id":"cab-9","latitude":1,"longitude":2}`), "cab-1", now)
	require.NoError(t, err)

	assert.Equal(t, "cab-9", s.DeviceID)
	assert.Equal(t, now, s.Timestamp)
	assert.Nil(t, s.Accuracy)
	assert.Nil(t, s.NativeSpeed)
}

func TestDecodeSample_Invalid(t *testing.T) {
	for _, doc := range []string{
		`{"latitude":91,"longitude":2}`,
		`{"latitude":1,"longitude":-181}`,
		`{"latitude":1,"longitude":2,"accuracy":-3}`,
		`not json`,
	} {
		_, err := fixcodec.DecodeSample([]byte(doc), "", now)
		assert.Error(t, err, doc)
	}
}

func TestDecodeError(t *testing.T) {
	e, err := fixcodec.DecodeError([]byte(`{"code":"permission_denied","message":"user said no"}`), "cab-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrCodePermissionDenied, e.Code)
	assert.Equal(t, "cab-1", e.DeviceID)
	assert.Equal(t, domain.StatusPermissionDenied, e.Status())

	e, err = fixcodec.DecodeError([]byte(`{"code":"gps_on_fire"}`), "cab-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrCodeOther, e.Code)
	assert.Equal(t, domain.StatusError, e.Status())
}

func TestEncodeCadence(t *testing.T) {
	data, err := fixcodec.EncodeCadence("cab-1", 500*time.Millisecond)
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":"cab-1","interval_ms":500}`, string(data))
}
