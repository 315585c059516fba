package replay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/adapters/replay"
	"github.com/samirrijal/pklocator/internal/core/domain"
)

const track = `# morning run
{"latitude":48.1000,"longitude":2.1000,"timestamp":"2024-03-01T08:00:00Z"}
{"latitude":48.1010,"longitude":2.1010}

not json
{"code":"position_unavailable","message":"tunnel"}
{"latitude":95,"longitude":2.1}
`

type recordingSink struct {
	mu      sync.Mutex
	samples []domain.LocationSample
	errs    []*domain.LocationError
}

func (r *recordingSink) OnSample(_ context.Context, s domain.LocationSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingSink) OnError(_ context.Context, e *domain.LocationError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples), len(r.errs)
}

func fsWith(body string) fstest.MapFS {
	return fstest.MapFS{"track.jsonl": {Data: []byte(body)}}
}

func TestReplay_PlaysRecordsInOrder(t *testing.T) {
	src := replay.New(fsWith(track), "track.jsonl", "cab-1", time.Millisecond, false)
	sink := &recordingSink{}
	require.NoError(t, src.Start(context.Background(), sink))
	defer src.Stop()

	assert.Eventually(t, func() bool {
		s, e := sink.counts()
		return s == 2 && e == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "cab-1", sink.samples[0].DeviceID)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), sink.samples[0].Timestamp)
	assert.False(t, sink.samples[1].Timestamp.IsZero())
	assert.Equal(t, domain.ErrCodePositionUnavailable, sink.errs[0].Code)
	assert.Equal(t, "tunnel", sink.errs[0].Message)
}

func TestReplay_Loops(t *testing.T) {
	src := replay.New(fsWith(`{"latitude":1,"longitude":2}`), "track.jsonl", "", time.Millisecond, true)
	sink := &recordingSink{}
	require.NoError(t, src.Start(context.Background(), sink))

	assert.Eventually(t, func() bool {
		s, _ := sink.counts()
		return s >= 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, src.Stop())

	after, _ := sink.counts()
	time.Sleep(20 * time.Millisecond)
	stopped, _ := sink.counts()
	assert.Equal(t, after, stopped, "no records after Stop")
}

func TestReplay_EmptyTrack(t *testing.T) {
	src := replay.New(fsWith("# nothing\n\n"), "track.jsonl", "", time.Millisecond, false)
	err := src.Start(context.Background(), &recordingSink{})
	assert.True(t, errors.Is(err, replay.ErrEmpty))
}

func TestReplay_MissingFile(t *testing.T) {
	src := replay.New(fstest.MapFS{}, "track.jsonl", "", time.Millisecond, false)
	assert.Error(t, src.Start(context.Background(), &recordingSink{}))
}

func TestReplay_StartTwiceAndRestart(t *testing.T) {
	src := replay.New(fsWith(`{"latitude":1,"longitude":2}`), "track.jsonl", "", time.Hour, true)
	require.NoError(t, src.Start(context.Background(), &recordingSink{}))
	assert.Error(t, src.Start(context.Background(), &recordingSink{}))

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	require.NoError(t, src.Start(context.Background(), &recordingSink{}))
	require.NoError(t, src.Stop())
}

func TestReplay_SetInterval(t *testing.T) {
	src := replay.New(fsWith(`{"latitude":1,"longitude":2}`), "track.jsonl", "", time.Second, false)
	assert.Equal(t, time.Second, src.Interval())

	require.NoError(t, src.SetInterval(context.Background(), 500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, src.Interval())
	assert.Error(t, src.SetInterval(context.Background(), 0))
}

func TestReplay_StopOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := replay.New(fsWith(`{"latitude":1,"longitude":2}`), "track.jsonl", "", time.Hour, true)
	sink := &recordingSink{}
	require.NoError(t, src.Start(ctx, sink))

	assert.Eventually(t, func() bool {
		s, _ := sink.counts()
		return s == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, src.Stop())
}
