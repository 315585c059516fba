package mqttadapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/core/domain"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	published    []published
	subErr       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return doneToken{err: c.subErr}
	}
	c.handlers[topic] = cb
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(nil, fakeMessage{topic: topic, payload: []byte(payload)})
	}
}

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

func (r *recordingSink) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestSource_DeliversFixesAndErrors(t *testing.T) {
	client := newFakeClient()
	src := NewSource(client, "cab-1", 1, 0)
	sink := &recordingSink{}
	require.NoError(t, src.Start(context.Background(), sink))

	client.deliver(FixTopic("cab-1"), `{"latitude":48.1,"longitude":2.1,"speed":10}`)
	client.deliver(FixTopic("cab-1"), `{"latitude":123,"longitude":2.1}`)
	client.deliver(ErrorTopic("cab-1"), `{"code":"permission_denied"}`)

	require.Len(t, sink.samples, 1)
	assert.Equal(t, "cab-1", sink.samples[0].DeviceID)
	assert.False(t, sink.samples[0].Timestamp.IsZero())
	require.Len(t, sink.errs, 1)
	assert.Equal(t, domain.ErrCodePermissionDenied, sink.errs[0].Code)

	require.NoError(t, src.Stop())
	assert.ElementsMatch(t, []string{FixTopic("cab-1"), ErrorTopic("cab-1")}, client.unsubscribed)

	client.deliver(FixTopic("cab-1"), `{"latitude":48.1,"longitude":2.1}`)
	assert.Len(t, sink.samples, 1)
}

func TestSource_StartTwice(t *testing.T) {
	src := NewSource(newFakeClient(), "cab-1", 1, 0)
	require.NoError(t, src.Start(context.Background(), &recordingSink{}))
	assert.Error(t, src.Start(context.Background(), &recordingSink{}))
}

func TestSource_SubscribeFailure(t *testing.T) {
	client := newFakeClient()
	client.subErr = errors.New("not authorized")
	src := NewSource(client, "cab-1", 1, 0)

	err := src.Start(context.Background(), &recordingSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.NoError(t, src.Stop())
}

func TestSource_WatchdogReportsTimeout(t *testing.T) {
	src := NewSource(newFakeClient(), "cab-1", 1, 30*time.Millisecond)
	sink := &recordingSink{}
	require.NoError(t, src.Start(context.Background(), sink))
	defer src.Stop()

	assert.Eventually(t, func() bool { return sink.errCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ErrCodeTimeout, sink.errs[0].Code)
}

func TestSource_WatchdogRearmsAfterFix(t *testing.T) {
	client := newFakeClient()
	src := NewSource(client, "cab-1", 1, 30*time.Millisecond)
	sink := &recordingSink{}
	require.NoError(t, src.Start(context.Background(), sink))
	defer src.Stop()

	require.Eventually(t, func() bool { return sink.errCount() == 1 }, time.Second, 5*time.Millisecond)

	// The feed comes back, then goes silent again.
	client.deliver(FixTopic("cab-1"), `{"latitude":48.1,"longitude":2.1}`)
	require.Eventually(t, func() bool { return sink.errCount() == 2 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.samples, 1)
	assert.Equal(t, domain.ErrCodeTimeout, sink.errs[1].Code)
}

func TestSource_SetIntervalPublishesRetainedHint(t *testing.T) {
	client := newFakeClient()
	src := NewSource(client, "cab-1", 1, 0)

	require.NoError(t, src.SetInterval(context.Background(), 500*time.Millisecond))
	require.Len(t, client.published, 1)
	assert.Equal(t, CadenceTopic("cab-1"), client.published[0].topic)
	assert.True(t, client.published[0].retained)
	assert.JSONEq(t, `{"device_id":"cab-1","interval_ms":500}`, string(client.published[0].payload))
}
