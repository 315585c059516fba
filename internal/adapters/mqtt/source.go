// Package mqttadapter delivers GPS fixes published by devices over MQTT.
package mqttadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/fixcodec"
)

const waitTimeout = 5 * time.Second

// FixTopic carries sample JSON from a device.
func FixTopic(device string) string { return "pklocator/" + device + "/fix" }

// ErrorTopic carries source failures reported by a device.
func ErrorTopic(device string) string { return "pklocator/" + device + "/error" }

// CadenceTopic receives the desired reporting interval (retained).
func CadenceTopic(device string) string { return "pklocator/" + device + "/cadence" }

// Client is the part of mqtt.Client the source uses.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a broker connection with automatic reconnects.
func Connect(broker, clientID, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	if username != "" {
		opts.SetUsername(username).SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(waitTimeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", waitTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// Source implements ports.LocationSource and ports.CadenceController.
type Source struct {
	client     Client
	device     string
	qos        byte
	fixTimeout time.Duration
	now        func() time.Time

	mu       sync.Mutex
	started  bool
	watchdog *time.Timer
}

// NewSource listens for one device's fixes. A timeout error is reported for
// every silence longer than fixTimeout; a fix re-arms the watchdog.
// fixTimeout <= 0 disables it.
func NewSource(client Client, device string, qos byte, fixTimeout time.Duration) *Source {
	return &Source{client: client, device: device, qos: qos, fixTimeout: fixTimeout, now: time.Now}
}

func (s *Source) Start(ctx context.Context, sink ports.LocationSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("mqtt source already started")
	}

	if err := wait(s.client.Subscribe(FixTopic(s.device), s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := fixcodec.DecodeSample(msg.Payload(), s.device, s.now())
		if err != nil {
			slog.Warn("dropping fix", "topic", msg.Topic(), "error", err)
			return
		}
		s.kick()
		sink.OnSample(ctx, sample)
	})); err != nil {
		return fmt.Errorf("subscribe %s: %w", FixTopic(s.device), err)
	}

	if err := wait(s.client.Subscribe(ErrorTopic(s.device), s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		locErr, err := fixcodec.DecodeError(msg.Payload(), s.device)
		if err != nil {
			slog.Warn("dropping fix error", "topic", msg.Topic(), "error", err)
			return
		}
		sink.OnError(ctx, locErr)
	})); err != nil {
		_ = wait(s.client.Unsubscribe(FixTopic(s.device)))
		return fmt.Errorf("subscribe %s: %w", ErrorTopic(s.device), err)
	}

	s.started = true
	if s.fixTimeout > 0 {
		s.watchdog = time.AfterFunc(s.fixTimeout, func() {
			sink.OnError(ctx, &domain.LocationError{
				DeviceID: s.device,
				Code:     domain.ErrCodeTimeout,
				Message:  fmt.Sprintf("no fix within %s", s.fixTimeout),
			})
		})
	}
	slog.Info("mqtt fix source started", "device", s.device, "topic", FixTopic(s.device))
	return nil
}

func (s *Source) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Reset(s.fixTimeout)
	}
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if !s.started {
		return nil
	}
	s.started = false
	return wait(s.client.Unsubscribe(FixTopic(s.device), ErrorTopic(s.device)))
}

// SetInterval publishes a retained cadence hint so the device picks it up on
// reconnect too.
func (s *Source) SetInterval(_ context.Context, interval time.Duration) error {
	data, err := fixcodec.EncodeCadence(s.device, interval)
	if err != nil {
		return err
	}
	if err := wait(s.client.Publish(CadenceTopic(s.device), s.qos, true, data)); err != nil {
		return fmt.Errorf("publish cadence: %w", err)
	}
	return nil
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(waitTimeout) {
		return fmt.Errorf("timed out after %s", waitTimeout)
	}
	return token.Error()
}
