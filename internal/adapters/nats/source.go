package natsadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/fixcodec"
)

// FixSubject carries sample JSON from a device.
func FixSubject(device string) string { return "pklocator.fix." + device }

// FixErrorSubject carries source failures reported by a device.
func FixErrorSubject(device string) string { return "pklocator.fix_error." + device }

// CadenceSubject is where the desired reporting interval is sent back.
func CadenceSubject(device string) string { return "pklocator.cadence." + device }

var errStarted = errors.New("nats fix source already started")

// FixSource implements ports.LocationSource and ports.CadenceController over
// plain NATS subjects. A timeout error is reported when no fix arrives within
// fixTimeout. Each fix re-arms the watchdog, so every silence longer than
// fixTimeout is reported once.
type FixSource struct {
	conn       *nats.Conn
	device     string
	fixTimeout time.Duration
	now        func() time.Time

	mu       sync.Mutex
	subs     []*nats.Subscription
	watchdog *time.Timer
	interval time.Duration
}

// NewFixSource listens for one device's fixes on conn.
func NewFixSource(conn *nats.Conn, device string, fixTimeout time.Duration) *FixSource {
	return &FixSource{conn: conn, device: device, fixTimeout: fixTimeout, now: time.Now}
}

func (s *FixSource) Start(ctx context.Context, sink ports.LocationSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil {
		return errStarted
	}

	fixSub, err := s.conn.Subscribe(FixSubject(s.device), func(msg *nats.Msg) {
		sample, err := fixcodec.DecodeSample(msg.Data, s.device, s.now())
		if err != nil {
			slog.Warn("dropping fix", "subject", msg.Subject, "error", err)
			return
		}
		s.kick()
		sink.OnSample(ctx, sample)
	})
	if err != nil {
		return fmt.Errorf("subscribe fixes: %w", err)
	}

	errSub, err := s.conn.Subscribe(FixErrorSubject(s.device), func(msg *nats.Msg) {
		locErr, err := fixcodec.DecodeError(msg.Data, s.device)
		if err != nil {
			slog.Warn("dropping fix error", "subject", msg.Subject, "error", err)
			return
		}
		sink.OnError(ctx, locErr)
	})
	if err != nil {
		_ = fixSub.Unsubscribe()
		return fmt.Errorf("subscribe fix errors: %w", err)
	}

	s.subs = []*nats.Subscription{fixSub, errSub}
	if s.fixTimeout > 0 {
		s.watchdog = time.AfterFunc(s.fixTimeout, func() {
			sink.OnError(ctx, &domain.LocationError{
				DeviceID: s.device,
				Code:     domain.ErrCodeTimeout,
				Message:  fmt.Sprintf("no fix within %s", s.fixTimeout),
			})
		})
	}
	slog.Info("nats fix source started", "device", s.device, "subject", FixSubject(s.device))
	return nil
}

// kick pushes the watchdog deadline back after a fix.
func (s *FixSource) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Reset(s.fixTimeout)
	}
}

func (s *FixSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

// SetInterval publishes a cadence hint for the device.
func (s *FixSource) SetInterval(_ context.Context, interval time.Duration) error {
	data, err := fixcodec.EncodeCadence(s.device, interval)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(CadenceSubject(s.device), data); err != nil {
		return fmt.Errorf("publish cadence: %w", err)
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	return nil
}

// Interval returns the last cadence sent to the device.
func (s *FixSource) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
