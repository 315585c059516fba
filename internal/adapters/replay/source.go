// Package replay plays a recorded JSON-lines track back as a location source.
// Each line is either a fix or, when it carries a "code" field, a source
// error.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/core/ports"
	"github.com/samirrijal/pklocator/internal/pkg/fixcodec"
)

// ErrEmpty is returned by Start when the track holds no usable record.
var ErrEmpty = errors.New("replay: no records")

type record struct {
	sample *domain.LocationSample
	err    *domain.LocationError
}

// Source implements ports.LocationSource and ports.CadenceController.
// SetInterval re-paces playback from the next record on.
type Source struct {
	fsys   fs.FS
	name   string
	device string
	loop   bool
	now    func() time.Time

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// New replays name from fsys, one record per interval.
func New(fsys fs.FS, name, device string, interval time.Duration, loop bool) *Source {
	if interval <= 0 {
		interval = time.Second
	}
	return &Source{fsys: fsys, name: name, device: device, interval: interval, loop: loop, now: time.Now}
}

// Open replays the file at path.
func Open(path, device string, interval time.Duration, loop bool) *Source {
	return New(os.DirFS(filepath.Dir(path)), filepath.Base(path), device, interval, loop)
}

func (s *Source) Start(ctx context.Context, sink ports.LocationSink) error {
	records, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("replay already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.play(runCtx, sink, records, s.done)

	slog.Info("replay started", "file", s.name, "records", len(records), "loop", s.loop)
	return nil
}

func (s *Source) load() ([]record, error) {
	f, err := s.fsys.Open(s.name)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", s.name, err)
	}
	defer f.Close()

	var records []record
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		rec, err := s.decode(raw)
		if err != nil {
			slog.Warn("skipping replay record", "file", s.name, "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay %s: %w", s.name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmpty, s.name)
	}
	return records, nil
}

func (s *Source) decode(raw []byte) (record, error) {
	var probe struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return record{}, err
	}
	if probe.Code != "" {
		e, err := fixcodec.DecodeError(raw, s.device)
		return record{err: e}, err
	}
	// Timestamps are assigned at playback when the record has none.
	sample, err := fixcodec.DecodeSample(raw, s.device, time.Time{})
	return record{sample: &sample}, err
}

func (s *Source) play(ctx context.Context, sink ports.LocationSink, records []record, done chan struct{}) {
	defer close(done)
	for i := 0; ; {
		rec := records[i]
		if rec.err != nil {
			sink.OnError(ctx, rec.err)
		} else {
			sample := *rec.sample
			if sample.Timestamp.IsZero() {
				sample.Timestamp = s.now()
			}
			sink.OnSample(ctx, sample)
		}

		i++
		if i == len(records) {
			if !s.loop {
				slog.Info("replay finished", "file", s.name)
				return
			}
			i = 0
		}

		timer := time.NewTimer(s.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (s *Source) SetInterval(_ context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("replay interval must be positive, got %s", interval)
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	return nil
}

// Interval returns the current playback pace.
func (s *Source) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
