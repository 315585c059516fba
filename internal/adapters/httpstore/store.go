package httpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/pklocator/internal/core/domain"
	"github.com/samirrijal/pklocator/internal/pkg/dataset"
)

const defaultTimeout = 10 * time.Second

// Store fetches the locator dataset over HTTP from a base URL laid out like
// the data directory.
type Store struct {
	base    string
	client  *fasthttp.Client
	timeout time.Duration
}

// New creates a store for baseURL.
func New(baseURL string, timeout time.Duration) *Store {
	return NewWithClient(baseURL, &fasthttp.Client{
		Name:                "pklocator",
		MaxConnsPerHost:     16,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: time.Minute,
	}, timeout)
}

// NewWithClient creates a store using client.
func NewWithClient(baseURL string, client *fasthttp.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{base: strings.TrimRight(baseURL, "/"), client: client, timeout: timeout}
}

func (s *Store) LoadIndex(ctx context.Context) ([]domain.LineIndexEntry, error) {
	body, err := s.get(ctx, dataset.IndexFile)
	if err != nil {
		return nil, err
	}
	return dataset.DecodeIndex(bytes.NewReader(body))
}

func (s *Store) LoadLinePoints(ctx context.Context, code string) ([]domain.PKPoint, error) {
	body, err := s.get(ctx, dataset.PointsFile(url.PathEscape(code)))
	if err != nil {
		return nil, err
	}
	return dataset.DecodePoints(bytes.NewReader(body))
}

// LoadCorrections treats a 404 as an empty rule set.
func (s *Store) LoadCorrections(ctx context.Context) ([]domain.CorrectionRule, error) {
	body, err := s.get(ctx, dataset.CorrectionsFile)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dataset.DecodeCorrections(bytes.NewReader(body))
}

func (s *Store) get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.base + "/" + name)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusOK:
		return append([]byte(nil), resp.Body()...), nil
	case code == fasthttp.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, dataset.ErrNotFound)
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", name, code)
	}
}
