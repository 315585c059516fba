package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pklocator/internal/core/usecases"
)

// Pinger is a backing service that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers. Everything except
// Locator is optional.
type Dependencies struct {
	Locator *usecases.LocatorService
	NATS    *nats.Conn
	DB      Pinger
	Cache   Pinger

	// SpecPath overrides DefaultSpecPath.
	SpecPath string
}
