package usecases

import "errors"

var (
	// ErrBootstrap wraps failures to load the line index.
	ErrBootstrap = errors.New("locator bootstrap failed")
	// ErrNotReady is returned before a successful Bootstrap.
	ErrNotReady = errors.New("locator not bootstrapped")
	// ErrSuperseded is returned for a sample whose result was dropped because
	// a newer sample started processing.
	ErrSuperseded = errors.New("sample superseded by a newer fix")
)
