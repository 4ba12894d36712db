package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a project or job does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRunning is returned when a project already has an active run.
	ErrAlreadyRunning = errors.New("run already active")
)

// CollectorFailure wraps an error raised while a collector was producing
// profiles. It is scoped to one platform and never ends a run.
type CollectorFailure struct {
	Platform string
	Err      error
}

func (e *CollectorFailure) Error() string {
	return fmt.Sprintf("collector %s: %v", e.Platform, e.Err)
}

func (e *CollectorFailure) Unwrap() error {
	return e.Err
}

// StoreFailure wraps a persistence error. It ends the run it occurred in.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a page fetch that completed with a non-2xx status.
type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Permanent reports whether repeating the request cannot help. Client errors
// are permanent except request timeouts and rate limiting.
func (e *HTTPStatusError) Permanent() bool {
	switch {
	case e.Code == 408, e.Code == 429:
		return false
	case e.Code >= 400 && e.Code < 500:
		return true
	default:
		return false
	}
}
