package task

import "errors"

// Normalized executor errors. The API layer maps these onto HTTP statuses.
var (
	// ErrBusy indicates the task queue is full. Retry later.
	ErrBusy = errors.New("BUSY")

	// ErrUnavailable indicates the runner is not accepting work (not yet
	// running, or already stopped).
	ErrUnavailable = errors.New("UNAVAILABLE")
)
