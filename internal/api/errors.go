package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/volume-sync/vsc/internal/dispatch"
	"github.com/volume-sync/vsc/internal/task"
)

// statusAndCode maps submission errors to an HTTP status and envelope code.
//
// BUSY and UNAVAILABLE come from the executor and mean the caller should
// retry with backoff. UNKNOWN_OPERATION is a caller mistake.
func statusAndCode(err error) (int, string, string) {
	switch {
	case errors.Is(err, task.ErrBusy):
		return http.StatusServiceUnavailable, "BUSY", "Task queue full, retry with backoff"
	case errors.Is(err, task.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "Executor not available"
	case errors.Is(err, dispatch.ErrUnknownOperation):
		return http.StatusBadRequest, "INVALID_PARAMETER", "Unknown operation"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Task did not complete in time"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
}
