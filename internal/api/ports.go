package api

import (
	"context"
	"net/http"

	"github.com/volume-sync/vsc/internal/dispatch"
)

// SubmitPort is the dispatcher seam the API submits tasks through.
type SubmitPort interface {
	Submit(ctx context.Context, req dispatch.Request) (*dispatch.Call, error)
}

// TelemetryPort is the event hub seam for SSE subscriptions.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// StatusPort exposes executor state for the health endpoint.
type StatusPort interface {
	Initialized() bool
	QueueDepth() int
}
