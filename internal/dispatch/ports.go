package dispatch

import "context"

// CommandExecutor is the southbound port the router submits requests to.
type CommandExecutor interface {
	// Send forwards a request to the backend and returns the assigned task
	// id. Send must not block: a saturated backend rejects with its BUSY
	// error instead of queueing the caller. A send failure means no
	// completion event will ever be emitted for the request.
	Send(ctx context.Context, req Request) (int64, error)
}

// EventSource is the completion channel the router listens on.
type EventSource interface {
	// SubscribeTaskResults registers handler for every future completion
	// event. Events are delivered one at a time, in source order. The
	// router calls this at most once per instance.
	SubscribeTaskResults(ctx context.Context, handler func(Result)) error
}

// ViolationSink receives protocol violations: completion events whose id has
// no pending entry (late, duplicate, or unknown), or faults raised while
// routing a completion. Violations are diagnostics, never caller errors.
type ViolationSink interface {
	RecordViolation(taskID int64, reason string)
}
