package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.uber.org/atomic"
)

// Dispatcher routes task completion events back to the callers that
// submitted them, keyed by the executor-assigned task id.
//
// The pending mapping is the only shared state. Submit holds the mutex
// across Send and the pending insert so a completion can never observe an
// id before its resolver is registered; Send is non-blocking by contract,
// which keeps that critical section short and deadlock-free.
type Dispatcher struct {
	executor CommandExecutor
	source   EventSource

	// One-time event subscription guard.
	subscribed atomic.Bool

	mu      sync.Mutex
	pending map[int64]chan Outcome

	sinksMu sync.RWMutex
	sinks   []ViolationSink
}

// Compile-time assertion that Dispatcher satisfies its own submit port.
var _ SubmitPort = (*Dispatcher)(nil)

// SubmitPort is the minimal interface northbound consumers need from the
// dispatcher.
type SubmitPort interface {
	Submit(ctx context.Context, req Request) (*Call, error)
}

// NewDispatcher creates a dispatcher over the given executor and event source.
func NewDispatcher(executor CommandExecutor, source EventSource) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		source:   source,
		pending:  make(map[int64]chan Outcome),
	}
}

// AddViolationSink registers an observer for protocol violations.
func (d *Dispatcher) AddViolationSink(sink ViolationSink) {
	if sink == nil {
		return
	}
	d.sinksMu.Lock()
	d.sinks = append(d.sinks, sink)
	d.sinksMu.Unlock()
}

// Subscribe registers the completion listener on the event source. It is
// idempotent: only the first call registers; later calls return immediately.
// Callers must Subscribe before the first Submit, or completions emitted in
// between are flagged as protocol violations and dropped.
func (d *Dispatcher) Subscribe(ctx context.Context) error {
	if !d.subscribed.CompareAndSwap(false, true) {
		return nil
	}

	if err := d.source.SubscribeTaskResults(ctx, d.route); err != nil {
		// Release the guard so a later call can retry.
		d.subscribed.Store(false)
		return fmt.Errorf("failed to subscribe to task results: %w", err)
	}

	return nil
}

// Submit forwards the request to the executor and returns a Call that
// settles when the matching completion event arrives.
//
// Exactly one of the following happens: Submit returns the executor's send
// error and no pending entry exists, or Submit returns a Call whose Wait
// delivers the task outcome exactly once.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*Call, error) {
	if !req.Op.Valid() {
		return nil, ErrUnknownOperation
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.executor.Send(ctx, req)
	if err != nil {
		// Send failure: the error propagates verbatim, nothing is pending.
		return nil, err
	}

	// Buffered so route never blocks on delivery.
	ch := make(chan Outcome, 1)
	d.pending[id] = ch

	return &Call{ID: id, outcome: ch}, nil
}

// InitSpawn submits the one-time backend initialization task.
func (d *Dispatcher) InitSpawn(ctx context.Context) (*Call, error) {
	return d.Submit(ctx, Request{Op: OpInitSpawn})
}

// ListMounts submits a mount listing task.
func (d *Dispatcher) ListMounts(ctx context.Context) (*Call, error) {
	return d.Submit(ctx, Request{Op: OpListMounts})
}

// PendingCount returns the number of in-flight entries.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// route is the completion listener. A completion with no pending entry is a
// protocol violation: it is surfaced to the violation sinks and dropped. A
// fault while routing one completion must not prevent delivery of the next,
// so route never lets a panic escape into the event source.
func (d *Dispatcher) route(res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.recordViolation(res.ID, fmt.Sprintf("panic while routing completion: %v", r))
		}
	}()

	d.mu.Lock()
	ch, ok := d.pending[res.ID]
	if ok {
		// Removed before delivery so a duplicate completion for the same id
		// is flagged instead of resolved twice.
		delete(d.pending, res.ID)
	}
	d.mu.Unlock()

	if !ok {
		d.recordViolation(res.ID, "completion for unknown task id")
		return
	}

	ch <- res.Outcome
}

func (d *Dispatcher) recordViolation(taskID int64, reason string) {
	log.Printf("dispatch: protocol violation for task %d: %s", taskID, reason)

	d.sinksMu.RLock()
	sinks := make([]ViolationSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.sinksMu.RUnlock()

	for _, sink := range sinks {
		sink.RecordViolation(taskID, reason)
	}
}

// Call is the caller's handle for one in-flight task.
type Call struct {
	// ID is the executor-assigned task id.
	ID int64

	outcome <-chan Outcome
}

// Wait blocks until the task's completion event arrives or ctx is done.
// Cancelling the context abandons the wait only; the entry is still
// resolved when its completion eventually arrives, and the outcome is
// discarded with the Call.
func (c *Call) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case o := <-c.outcome:
		return o, nil
	}
}

// Done exposes the resolver channel for callers that select over it.
func (c *Call) Done() <-chan Outcome {
	return c.outcome
}
