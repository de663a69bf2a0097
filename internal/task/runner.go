package task

import (
	"context"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/volume-sync/vsc/internal/dispatch"
	"github.com/volume-sync/vsc/internal/mounts"
)

// Publisher is where the runner emits completion events.
type Publisher interface {
	PublishTaskResult(res dispatch.Result) error
}

// Observer receives task lifecycle notifications for audit and metrics.
type Observer interface {
	TaskSubmitted(id int64, op dispatch.Operation)
	TaskCompleted(id int64, op dispatch.Operation, ok bool, elapsed time.Duration)
}

// job is one queued unit of work.
type job struct {
	id  int64
	req dispatch.Request
}

// Runner executes backend tasks. It satisfies the dispatcher's executor
// port: Send assigns an id and enqueues without blocking, and a single
// worker drains the queue in order, publishing one completion event per
// accepted task.
type Runner struct {
	publisher Publisher
	notifier  *mounts.Notifier
	observers []Observer

	// Monotonic task id counter.
	nextID atomic.Int64

	// Serializes Send's admission (running check + enqueue) with
	// shutdown's final drain, so a send accepted under running=true is
	// always visible to the drain.
	sendMu sync.Mutex
	queue  chan job

	running atomic.Bool
	stopped atomic.Bool

	// One-time initialization guard for initSpawn.
	initialized atomic.Bool

	done chan struct{}
}

// Compile-time assertion that Runner is a dispatch command executor.
var _ dispatch.CommandExecutor = (*Runner)(nil)

// NewRunner creates a runner with the given queue capacity.
func NewRunner(publisher Publisher, notifier *mounts.Notifier, queueCapacity int) *Runner {
	if queueCapacity <= 0 {
		queueCapacity = 1
	}
	return &Runner{
		publisher: publisher,
		notifier:  notifier,
		queue:     make(chan job, queueCapacity),
		done:      make(chan struct{}),
	}
}

// AddObserver registers a lifecycle observer. Not safe to call after Run.
func (r *Runner) AddObserver(obs Observer) {
	if obs != nil {
		r.observers = append(r.observers, obs)
	}
}

// Send assigns the next task id and enqueues the request. It never blocks:
// a full queue returns ErrBusy, and a runner that is not running returns
// ErrUnavailable. On error no id is consumed from the caller's point of
// view and no completion event will be published.
func (r *Runner) Send(ctx context.Context, req dispatch.Request) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if r.stopped.Load() || !r.running.Load() {
		return 0, ErrUnavailable
	}

	// Admission is serialized by sendMu and the worker only drains, so a
	// capacity check here guarantees the enqueue below cannot block.
	if len(r.queue) == cap(r.queue) {
		return 0, ErrBusy
	}

	id := r.nextID.Inc()

	// Observers hear about the submission before the worker can see the
	// job, keeping submitted before completed in the audit trail.
	for _, obs := range r.observers {
		obs.TaskSubmitted(id, req.Op)
	}

	r.queue <- job{id: id, req: req}

	return id, nil
}

// Run starts the worker loop and blocks until ctx is cancelled or Stop is
// called. Tasks already queued when shutdown begins are drained and
// completed so every accepted Send still gets its event.
func (r *Runner) Run(ctx context.Context) error {
	if r.stopped.Load() {
		return ErrUnavailable
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrUnavailable
	}

	log.Printf("task: runner started, queue capacity %d", cap(r.queue))

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return ctx.Err()
		case <-r.done:
			r.shutdown(ctx)
			return nil
		case j := <-r.queue:
			r.execute(ctx, j)
		}
	}
}

// shutdown drains queued jobs before the worker exits. Flipping running
// under sendMu closes the admission window first, so the drain observes
// every job a successful Send ever enqueued.
func (r *Runner) shutdown(ctx context.Context) {
	r.sendMu.Lock()
	r.running.Store(false)
	r.sendMu.Unlock()

	for {
		select {
		case j := <-r.queue:
			r.execute(ctx, j)
		default:
			log.Printf("task: runner stopped")
			return
		}
	}
}

// Stop asks the worker to exit. Safe to call more than once.
func (r *Runner) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		close(r.done)
	}
}

// execute runs one job and publishes its completion event. A panic inside a
// task body becomes a domain error outcome, and a panic anywhere on the
// completion path (observers, publisher) is contained so it cannot kill
// the worker and strand queued tasks.
func (r *Runner) execute(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("task: panic while completing task %d (%s): %v", j.id, j.req.Op, rec)
		}
	}()

	start := time.Now()

	var outcome dispatch.Outcome
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("task: panic in task %d (%s): %v", j.id, j.req.Op, rec)
				outcome = dispatch.ErrOutcome("internal error")
			}
		}()
		outcome = r.perform(ctx, j.req)
	}()

	elapsed := time.Since(start)
	for _, obs := range r.observers {
		obs.TaskCompleted(j.id, j.req.Op, outcome.OK, elapsed)
	}

	res := dispatch.Result{ID: j.id, Outcome: outcome}
	if err := r.publisher.PublishTaskResult(res); err != nil {
		log.Printf("task: failed to publish result for task %d: %v", j.id, err)
	}
}

// perform dispatches on the operation tag. Unknown operations are rejected
// upstream, but a defensive branch keeps the worker total.
func (r *Runner) perform(ctx context.Context, req dispatch.Request) dispatch.Outcome {
	switch req.Op {
	case dispatch.OpInitSpawn:
		return r.initSpawn(ctx)
	case dispatch.OpListMounts:
		return r.listMounts()
	default:
		return dispatch.ErrOutcome(dispatch.ErrUnknownOperation.Error())
	}
}

// initSpawn performs one-time backend initialization: spawn sync watchers
// for volumes already mounted, then start the mount notifier. A second call
// fails with a domain error; a failed first call releases the guard so
// initialization can be retried.
func (r *Runner) initSpawn(ctx context.Context) dispatch.Outcome {
	if !r.initialized.CompareAndSwap(false, true) {
		return dispatch.ErrOutcome("already initialized")
	}

	if err := r.notifier.SpawnExisting(ctx); err != nil {
		r.initialized.Store(false)
		return dispatch.ErrOutcome(err.Error())
	}
	if err := r.notifier.Start(ctx); err != nil {
		r.initialized.Store(false)
		return dispatch.ErrOutcome(err.Error())
	}

	log.Printf("task: initialization complete, %d watchers active", r.notifier.ActiveCount())
	return dispatch.OkOutcome(nil)
}

// listMounts returns the current mount listing.
func (r *Runner) listMounts() dispatch.Outcome {
	listing, err := r.notifier.List()
	if err != nil {
		return dispatch.ErrOutcome(err.Error())
	}
	return dispatch.OkOutcome(listing)
}

// Initialized reports whether initSpawn has completed successfully.
func (r *Runner) Initialized() bool {
	return r.initialized.Load()
}

// QueueDepth returns the number of queued, not yet executed tasks.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}
