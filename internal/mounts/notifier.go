package mounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
)

// Spawner decides whether a sync watcher should run for a volume. Returning
// false skips the volume without error.
type Spawner func(m Mount) bool

// SyncFunc is the per-volume watcher body. It runs on its own goroutine and
// must return promptly once ctx is cancelled.
type SyncFunc func(ctx context.Context, m Mount)

// ErrNotifierStopped indicates an operation on a notifier that has already
// been stopped.
var ErrNotifierStopped = errors.New("notifier stopped")

// Notifier tracks mounted volumes and owns one sync watcher per mounted
// path. Watchers are cancelled when their volume disappears or on Stop.
type Notifier struct {
	source  Source
	roots   []string
	spawner Spawner
	sync    SyncFunc

	started atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	handles map[string]context.CancelFunc

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewNotifier creates a notifier over the given mount source. roots are the
// directories watched for volumes appearing or disappearing.
func NewNotifier(source Source, roots []string, spawner Spawner, syncFn SyncFunc) *Notifier {
	if spawner == nil {
		spawner = func(Mount) bool { return true }
	}
	if syncFn == nil {
		syncFn = func(ctx context.Context, m Mount) { <-ctx.Done() }
	}
	return &Notifier{
		source:  source,
		roots:   roots,
		spawner: spawner,
		sync:    syncFn,
		handles: make(map[string]context.CancelFunc),
	}
}

// List returns the current mount listing.
func (n *Notifier) List() ([]Mount, error) {
	return n.source.List()
}

// SpawnExisting starts a sync watcher for every volume that is already
// mounted and accepted by the spawner. Devices that are attached but carry
// no mount path are skipped.
func (n *Notifier) SpawnExisting(ctx context.Context) error {
	if n.stopped.Load() {
		return ErrNotifierStopped
	}

	listing, err := n.source.List()
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}

	for _, m := range listing {
		if m.Path == nil {
			log.Printf("mounts: device %s not mounted yet, skipping", m.Device)
			continue
		}
		if !n.spawner(m) {
			continue
		}
		n.spawn(ctx, m)
	}

	return nil
}

// Start begins watching the configured roots for volume changes. A root that
// does not exist is logged and skipped; Start fails only when no root can be
// watched at all (and at least one was configured).
func (n *Notifier) Start(ctx context.Context) error {
	if n.stopped.Load() {
		return ErrNotifierStopped
	}
	if !n.started.CompareAndSwap(false, true) {
		return nil
	}

	if len(n.roots) == 0 {
		// Nothing to watch; List and SpawnExisting remain usable.
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.started.Store(false)
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	watched := 0
	for _, root := range n.roots {
		if err := watcher.Add(root); err != nil {
			log.Printf("mounts: cannot watch root %s: %v", root, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		n.started.Store(false)
		return fmt.Errorf("no watchable roots among %v", n.roots)
	}

	n.watcher = watcher

	n.wg.Add(1)
	go n.watchLoop(ctx, watcher)

	return nil
}

// watchLoop reacts to filesystem events under the watched roots. A created
// directory is a candidate mount point; a removal cancels the watcher bound
// to that path.
func (n *Notifier) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Create):
				n.onPathCreated(ctx, event.Name)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				n.onPathRemoved(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("mounts: watcher error: %v", err)
		}
	}
}

// onPathCreated re-reads the mount table and spawns a watcher when the new
// path turns out to be a mounted volume accepted by the spawner.
func (n *Notifier) onPathCreated(ctx context.Context, path string) {
	listing, err := n.source.List()
	if err != nil {
		log.Printf("mounts: failed to list mounts after create of %s: %v", path, err)
		return
	}

	for _, m := range listing {
		if m.Path == nil || *m.Path != path {
			continue
		}
		log.Printf("mounts: new volume %s (%s) mounted at %s", m.Device, m.Filesystem, path)
		if n.spawner(m) {
			n.spawn(ctx, m)
		}
		return
	}
}

func (n *Notifier) onPathRemoved(path string) {
	n.mu.Lock()
	cancel, ok := n.handles[path]
	if ok {
		delete(n.handles, path)
	}
	n.mu.Unlock()

	if ok {
		log.Printf("mounts: volume at %s removed, stopping watcher", path)
		cancel()
	}
}

// spawn starts the sync watcher for m unless one is already running for its
// path.
func (n *Notifier) spawn(ctx context.Context, m Mount) {
	path := *m.Path

	n.mu.Lock()
	if _, exists := n.handles[path]; exists {
		n.mu.Unlock()
		return
	}
	watcherCtx, cancel := context.WithCancel(ctx)
	n.handles[path] = cancel
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sync(watcherCtx, m)
	}()
}

// ActiveCount returns the number of running sync watchers.
func (n *Notifier) ActiveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handles)
}

// Stop cancels all sync watchers, closes the filesystem watcher, and waits
// for goroutines to exit. The notifier cannot be restarted afterwards.
func (n *Notifier) Stop() {
	if !n.stopped.CompareAndSwap(false, true) {
		return
	}

	n.mu.Lock()
	for path, cancel := range n.handles {
		cancel()
		delete(n.handles, path)
	}
	n.mu.Unlock()

	if n.watcher != nil {
		n.watcher.Close()
	}

	n.wg.Wait()
}
