// Package task implements the backend task executor for the Volume Sync
// Container.
//
// The Runner assigns monotonically increasing task ids, queues work on a
// bounded channel, and executes it on a single worker goroutine so
// completion events are published in submission order.
package task
