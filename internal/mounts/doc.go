// Package mounts implements volume tracking for the Volume Sync Container.
//
// It reads the mount table for (filesystem, device, path) triples and runs a
// notifier that reacts to volumes appearing under the watched roots by
// spawning per-volume sync watchers.
package mounts
