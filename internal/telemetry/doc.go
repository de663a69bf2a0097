// Package telemetry implements the event hub for the Volume Sync Container.
//
// The hub delivers task completion events synchronously to in-process
// subscribers and fans them out to SSE clients, buffering the last N events
// for reconnection support using Last-Event-ID headers.
package telemetry
