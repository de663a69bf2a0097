// Package api implements the HTTP surface of the Volume Sync Container.
//
// Task submissions arrive as POST /api/v1/tasks, are routed through the
// dispatcher, and the response is held open until the matching completion
// event settles the call or the per-operation timeout fires. Completion
// events are also streamed to SSE clients on /api/v1/events.
package api
