// Package audit implements the audit logger for the Volume Sync Container.
//
// The audit logger provides append-only JSON-lines records of task
// submissions, completions, and protocol violations, with size and age
// based rotation.
package audit
