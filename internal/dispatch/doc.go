// Package dispatch implements the task response router for the Volume Sync Container.
//
// The router submits operations to the command executor, records the assigned
// task id against a one-shot resolver, and settles the matching caller when
// the completion event for that id arrives on the event source.
package dispatch
