package dispatch

import (
	"errors"
	"fmt"
)

// Operation identifies a backend task. The set is closed; extend by adding
// a constant here and a matching branch in the executor.
type Operation string

const (
	// OpInitSpawn performs one-time backend initialization: spawn sync
	// watchers for already-mounted volumes and start the mount notifier.
	// Success payload: none.
	OpInitSpawn Operation = "initSpawn"

	// OpListMounts lists currently known (filesystem, device, path) triples.
	// Success payload: []mounts.Mount.
	OpListMounts Operation = "listMounts"
)

// Valid reports whether op is a member of the supported operation set.
func (op Operation) Valid() bool {
	switch op {
	case OpInitSpawn, OpListMounts:
		return true
	}
	return false
}

// ErrUnknownOperation indicates a request with an operation tag outside the
// supported set. It is rejected before reaching the executor.
var ErrUnknownOperation = errors.New("UNKNOWN_OPERATION")

// Request is a submission to the backend, tagged with the operation to run.
type Request struct {
	Op Operation `json:"op"`
}

// Outcome is the two-variant result of a completed task: a success payload
// or a domain error string. A domain error is a value delivered to the
// caller, not a transport fault.
type Outcome struct {
	OK    bool        `json:"ok"`
	Value interface{} `json:"value,omitempty"`
	Err   string      `json:"err,omitempty"`
}

// OkOutcome wraps a success payload.
func OkOutcome(value interface{}) Outcome {
	return Outcome{OK: true, Value: value}
}

// ErrOutcome wraps a domain error message.
func ErrOutcome(msg string) Outcome {
	return Outcome{Err: msg}
}

// Result is a completion event: the task id and its outcome.
type Result struct {
	ID      int64   `json:"id"`
	Outcome Outcome `json:"result"`
}

// ValueAs extracts the success payload of an outcome as T. It fails when the
// outcome is the error variant or carries a payload of a different type.
func ValueAs[T any](o Outcome) (T, error) {
	var zero T
	if !o.OK {
		return zero, fmt.Errorf("outcome is an error: %s", o.Err)
	}
	if o.Value == nil {
		return zero, nil
	}
	v, ok := o.Value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected payload type %T", o.Value)
	}
	return v, nil
}
