package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/volume-sync/vsc/internal/config"
	"github.com/volume-sync/vsc/internal/dispatch"
)

// Record kinds.
const (
	KindTaskSubmitted = "task.submitted"
	KindTaskCompleted = "task.completed"
	KindViolation     = "dispatch.violation"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	TaskID    int64     `json:"taskId,omitempty"`
	Operation string    `json:"op,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Logger writes audit records as JSON lines to a rotating file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
}

// Compile-time assertion that Logger is a dispatch violation sink.
var _ dispatch.ViolationSink = (*Logger)(nil)

// NewLogger creates an audit logger writing to audit.jsonl under the
// configured directory, rotated by lumberjack.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	filePath := filepath.Join(cfg.Dir, "audit.jsonl")

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   false,
		},
	}, nil
}

// TaskSubmitted records a task accepted by the executor.
func (l *Logger) TaskSubmitted(id int64, op dispatch.Operation) {
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Kind:      KindTaskSubmitted,
		TaskID:    id,
		Operation: string(op),
	})
}

// TaskCompleted records a task completion with its outcome and latency.
func (l *Logger) TaskCompleted(id int64, op dispatch.Operation, ok bool, elapsed time.Duration) {
	outcome := "SUCCESS"
	if !ok {
		outcome = "ERROR"
	}
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Kind:      KindTaskCompleted,
		TaskID:    id,
		Operation: string(op),
		Outcome:   outcome,
		LatencyMs: elapsed.Milliseconds(),
	})
}

// RecordViolation records a routing protocol violation.
func (l *Logger) RecordViolation(taskID int64, reason string) {
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Kind:      KindViolation,
		TaskID:    taskID,
		Reason:    reason,
	})
}

// write appends one JSON line. Failures are reported on stderr; audit
// logging never propagates errors into the task path.
func (l *Logger) write(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to marshal entry: %v\n", err)
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "audit: failed to write entry: %v\n", err)
	}
}

// FilePath returns the path of the active audit log file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}
