package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/volume-sync/vsc/internal/dispatch"
)

func TestTaskCounters(t *testing.T) {
	m := New(nil, nil)

	m.TaskSubmitted(1, dispatch.OpInitSpawn)
	m.TaskSubmitted(2, dispatch.OpListMounts)
	m.TaskSubmitted(3, dispatch.OpListMounts)

	m.TaskCompleted(2, dispatch.OpListMounts, true, 5*time.Millisecond)
	m.TaskCompleted(3, dispatch.OpListMounts, false, time.Millisecond)

	if got := testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("initSpawn")); got != 1 {
		t.Errorf("submitted initSpawn = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("listMounts")); got != 2 {
		t.Errorf("submitted listMounts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tasksCompleted.WithLabelValues("listMounts", "success")); got != 1 {
		t.Errorf("completed success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.tasksCompleted.WithLabelValues("listMounts", "error")); got != 1 {
		t.Errorf("completed error = %v, want 1", got)
	}
}

func TestViolationCounter(t *testing.T) {
	m := New(nil, nil)

	m.RecordViolation(7, "completion for unknown task id")
	m.RecordViolation(7, "completion for unknown task id")

	if got := testutil.ToFloat64(m.violations); got != 2 {
		t.Errorf("violations = %v, want 2", got)
	}
}

func TestGaugesSampleCallbacks(t *testing.T) {
	pending, depth := 3, 5
	m := New(func() int { return pending }, func() int { return depth })

	if got := testutil.ToFloat64(m.pendingCalls); got != 3 {
		t.Errorf("pending gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 5 {
		t.Errorf("queue depth gauge = %v, want 5", got)
	}

	pending = 0
	if got := testutil.ToFloat64(m.pendingCalls); got != 0 {
		t.Errorf("pending gauge after change = %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil, nil)
	m.TaskSubmitted(1, dispatch.OpListMounts)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "vsc_tasks_submitted_total") {
		t.Errorf("metrics output missing task counter:\n%s", body)
	}
	if !strings.Contains(body, "vsc_dispatch_pending_calls") {
		t.Errorf("metrics output missing pending gauge:\n%s", body)
	}
}
