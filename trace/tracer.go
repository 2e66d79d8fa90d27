package trace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// GenerateTraceID produces a per-task trace identifier of the form
// <plan_id>-<task_index>-<8 hex chars>.
func GenerateTraceID(planID string, taskIndex int) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", planID, taskIndex, hex.EncodeToString(buf)), nil
}

// Event is one entry in a run-wide execution trace: a lightweight,
// in-memory mirror of the task-log transitions kept for end-of-run
// reporting without re-reading every task log file.
type Event struct {
	TraceID   string
	TaskID    string
	Agent     string
	FromState State
	ToState   State
	Reason    string
}

// Tracer accumulates Events for an entire run. Safe for concurrent use
// since layers execute tasks concurrently.
type Tracer struct {
	mu     sync.Mutex
	events []Event
}

// NewTracer builds an empty Tracer.
func NewTracer() *Tracer { return &Tracer{} }

// Record appends an event.
func (t *Tracer) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

// Events returns a snapshot of all recorded events in order.
func (t *Tracer) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Summary reports counts of tasks by terminal state, for the run-end
// report.
func (t *Tracer) Summary() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := map[State]int{}
	for _, e := range t.events {
		switch e.ToState {
		case StateCompleted, StateFailed, StateTimeout, StateSkippedDueToCondition:
			counts[e.ToState]++
		}
	}
	return counts
}
