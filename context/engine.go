// Package context implements the plan-wide mutable context engine
// (C4): a shared key/value store updated as tasks complete, an
// append-only evaluation log, and the sandboxed when/unless guard
// evaluator that gates task execution.
package context

import (
	"fmt"
	"time"
)

// Evaluation is one entry in the append-only log: the condition
// checked, the snapshot of context it ran against, and the outcome.
type Evaluation struct {
	TaskID          string                 `json:"task_id"`
	Timestamp       string                 `json:"timestamp"`
	WhenCondition   string                 `json:"when_condition,omitempty"`
	UnlessCondition string                 `json:"unless_condition,omitempty"`
	ContextSnapshot map[string]interface{} `json:"context_snapshot"`
	FinalDecision   bool                   `json:"final_decision"`
	Reason          string                 `json:"reason"`
	Error           string                 `json:"error,omitempty"`
}

// Engine is the plan-wide context shared across all tasks in a run.
// It is not safe for concurrent use without external synchronization;
// the runner guards every guard evaluation and update with a mutex.
type Engine struct {
	values         map[string]interface{}
	evaluationLog  []Evaluation
	now            func() time.Time
}

// New builds an Engine seeded with initial values (the plan's
// top-level context block, if any). A nil map is treated as empty.
func New(initial map[string]interface{}) *Engine {
	values := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Engine{values: values, now: time.Now}
}

// Get returns the current value of key and whether it is set.
func (e *Engine) Get(key string) (interface{}, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Snapshot returns a shallow copy of the current context map, safe for
// a caller to retain.
func (e *Engine) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Update sets a single context value.
func (e *Engine) Update(key string, value interface{}) {
	e.values[key] = value
}

// UpdateFromTaskResult folds a task_result payload into the context:
// per-task status and score, any explicit context_updates block, and
// a completion flag, mirroring the bookkeeping the runner needs to
// evaluate later tasks' guard expressions.
func (e *Engine) UpdateFromTaskResult(taskID string, payloadContent map[string]interface{}) {
	status, _ := payloadContent["status"].(string)
	if status == "" {
		status = "unknown"
	}
	e.values[taskID+"_status"] = status

	if score, ok := payloadContent["score"]; ok {
		e.values[taskID+"_score"] = score
		e.values["last_score"] = score
	}

	if updates, ok := payloadContent["context_updates"].(map[string]interface{}); ok {
		for k, v := range updates {
			e.values[k] = v
		}
	}

	e.values[taskID+"_completed"] = true
}

// EvaluationLog returns the full append-only evaluation history.
func (e *Engine) EvaluationLog() []Evaluation {
	return e.evaluationLog
}

// EvaluateConditions evaluates a task's when/unless guards against the
// current context and records the outcome in the evaluation log. A
// task with neither guard always executes.
func (e *Engine) EvaluateConditions(taskID, when, unless string) (bool, string) {
	entry := Evaluation{
		TaskID:          taskID,
		Timestamp:       e.now().UTC().Format(time.RFC3339),
		WhenCondition:   when,
		UnlessCondition: unless,
		ContextSnapshot: e.Snapshot(),
	}

	if when != "" {
		result, err := Eval(when, e.values)
		if err != nil {
			return e.fail(&entry, fmt.Sprintf("condition evaluation error: %v", err))
		}
		ok, err := toBool(result)
		if err != nil {
			return e.fail(&entry, fmt.Sprintf("when condition did not evaluate to a boolean: %v", err))
		}
		if !ok {
			return e.fail(&entry, fmt.Sprintf("when condition failed: %q evaluated to %v", when, ok))
		}
	}

	if unless != "" {
		result, err := Eval(unless, e.values)
		if err != nil {
			return e.fail(&entry, fmt.Sprintf("condition evaluation error: %v", err))
		}
		ok, err := toBool(result)
		if err != nil {
			return e.fail(&entry, fmt.Sprintf("unless condition did not evaluate to a boolean: %v", err))
		}
		if ok {
			return e.fail(&entry, fmt.Sprintf("unless condition failed: %q evaluated to %v", unless, ok))
		}
	}

	reason := "all conditions satisfied"
	switch {
	case when != "" && unless != "":
		reason = fmt.Sprintf("when=%q, unless=%q both satisfied", when, unless)
	case when != "":
		reason = fmt.Sprintf("when=%q satisfied", when)
	case unless != "":
		reason = fmt.Sprintf("unless=%q satisfied", unless)
	}
	entry.FinalDecision = true
	entry.Reason = reason
	e.evaluationLog = append(e.evaluationLog, entry)
	return true, reason
}

func (e *Engine) fail(entry *Evaluation, reason string) (bool, string) {
	entry.FinalDecision = false
	entry.Reason = reason
	e.evaluationLog = append(e.evaluationLog, *entry)
	return false, reason
}
