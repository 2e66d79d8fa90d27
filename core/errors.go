package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison with errors.Is(). These map onto
// the error taxonomy of the orchestration runtime: each kind names a class
// of failure, not a concrete type, so components can wrap them with
// task/plan-specific context via OrchestratorError.
var (
	// ErrInvalidPlan covers schema, structural, or DAG-integrity violations
	// discovered while loading a plan. Aborts the run before any I/O.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInvalidEnvelope means a message envelope failed validation, inbound
	// or outbound. At dispatch time this fails the single task without
	// touching the agent's inbox.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrDispatchIO covers inbox/outbox read or write failures.
	ErrDispatchIO = errors.New("postbox I/O error")

	// ErrTaskTimeout means a reply was not observed within the task timeout.
	ErrTaskTimeout = errors.New("task timed out waiting for reply")

	// ErrTaskFailed means the agent returned a failure payload.
	ErrTaskFailed = errors.New("task failed")

	// ErrGuard means a when/unless expression failed to evaluate or used a
	// forbidden construct. Guards fail closed: the task is skipped, not
	// treated as a run failure.
	ErrGuard = errors.New("guard evaluation error")

	// ErrPolicyLoad means a policy file could not be read or parsed. A
	// missing file is not an error: the loaders return a nil policy and
	// the defaults apply. cmd/orchestrator exits with code 3 on this error.
	ErrPolicyLoad = errors.New("policy load error")

	// ErrNotify means a webhook or human-inbox delivery failed. Never
	// aborts the watcher loop or the run.
	ErrNotify = errors.New("notification delivery error")
)

// OrchestratorError carries structured context about a failure: which
// operation failed, which taxonomy kind it belongs to, and which plan/task
// it concerns. It wraps one of the sentinel errors above so callers can
// still use errors.Is against the kind.
type OrchestratorError struct {
	Op     string // operation that failed, e.g. "runner.dispatch"
	Kind   error  // one of the sentinel Err* values above
	PlanID string
	TaskID string
	Err    error // underlying error, if any, beyond Kind
}

func (e *OrchestratorError) Error() string {
	var detail string
	switch {
	case e.Err != nil:
		detail = e.Err.Error()
	case e.Kind != nil:
		detail = e.Kind.Error()
	default:
		detail = "unknown error"
	}
	switch {
	case e.PlanID != "" && e.TaskID != "":
		return fmt.Sprintf("%s: plan=%s task=%s: %s", e.Op, e.PlanID, e.TaskID, detail)
	case e.TaskID != "":
		return fmt.Sprintf("%s: task=%s: %s", e.Op, e.TaskID, detail)
	case e.PlanID != "":
		return fmt.Sprintf("%s: plan=%s: %s", e.Op, e.PlanID, detail)
	default:
		return fmt.Sprintf("%s: %s", e.Op, detail)
	}
}

// Unwrap exposes the sentinel Kind first, falling back to Err, so
// errors.Is(err, core.ErrTaskTimeout) works regardless of which field was
// populated by the caller.
func (e *OrchestratorError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError builds an OrchestratorError for the given operation and kind.
func NewError(op string, kind error, planID, taskID string, err error) *OrchestratorError {
	return &OrchestratorError{Op: op, Kind: kind, PlanID: planID, TaskID: taskID, Err: err}
}

// IsRetryable reports whether an error represents a transient condition the
// plan runner's retry loop should re-attempt: I/O failures and timeouts,
// but never validation or guard failures.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDispatchIO) || errors.Is(err, ErrTaskTimeout)
}

// IsGuardFailure reports whether an error should fail a task's guard
// closed (skipped_due_to_condition) rather than count as a run failure.
func IsGuardFailure(err error) bool {
	return errors.Is(err, ErrGuard)
}
