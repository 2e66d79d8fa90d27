// Package trace implements per-task execution logs and the run-wide
// execution tracer (C5): a JSON document per task under the logs
// directory recording state transitions, retry history, and the final
// execution result.
package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/arch-labs/orchestrator/core"
)

// State is a task's position in its lifecycle.
type State string

const (
	StatePending               State = "pending"
	StateWaiting               State = "waiting"
	StateReady                 State = "ready"
	StateRunning               State = "running"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
	StateTimeout               State = "timeout"
	StateSkippedDueToCondition State = "skipped_due_to_condition"
	StateRetrying              State = "retrying"
)

// Transition records one state change with its timestamp and reason.
type Transition struct {
	FromState  State  `json:"from_state"`
	ToState    State  `json:"to_state"`
	Timestamp  string `json:"timestamp"`
	Reason     string `json:"reason,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// ExecutionMetadata captures a task's position in the DAG at log
// creation time.
type ExecutionMetadata struct {
	ExecutionLayer int      `json:"execution_layer"`
	Dependencies   []string `json:"dependencies"`
	TaskType       string   `json:"task_type"`
	Priority       string   `json:"priority"`
	ParallelTasks  []string `json:"parallel_tasks"`
	Depth          int      `json:"depth"`
}

// Timestamps tracks the lifecycle milestones of a task log.
type Timestamps struct {
	Created      string `json:"created"`
	LastUpdated  string `json:"last_updated"`
	Started      string `json:"started,omitempty"`
	Completed    string `json:"completed,omitempty"`
	Skipped      string `json:"skipped,omitempty"`
}

// ExecutionResult is the terminal outcome recorded on a task log.
type ExecutionResult struct {
	Status       string      `json:"status,omitempty"`
	Score        interface{} `json:"score,omitempty"`
	DurationSec  float64     `json:"duration_sec,omitempty"`
	OutputFiles  []string    `json:"output_files,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	MCPResponse  interface{} `json:"mcp_response,omitempty"`
}

// RetryEntry records one retry attempt.
type RetryEntry struct {
	Attempt      int     `json:"attempt"`
	Timestamp    string  `json:"timestamp"`
	Result       string  `json:"result"`
	ErrorMessage string  `json:"error_message,omitempty"`
	DurationSec  float64 `json:"duration_sec,omitempty"`
}

// TaskContent mirrors the definition-time content block, kept on the
// log for post-hoc inspection.
type TaskContent struct {
	Action       string                 `json:"action,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Requirements []string               `json:"requirements,omitempty"`
	InputFiles   []string               `json:"input_files,omitempty"`
	OutputFiles  []string               `json:"output_files,omitempty"`
}

// Log is the full per-task execution record persisted as
// <logs_dir>/<trace_id>.json.
type Log struct {
	TraceID           string            `json:"trace_id"`
	PlanID            string            `json:"plan_id"`
	TaskID            string            `json:"task_id"`
	Agent             string            `json:"agent"`
	ExecutionMetadata ExecutionMetadata `json:"execution_metadata"`
	StateTransitions  []Transition      `json:"state_transitions"`
	Timestamps        Timestamps        `json:"timestamps"`
	ExecutionResult   ExecutionResult   `json:"execution_result"`
	RetryHistory      []RetryEntry      `json:"retry_history"`
	TaskContent       TaskContent       `json:"task_content"`
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// New creates the initial task log: a single pending->waiting
// transition and the DAG metadata snapshot at creation time.
func New(traceID, planID, taskID, agent, taskType, priority string, dependencies, parallelTasks []string, layer, depth int, content TaskContent) *Log {
	now := nowISO()
	return &Log{
		TraceID: traceID,
		PlanID:  planID,
		TaskID:  taskID,
		Agent:   agent,
		ExecutionMetadata: ExecutionMetadata{
			ExecutionLayer: layer,
			Dependencies:   dependencies,
			TaskType:       taskType,
			Priority:       priority,
			ParallelTasks:  parallelTasks,
			Depth:          depth,
		},
		StateTransitions: []Transition{{
			FromState: StatePending,
			ToState:   StateWaiting,
			Timestamp: now,
			Reason:    "task created, waiting for dependencies",
		}},
		Timestamps:   Timestamps{Created: now, LastUpdated: now},
		RetryHistory: []RetryEntry{},
	}
}

// Store persists and retrieves task logs under a logs directory, one
// JSON file per trace_id.
type Store struct {
	dir string
}

// NewStore builds a Store rooted at dir, creating it lazily.
func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) path(traceID string) string {
	return filepath.Join(s.dir, traceID+".json")
}

// Write persists log atomically (temp file, then rename), creating the
// logs directory on demand.
func (s *Store) Write(log *Log) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.NewError("trace.Write", core.ErrDispatchIO, log.PlanID, log.TaskID, err)
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return core.NewError("trace.Write", core.ErrDispatchIO, log.PlanID, log.TaskID, err)
	}
	path := s.path(log.TraceID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewError("trace.Write", core.ErrDispatchIO, log.PlanID, log.TaskID, err)
	}
	return os.Rename(tmp, path)
}

// Read loads a previously written task log.
func (s *Store) Read(traceID string) (*Log, error) {
	data, err := os.ReadFile(s.path(traceID))
	if err != nil {
		return nil, core.NewError("trace.Read", core.ErrDispatchIO, "", "", err)
	}
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, core.NewError("trace.Read", core.ErrDispatchIO, "", "", err)
	}
	return &log, nil
}

// TransitionState appends a state transition and updates the relevant
// timestamp, then persists the log.
func (s *Store) TransitionState(traceID string, from, to State, reason string, retryCount int) error {
	log, err := s.Read(traceID)
	if err != nil {
		return err
	}
	now := nowISO()
	t := Transition{FromState: from, ToState: to, Timestamp: now, Reason: reason}
	if retryCount > 0 {
		t.RetryCount = retryCount
	}
	log.StateTransitions = append(log.StateTransitions, t)
	log.Timestamps.LastUpdated = now

	switch to {
	case StateRunning:
		log.Timestamps.Started = now
	case StateCompleted, StateFailed, StateTimeout:
		log.Timestamps.Completed = now
	case StateSkippedDueToCondition:
		log.Timestamps.Skipped = now
	}

	return s.Write(log)
}

// RecordResult sets the terminal execution_result block from a task
// result's payload content.
func (s *Store) RecordResult(traceID string, payloadContent map[string]interface{}, durationSec float64, mcpResponse interface{}) error {
	log, err := s.Read(traceID)
	if err != nil {
		return err
	}

	status, _ := payloadContent["status"].(string)
	if status == "" {
		status = "unknown"
	}
	result := ExecutionResult{
		Status:      status,
		Score:       payloadContent["score"],
		DurationSec: durationSec,
		MCPResponse: mcpResponse,
	}
	if errMsg, ok := payloadContent["error_message"].(string); ok {
		result.ErrorMessage = errMsg
	}
	if files, ok := payloadContent["output_files"].([]interface{}); ok {
		for _, f := range files {
			if s, ok := f.(string); ok {
				result.OutputFiles = append(result.OutputFiles, s)
			}
		}
	}

	log.ExecutionResult = result
	log.Timestamps.LastUpdated = nowISO()
	return s.Write(log)
}

// RecordSkip records a skipped_due_to_condition result without a
// preceding ready->running transition.
func (s *Store) RecordSkip(traceID, reason string) error {
	if err := s.TransitionState(traceID, StateReady, StateSkippedDueToCondition, reason, 0); err != nil {
		return err
	}
	log, err := s.Read(traceID)
	if err != nil {
		return err
	}
	log.ExecutionResult = ExecutionResult{Status: string(StateSkippedDueToCondition), Reason: reason}
	log.Timestamps.LastUpdated = nowISO()
	return s.Write(log)
}

// AddRetry appends an entry to a task's retry history.
func (s *Store) AddRetry(traceID string, attempt int, result, errorMessage string, durationSec float64) error {
	log, err := s.Read(traceID)
	if err != nil {
		return err
	}
	entry := RetryEntry{Attempt: attempt, Timestamp: nowISO(), Result: result, ErrorMessage: errorMessage, DurationSec: durationSec}
	log.RetryHistory = append(log.RetryHistory, entry)
	log.Timestamps.LastUpdated = nowISO()
	return s.Write(log)
}
