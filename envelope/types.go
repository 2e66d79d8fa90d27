// Package envelope implements the message-envelope validator (C1): the
// single JSON shape exchanged between the orchestrator and its agents,
// plus structural validation of a plan document before it reaches the
// DAG builder.
package envelope

// Type enumerates the envelope's top-level `type` field.
type Type string

const (
	TypeTaskAssignment Type = "task_assignment"
	TypeTaskResult      Type = "task_result"
	TypeError           Type = "error"
	TypeNeedsInput      Type = "needs_input"
	TypeAlert           Type = "alert"
)

// Priority enumerates task/content priority.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Envelope is the single message shape exchanged in both directions
// between the orchestrator and an agent, persisted verbatim in postbox
// inbox/outbox files.
type Envelope struct {
	Type            Type           `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SenderID        string         `json:"sender_id"`
	RecipientID     string         `json:"recipient_id"`
	Timestamp       string         `json:"timestamp"`
	TaskID          string         `json:"task_id"`
	TraceID         string         `json:"trace_id,omitempty"`
	RetryCount      int            `json:"retry_count"`
	Payload         Payload        `json:"payload"`
	Escalation      *Escalation    `json:"escalation,omitempty"`
}

// Escalation annotates an envelope that the router redirected to HUMAN.
type Escalation struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Payload carries a type-matching substructure. Content is left as a
// generic map because its shape varies by Type and is only validated
// where required fields are actually consumed (spec: "treat
// payload.content as an opaque document for routing purposes").
type Payload struct {
	Type    Type                   `json:"type"`
	Content map[string]interface{} `json:"content"`
}

// TaskContent is the task_assignment payload.content shape, forwarded
// verbatim from the plan Task definition plus execution metadata.
type TaskContent struct {
	TaskID       string                 `json:"task_id"`
	Description  string                 `json:"description"`
	Action       string                 `json:"action"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Requirements []string               `json:"requirements,omitempty"`
	InputFiles   []string               `json:"input_files,omitempty"`
	OutputFiles  []string               `json:"output_files,omitempty"`
	Priority     Priority               `json:"priority,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	Deadline     string                 `json:"deadline,omitempty"`
	Timeout      *int                   `json:"timeout,omitempty"`
}

// ToMap renders TaskContent into the generic map shape used by
// Payload.Content, so callers can attach compliance-checklist or other
// hook-injected fields without a second type.
func (c TaskContent) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"task_id":     c.TaskID,
		"description": c.Description,
		"action":      c.Action,
	}
	if c.Parameters != nil {
		m["parameters"] = c.Parameters
	} else {
		m["parameters"] = map[string]interface{}{}
	}
	if c.Requirements != nil {
		m["requirements"] = c.Requirements
	}
	if c.InputFiles != nil {
		m["input_files"] = c.InputFiles
	}
	if c.OutputFiles != nil {
		m["output_files"] = c.OutputFiles
	}
	if c.Priority != "" {
		m["priority"] = c.Priority
	}
	if c.Dependencies != nil {
		m["dependencies"] = c.Dependencies
	}
	if c.Deadline != "" {
		m["deadline"] = c.Deadline
	}
	if c.Timeout != nil {
		m["timeout"] = *c.Timeout
	}
	return m
}
