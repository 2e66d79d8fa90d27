package runner

import (
	"fmt"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/plan"
)

// buildTaskAssignment constructs the task_assignment envelope sent to
// an agent's inbox, forwarding the task's definition-time content
// verbatim into payload.content.
func buildTaskAssignment(t plan.Task, agent, traceID string, retryCount int) (*envelope.Envelope, error) {
	if agent == "" {
		return nil, fmt.Errorf("task %q missing agent", t.TaskID)
	}
	if t.TaskID == "" {
		return nil, fmt.Errorf("task missing task_id")
	}
	if t.Description == "" {
		return nil, fmt.Errorf("task %q missing description", t.TaskID)
	}
	if t.Content.Action == "" {
		return nil, fmt.Errorf("task %q missing content.action", t.TaskID)
	}

	content := envelope.TaskContent{
		TaskID:       t.TaskID,
		Description:  t.Description,
		Action:       t.Content.Action,
		Parameters:   t.Content.Parameters,
		Requirements: t.Content.Requirements,
		InputFiles:   t.Content.InputFiles,
		OutputFiles:  t.Content.OutputFiles,
		Priority:     t.Priority,
		Dependencies: t.Dependencies,
		Deadline:     t.Deadline,
		Timeout:      t.Timeout,
	}.ToMap()

	return &envelope.Envelope{
		Type:            envelope.TypeTaskAssignment,
		ProtocolVersion: "1.3",
		SenderID:        core.AgentOrchestrator,
		RecipientID:     agent,
		TraceID:         traceID,
		RetryCount:      retryCount,
		TaskID:          t.TaskID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Payload: envelope.Payload{
			Type:    envelope.TypeTaskAssignment,
			Content: content,
		},
	}, nil
}
