package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAssignment() *Envelope {
	return &Envelope{
		Type:            TypeTaskAssignment,
		ProtocolVersion: "1.3",
		SenderID:        "ARCH",
		RecipientID:     "CA",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		TaskID:          "T1",
		RetryCount:      0,
		Payload: Payload{
			Type: TypeTaskAssignment,
			Content: map[string]interface{}{
				"task_id":     "T1",
				"description": "do the thing",
				"action":      "run",
			},
		},
	}
}

func newTestValidator() *Validator {
	return NewValidator("ARCH", []string{"CA", "CC", "WA"})
}

func TestValidateTaskAssignmentOK(t *testing.T) {
	ok, errs := newTestValidator().Validate(validAssignment(), Outbound)
	require.Empty(t, errs)
	assert.True(t, ok)
}

func TestValidateTaskAssignmentWrongSender(t *testing.T) {
	env := validAssignment()
	env.SenderID = "NOTARCH"
	ok, errs := newTestValidator().Validate(env, Outbound)
	assert.False(t, ok)
	assert.Contains(t, errs[0], "invalid sender_id")
}

func TestValidateTaskAssignmentUnknownAgent(t *testing.T) {
	env := validAssignment()
	env.RecipientID = "GHOST"
	ok, errs := newTestValidator().Validate(env, Outbound)
	assert.False(t, ok)
	assert.Contains(t, errs[0], "invalid recipient_id")
}

func TestValidateTaskAssignmentBadTaskID(t *testing.T) {
	env := validAssignment()
	env.TaskID = "bad id"
	ok, _ := newTestValidator().Validate(env, Outbound)
	assert.False(t, ok)
}

func TestValidateTaskAssignmentMissingAction(t *testing.T) {
	env := validAssignment()
	delete(env.Payload.Content, "action")
	ok, errs := newTestValidator().Validate(env, Outbound)
	assert.False(t, ok)
	assert.Contains(t, errs, "payload.content.action must be a non-empty string")
}

func TestValidateUnknownType(t *testing.T) {
	env := validAssignment()
	env.Type = "bogus"
	ok, errs := newTestValidator().Validate(env, Outbound)
	assert.False(t, ok)
	assert.Contains(t, errs[0], "unknown message type")
}

func TestValidateTaskResultGeneric(t *testing.T) {
	env := &Envelope{
		Type:            TypeTaskResult,
		ProtocolVersion: "1.3",
		SenderID:        "CA",
		RecipientID:     "ARCH",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		TaskID:          "T1",
		Payload: Payload{
			Type:    TypeTaskResult,
			Content: map[string]interface{}{"status": "success"},
		},
	}
	ok, errs := newTestValidator().Validate(env, Inbound)
	require.Empty(t, errs)
	assert.True(t, ok)
}

func TestChecklistEnforcerInjectsContent(t *testing.T) {
	enforcer := NewStaticChecklistEnforcer([]string{"use the review branch"})
	v := NewValidator("ARCH", []string{"CA", "CC", "WA"}, WithChecklistEnforcer(enforcer, "WA"))

	env := validAssignment()
	env.RecipientID = "WA"
	ok, errs := v.Validate(env, Outbound)
	require.Empty(t, errs)
	require.True(t, ok)
	assert.Contains(t, env.Payload.Content, "compliance_checklist")
}
