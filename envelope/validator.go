package envelope

import (
	"fmt"
	"regexp"
	"time"

	"github.com/arch-labs/orchestrator/core"
)

// Direction distinguishes an envelope being validated before it is
// appended to an inbox from one just read back out of an outbox.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

var (
	idPattern       = regexp.MustCompile(core.IDCharClassPattern)
	versionPattern  = regexp.MustCompile(core.ProtocolVersionPattern)
	validPriorities = map[Priority]bool{
		PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityCritical: true,
	}
	validTypes = map[Type]bool{
		TypeTaskAssignment: true, TypeTaskResult: true, TypeError: true, TypeNeedsInput: true, TypeAlert: true,
	}
)

// ChecklistEnforcer lets a caller inject extra compliance content into a
// task assignment's payload before it is dispatched, for agents flagged
// as requiring it. Off by default: Validator never enforces a checklist
// unless both a hook and a flagged agent are configured.
type ChecklistEnforcer interface {
	// Enforce mutates content in place (e.g. adding a
	// "compliance_checklist" key) and returns whether it did so.
	Enforce(agent string, content map[string]interface{}) bool
}

// Validator validates envelopes and, for task assignments, enforces
// agent/content invariants. It is deterministic and, unless a
// ChecklistEnforcer is configured, side-effect free; with one, a valid
// task_assignment for a flagged agent has its payload.content mutated
// in place. Constructed once with the set of known agents.
type Validator struct {
	orchestratorID    string
	knownAgents       map[string]bool
	checklistAgents   map[string]bool
	checklistEnforcer ChecklistEnforcer
}

// Option configures a Validator.
type Option func(*Validator)

// WithChecklistEnforcer registers a hook invoked for any agent named in
// requiresChecklist before a task_assignment envelope is returned valid.
func WithChecklistEnforcer(enforcer ChecklistEnforcer, requiresChecklist ...string) Option {
	return func(v *Validator) {
		v.checklistEnforcer = enforcer
		for _, a := range requiresChecklist {
			v.checklistAgents[a] = true
		}
	}
}

// NewValidator builds a Validator for the given orchestrator identifier
// and set of known agent identifiers (the plan's `agent` values plus
// core.AgentHuman).
func NewValidator(orchestratorID string, knownAgents []string, opts ...Option) *Validator {
	known := make(map[string]bool, len(knownAgents)+1)
	for _, a := range knownAgents {
		known[a] = true
	}
	known[core.AgentHuman] = true

	v := &Validator{
		orchestratorID:  orchestratorID,
		knownAgents:     known,
		checklistAgents: map[string]bool{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate performs field presence, type, enum, regex, and payload-shape
// checks appropriate to the envelope's declared type. It never panics on
// a malformed envelope — only returns validation errors.
func (v *Validator) Validate(env *Envelope, direction Direction) (bool, []string) {
	switch env.Type {
	case TypeTaskAssignment:
		return v.validateTaskAssignment(env)
	case TypeTaskResult, TypeError, TypeNeedsInput, TypeAlert:
		return v.validateGeneric(env)
	default:
		return false, []string{fmt.Sprintf("unknown message type: %q", env.Type)}
	}
}

func (v *Validator) validateGeneric(env *Envelope) (bool, []string) {
	var errs []string
	if env.ProtocolVersion == "" || !versionPattern.MatchString(env.ProtocolVersion) {
		errs = append(errs, fmt.Sprintf("invalid protocol_version: %q", env.ProtocolVersion))
	}
	if env.SenderID == "" {
		errs = append(errs, "missing required field: sender_id")
	}
	if env.RecipientID == "" {
		errs = append(errs, "missing required field: recipient_id")
	}
	if env.TaskID == "" || !idPattern.MatchString(env.TaskID) {
		errs = append(errs, fmt.Sprintf("invalid task_id format: %q", env.TaskID))
	}
	if env.Timestamp == "" {
		errs = append(errs, "missing required field: timestamp")
	} else if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timestamp format: %q (expected ISO 8601)", env.Timestamp))
	}
	if env.RetryCount < 0 {
		errs = append(errs, fmt.Sprintf("invalid retry_count: %d (expected non-negative)", env.RetryCount))
	}
	if !validTypes[env.Payload.Type] {
		errs = append(errs, fmt.Sprintf("invalid payload.type: %q", env.Payload.Type))
	}
	return len(errs) == 0, errs
}

func (v *Validator) validateTaskAssignment(env *Envelope) (bool, []string) {
	var errs []string

	if env.SenderID != v.orchestratorID {
		errs = append(errs, fmt.Sprintf("invalid sender_id for task assignment: %q (expected %q)", env.SenderID, v.orchestratorID))
	}
	if !v.knownAgents[env.RecipientID] {
		errs = append(errs, fmt.Sprintf("invalid recipient_id (agent): %q", env.RecipientID))
	}
	if env.ProtocolVersion == "" || !versionPattern.MatchString(env.ProtocolVersion) {
		errs = append(errs, fmt.Sprintf("invalid protocol_version format: %q (expected X.Y)", env.ProtocolVersion))
	}
	if env.TaskID == "" || !idPattern.MatchString(env.TaskID) {
		errs = append(errs, fmt.Sprintf("invalid task_id format: %q", env.TaskID))
	}
	if env.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
			errs = append(errs, fmt.Sprintf("invalid timestamp format: %q", env.Timestamp))
		}
	} else {
		errs = append(errs, "missing required field: timestamp")
	}
	if env.RetryCount < 0 {
		errs = append(errs, fmt.Sprintf("invalid retry_count: %d", env.RetryCount))
	}
	if env.Payload.Type != TypeTaskAssignment {
		errs = append(errs, fmt.Sprintf("invalid payload.type: %q (expected task_assignment)", env.Payload.Type))
	}

	content := env.Payload.Content
	if content == nil {
		errs = append(errs, "missing required field: payload.content")
		return false, errs
	}
	if _, ok := content["task_id"]; !ok {
		errs = append(errs, "missing required field: payload.content.task_id")
	}
	if desc, ok := content["description"].(string); !ok || desc == "" {
		errs = append(errs, "payload.content.description must be a non-empty string")
	}
	if action, ok := content["action"].(string); !ok || action == "" {
		errs = append(errs, "payload.content.action must be a non-empty string")
	}
	if priority, ok := content["priority"]; ok {
		if p, ok := priority.(Priority); ok {
			if !validPriorities[p] {
				errs = append(errs, fmt.Sprintf("invalid priority: %v", priority))
			}
		} else if s, ok := priority.(string); ok {
			if !validPriorities[Priority(s)] {
				errs = append(errs, fmt.Sprintf("invalid priority: %v", priority))
			}
		}
	}
	if deps, ok := content["dependencies"]; ok {
		if list, ok := deps.([]string); ok {
			for _, d := range list {
				if !idPattern.MatchString(d) {
					errs = append(errs, fmt.Sprintf("invalid dependency format: %q", d))
				}
			}
		}
	}

	if len(errs) > 0 {
		return false, errs
	}

	if v.checklistEnforcer != nil && v.checklistAgents[env.RecipientID] {
		v.checklistEnforcer.Enforce(env.RecipientID, content)
	}

	return true, nil
}
