// Package router implements the message router and policy-driven
// dispatch (C8): given an inbound envelope it selects a destination
// inbox by first-match rule, applies retry/escalation semantics to
// error messages, and writes the result via the shared postbox.
package router

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/policy"
	"github.com/arch-labs/orchestrator/postbox"
	"github.com/arch-labs/orchestrator/scoring"
)

// Router dispatches inbound envelopes to their destination inbox,
// consulting an optional phase Policy before falling back to
// hard-coded default rules. All routing is serialized by mu so
// concurrent watcher dispatches never interleave their inbox writes.
type Router struct {
	pb      *postbox.Postbox
	policy  *policy.Policy
	logger  core.Logger
	tracker *scoring.Tracker

	mu sync.Mutex
}

// Option configures optional Router behavior.
type Option func(*Router)

// WithTracker attaches the output tracker (C10) so every routed
// task_result envelope also appends an evaluation-ledger entry.
func WithTracker(t *scoring.Tracker) Option {
	return func(r *Router) { r.tracker = t }
}

// New builds a Router. p may be nil, in which case every message type
// uses its hard-coded default rule.
func New(pb *postbox.Postbox, p *policy.Policy, logger core.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	r := &Router{pb: pb, policy: p, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle implements watcher.Handler.
func (r *Router) Handle(env envelope.Envelope) error {
	_, err := r.Route(env)
	return err
}

// Route dispatches env and returns the rule that matched, or nil if
// the message was escalated to HUMAN instead of routed normally.
func (r *Router) Route(env envelope.Envelope) (*policy.RoutingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgType := env.Payload.Type
	if msgType == "" {
		return nil, r.escalate(env, "message payload missing type field")
	}

	if msgType == envelope.TypeError {
		return r.handleErrorWithRetry(env)
	}

	rule := r.findMatchingRule(msgType, env.Payload.Content)
	destination := env.RecipientID
	if rule != nil {
		destination = rule.Destination
	}
	if destination == "" {
		return nil, r.escalate(env, "no recipient_id in envelope and no matching rule")
	}

	if err := r.pb.AppendToInbox(destination, env); err != nil {
		return nil, err
	}
	if msgType == envelope.TypeTaskResult && r.tracker != nil {
		if err := r.tracker.RecordFromResult(env, scoring.PlanIDFromTraceID(env.TraceID)); err != nil {
			r.logger.Warn("failed to record evaluation ledger entry", map[string]interface{}{"trace_id": env.TraceID, "error": err.Error()})
		}
	}
	if rule == nil {
		rule = &policy.RoutingRule{ID: "route_" + env.TaskID, Destination: destination, EscalationLevel: policy.EscalationNone}
	}
	return rule, nil
}

func (r *Router) findMatchingRule(msgType envelope.Type, content map[string]interface{}) *policy.RoutingRule {
	if r.policy == nil {
		return defaultRule(msgType)
	}

	var rules []policy.RoutingRule
	switch msgType {
	case envelope.TypeTaskResult:
		rules = r.policy.TaskResultRules
	case envelope.TypeNeedsInput:
		rules = r.policy.InputRules
	}

	for i := range rules {
		if ruleMatches(rules[i], content) {
			return &rules[i]
		}
	}
	return nil
}

func defaultRule(msgType envelope.Type) *policy.RoutingRule {
	switch msgType {
	case envelope.TypeTaskResult:
		return &policy.RoutingRule{ID: "default_task_result", Destination: core.AgentOrchestrator, EscalationLevel: policy.EscalationNone}
	case envelope.TypeNeedsInput:
		return &policy.RoutingRule{ID: "default_needs_input", Destination: core.AgentOrchestrator, EscalationLevel: policy.EscalationHuman}
	}
	return nil
}

func ruleMatches(rule policy.RoutingRule, content map[string]interface{}) bool {
	for _, cond := range rule.Conditions {
		value, ok := content[cond.Field]
		if !ok {
			return false
		}
		if !conditionHolds(cond, value) {
			return false
		}
	}
	return true
}

func conditionHolds(cond policy.Condition, value interface{}) bool {
	switch cond.Operator {
	case "eq":
		return fmt.Sprint(value) == fmt.Sprint(cond.Value)
	case "neq":
		return fmt.Sprint(value) != fmt.Sprint(cond.Value)
	case "gt":
		vf, ok1 := toFloat(value)
		cf, ok2 := toFloat(cond.Value)
		return ok1 && ok2 && vf > cf
	case "lt":
		vf, ok1 := toFloat(value)
		cf, ok2 := toFloat(cond.Value)
		return ok1 && ok2 && vf < cf
	case "in":
		list, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if fmt.Sprint(item) == fmt.Sprint(value) {
				return true
			}
		}
		return false
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// handleErrorWithRetry applies the error-message retry/escalation
// algorithm: classify the error, check the retry budget, and either
// reassign the message back to its original recipient with an
// incremented retry_count or escalate it to HUMAN.
func (r *Router) handleErrorWithRetry(env envelope.Envelope) (*policy.RoutingRule, error) {
	budget := r.retryBudgetFor(env.Payload.Content)

	if env.RetryCount < budget {
		original := originalTaskRecipient(env.Payload.Content)
		if original != "" {
			env.RetryCount++
			env.RecipientID = original
			if err := r.pb.AppendToInbox(original, env); err != nil {
				return nil, err
			}
			r.logger.Info("retrying error message", map[string]interface{}{"trace_id": env.TraceID, "attempt": env.RetryCount, "budget": budget, "destination": original})
			return &policy.RoutingRule{
				ID:              "retry_" + env.TraceID,
				Destination:     original,
				EscalationLevel: policy.EscalationAgent,
				MaxRetries:      budget,
			}, nil
		}
	}

	r.logger.Warn("error message exceeded retry budget, escalating", map[string]interface{}{"trace_id": env.TraceID, "retry_count": env.RetryCount, "budget": budget})
	return nil, r.escalate(env, fmt.Sprintf("failed after %d retry attempts", env.RetryCount))
}

func (r *Router) retryBudgetFor(content map[string]interface{}) int {
	class := classifyError(content)
	if r.policy != nil {
		for _, c := range r.policy.ErrorClasses {
			if c.Type == class {
				return c.RetryCount
			}
		}
	}
	switch class {
	case "critical_error":
		return 0
	case "dependency_blocked":
		return 5
	case "resource_constraint":
		return 2
	default:
		return 3
	}
}

var (
	criticalKeywords   = []string{"security", "data loss", "system breaking", "critical", "fatal"}
	dependencyKeywords = []string{"dependency", "blocked", "waiting for", "requires"}
	resourceKeywords   = []string{"quota", "limit", "memory", "disk", "cpu", "resource"}
)

// classifyError inspects the error message text to choose a retry
// budget class. Keyword lists mirror the ones message text commonly
// carries; the default class is "error".
func classifyError(content map[string]interface{}) string {
	errMsg, _ := content["error"].(string)
	errMsg = strings.ToLower(errMsg)

	if containsAny(errMsg, criticalKeywords) {
		return "critical_error"
	}
	if containsAny(errMsg, dependencyKeywords) {
		return "dependency_blocked"
	}
	if containsAny(errMsg, resourceKeywords) {
		return "resource_constraint"
	}
	return "error"
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// originalTaskRecipient recovers which agent should retry an errored
// task, from the error content's task_id/error text.
func originalTaskRecipient(content map[string]interface{}) string {
	taskID, _ := content["task_id"].(string)
	if taskID == "" {
		taskID, _ = content["related_task_id"].(string)
	}
	errMsg, _ := content["error"].(string)
	errMsg = strings.ToLower(errMsg)

	switch {
	case strings.Contains(taskID, "CC") || strings.Contains(errMsg, "code"):
		return "CC"
	case strings.Contains(taskID, "WA") || strings.Contains(errMsg, "web"):
		return "WA"
	case strings.Contains(taskID, "CA") || strings.Contains(errMsg, "analysis"):
		return "CA"
	}
	if taskID == "" {
		return ""
	}
	return "CC"
}

func (r *Router) escalate(env envelope.Envelope, reason string) error {
	env.Escalation = &envelope.Escalation{Reason: reason, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := r.pb.AppendToInbox(core.AgentHuman, env); err != nil {
		return err
	}
	r.logger.Info("escalated to human", map[string]interface{}{"trace_id": env.TraceID, "reason": reason})
	return nil
}
