package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
)

// Evaluator watches the envelope stream independently of message
// routing and fires notifications when an envelope matches an enabled
// alert rule. It implements watcher.Handler so it can be registered
// alongside the router on the same inbox poll.
type Evaluator struct {
	policy   *Policy
	notifier *Notifier
	logger   core.Logger
	ledger   *Ledger
}

// Option configures optional Evaluator behavior.
type Option func(*Evaluator)

// WithLedger records every triggered alert to an append-only
// alerts_triggered.json file for later audit/reporting, whether or not
// its notification was delivered.
func WithLedger(l *Ledger) Option {
	return func(e *Evaluator) { e.ledger = l }
}

// NewEvaluator builds an Evaluator. policy may be nil, in which case no
// rule ever matches and Handle is a no-op.
func NewEvaluator(policy *Policy, notifier *Notifier, logger core.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	e := &Evaluator{policy: policy, notifier: notifier, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle implements watcher.Handler. It evaluates env against every
// enabled rule and fires all matches, returning the last notification
// error encountered (if any) without stopping at the first one.
func (e *Evaluator) Handle(env envelope.Envelope) error {
	_, err := e.Evaluate(env)
	return err
}

// Evaluate checks env against every enabled rule, triggers each match,
// and returns the list of rules that matched.
func (e *Evaluator) Evaluate(env envelope.Envelope) ([]Rule, error) {
	if e.policy == nil {
		return nil, nil
	}

	var matched []Rule
	var lastErr error
	for _, rule := range e.policy.Rules {
		if !rule.Enabled {
			continue
		}
		if !ruleMatches(rule.Condition, env) {
			continue
		}
		matched = append(matched, rule)
		if err := e.trigger(rule, env); err != nil {
			e.logger.Error("alert trigger failed", map[string]interface{}{"rule": rule.Name, "error": err.Error()})
			lastErr = err
		}
	}
	return matched, lastErr
}

func ruleMatches(cond Condition, env envelope.Envelope) bool {
	msgType := string(env.Payload.Type)
	if cond.Type != msgType {
		return false
	}
	if cond.Agent != "*" && cond.Agent != "" && cond.Agent != env.SenderID {
		return false
	}

	content := env.Payload.Content

	if msgType == string(envelope.TypeError) {
		if cond.RetryCount != nil && env.RetryCount < *cond.RetryCount {
			return false
		}
		if cond.ErrorCode != "" {
			code, _ := content["error_code"].(string)
			if code != cond.ErrorCode {
				return false
			}
		}
	}

	if msgType == string(envelope.TypeTaskResult) {
		if score, ok := toFloat(content["score"]); ok {
			if cond.ScoreBelow != nil && score >= *cond.ScoreBelow {
				return false
			}
			if cond.ScoreAbove != nil && score <= *cond.ScoreAbove {
				return false
			}
		}
		if cond.DurationAbove != nil {
			duration, ok := toFloat(content["duration_sec"])
			if !ok || duration <= *cond.DurationAbove {
				return false
			}
		}
		if cond.Status != "" {
			status, _ := content["status"].(string)
			if status != cond.Status {
				return false
			}
		}
	}

	return true
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

func (e *Evaluator) trigger(rule Rule, env envelope.Envelope) error {
	message := rule.Action.Message
	if message == "" {
		message = fmt.Sprintf("Alert triggered: %s", rule.Name)
	}

	ctx := map[string]interface{}{
		"name":        rule.Name,
		"type":        rule.Condition.Type,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"task_id":     env.TaskID,
		"agent_id":    env.SenderID,
		"message":     message,
		"task_result": env.Payload.Content,
	}

	var err error
	switch strings.ToLower(rule.Action.Notify) {
	case "human":
		err = e.notifier.NotifyHuman(rule.Action, ctx)
	case "webhook":
		err = e.notifier.NotifyWebhook(rule.Action, ctx)
	case "console_log", "console":
		err = e.notifier.NotifyConsole(rule.Action, ctx)
	default:
		e.logger.Warn("alert rule has unknown notify target", map[string]interface{}{"rule": rule.Name, "notify": rule.Action.Notify})
		return nil
	}

	if e.ledger != nil {
		if lerr := e.ledger.Append(LedgerEntry{
			Timestamp: ctx["timestamp"].(string),
			RuleName:  rule.Name,
			TaskID:    env.TaskID,
			AgentID:   env.SenderID,
			Action:    rule.Action,
			Context:   ctx,
		}); lerr != nil {
			e.logger.Warn("failed to append alert ledger entry", map[string]interface{}{"rule": rule.Name, "error": lerr.Error()})
		}
	}
	return err
}
