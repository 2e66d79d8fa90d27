// Package alert implements the alert-policy evaluator and notification
// dispatch (C9): independent of message routing, it watches the same
// envelope stream for conditions worth surfacing to a human or an
// external system (low scores, repeated retries, long-running tasks)
// and fires the configured notification channel.
package alert

// ActionType enumerates the notification channels an alert rule can
// trigger.
type ActionType string

const (
	ActionConsoleLog ActionType = "console_log"
	ActionWebhook    ActionType = "webhook"
	ActionHuman      ActionType = "human"
)

// Condition is the match test for one alert rule. Type selects which
// envelope message type the rule applies to (error or task_result);
// the remaining fields are optional filters applied on top of Type.
type Condition struct {
	Type          string   `yaml:"type" json:"type"`
	Agent         string   `yaml:"agent" json:"agent"`
	RetryCount    *int     `yaml:"retry_count" json:"retry_count"`
	ErrorCode     string   `yaml:"error_code" json:"error_code"`
	ScoreBelow    *float64 `yaml:"score_below" json:"score_below"`
	ScoreAbove    *float64 `yaml:"score_above" json:"score_above"`
	DurationAbove *float64 `yaml:"duration_above" json:"duration_above"`
	Status        string   `yaml:"status" json:"status"`
}

// Action is what a matching rule does about it.
type Action struct {
	Notify         string            `yaml:"notify" json:"notify"` // human, webhook, or console_log
	Level          string            `yaml:"level" json:"level"`
	Message        string            `yaml:"message" json:"message"`
	URL            string            `yaml:"url" json:"url"`
	Headers        map[string]string `yaml:"headers" json:"headers"`
	Template       string            `yaml:"template" json:"template"`
	TimeoutSeconds int               `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Rule is one named alert condition/action pair.
type Rule struct {
	Name      string    `yaml:"name" json:"name"`
	Enabled   bool      `yaml:"enabled" json:"enabled"`
	Condition Condition `yaml:"condition" json:"condition"`
	Action    Action    `yaml:"action" json:"action"`
}

// Policy is the complete alert-rule document.
type Policy struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
	Rules       []Rule `yaml:"rules" json:"rules"`
}
