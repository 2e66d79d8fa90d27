// Package plan implements the plan loader and DAG builder (C3): parsing
// a plan document, validating its structure, and computing topological
// execution order and maximum-parallelism layers.
package plan

import "github.com/arch-labs/orchestrator/envelope"

// Task is a single task definition as it appears in a plan document.
type Task struct {
	TaskID       string                 `yaml:"task_id" json:"task_id"`
	Agent        string                 `yaml:"agent" json:"agent"`
	TaskType     string                 `yaml:"task_type" json:"task_type"`
	Description  string                 `yaml:"description" json:"description"`
	Priority     envelope.Priority      `yaml:"priority" json:"priority"`
	Dependencies []string               `yaml:"dependencies" json:"dependencies"`
	When         string                 `yaml:"when" json:"when"`
	Unless       string                 `yaml:"unless" json:"unless"`
	MaxRetries   int                    `yaml:"max_retries" json:"max_retries"`
	RetryDelay   *int                   `yaml:"retry_delay" json:"retry_delay"`
	Timeout      *int                   `yaml:"timeout" json:"timeout"`
	FallbackAgent string                `yaml:"fallback_agent" json:"fallback_agent"`
	Deadline     string                 `yaml:"deadline" json:"deadline"`
	Content      TaskContentDef         `yaml:"content" json:"content"`
}

// TaskContentDef is the definition-time content block, forwarded
// verbatim into the task assignment's payload.content.
type TaskContentDef struct {
	Action       string                 `yaml:"action" json:"action"`
	Parameters   map[string]interface{} `yaml:"parameters" json:"parameters"`
	Requirements []string               `yaml:"requirements" json:"requirements"`
	InputFiles   []string               `yaml:"input_files" json:"input_files"`
	OutputFiles  []string               `yaml:"output_files" json:"output_files"`
}

// Plan is a complete plan document: metadata, optional initial context,
// and an ordered list of tasks.
type Plan struct {
	PlanID  string                 `yaml:"plan_id" json:"plan_id"`
	Name    string                 `yaml:"name" json:"name"`
	Version string                 `yaml:"version" json:"version"`
	Context map[string]interface{} `yaml:"context" json:"context"`
	Tasks   []Task                 `yaml:"tasks" json:"tasks"`
}
