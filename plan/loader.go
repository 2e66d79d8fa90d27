package plan

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/arch-labs/orchestrator/core"
)

var (
	planIDPattern = regexp.MustCompile(core.IDCharClassPattern)
	taskIDPattern = regexp.MustCompile(core.IDCharClassPattern)
)

// knownTaskTypes mirrors the task_type enum enforced by the message
// schema: anything outside this set is rejected at load time rather
// than surfacing as a runtime dispatch failure.
var knownTaskTypes = map[string]bool{
	"data_processing":   true,
	"report_generation": true,
	"health_check":      true,
	"notification":      true,
	"validation":        true,
	"custom":            true,
}

// Load reads and validates a plan document from path. Structural
// validation runs before DAG construction: unique task IDs, known
// agents, known task types, dependency references that resolve, and
// well-formed plan_id/task_id identifiers.
func Load(path string, knownAgents []string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError("plan.Load", core.ErrInvalidPlan, "", "", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, core.NewError("plan.Load", core.ErrInvalidPlan, "", "", fmt.Errorf("parsing plan yaml: %w", err))
	}

	if err := Validate(&p, knownAgents); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate performs structural validation of a plan document against
// the set of agents known to the orchestrator. It does not construct
// the DAG; call Build separately once validation passes.
func Validate(p *Plan, knownAgents []string) error {
	if p.PlanID == "" {
		return core.NewError("plan.Validate", core.ErrInvalidPlan, "", "", fmt.Errorf("plan_id is required"))
	}
	if !planIDPattern.MatchString(p.PlanID) {
		return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, "", fmt.Errorf("plan_id %q does not match %s", p.PlanID, core.IDCharClassPattern))
	}
	if len(p.Tasks) == 0 {
		return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, "", fmt.Errorf("plan has no tasks"))
	}

	agentSet := make(map[string]bool, len(knownAgents))
	for _, a := range knownAgents {
		agentSet[a] = true
	}

	seen := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.TaskID == "" {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, "", fmt.Errorf("task missing task_id"))
		}
		if !taskIDPattern.MatchString(t.TaskID) {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task_id %q does not match %s", t.TaskID, core.IDCharClassPattern))
		}
		if seen[t.TaskID] {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("duplicate task_id %q", t.TaskID))
		}
		seen[t.TaskID] = true

		if len(agentSet) > 0 && !agentSet[t.Agent] {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task %q assigned to unknown agent %q", t.TaskID, t.Agent))
		}
		if t.FallbackAgent != "" && len(agentSet) > 0 && !agentSet[t.FallbackAgent] {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task %q has unknown fallback_agent %q", t.TaskID, t.FallbackAgent))
		}
		if t.TaskType != "" && !knownTaskTypes[t.TaskType] {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task %q has unknown task_type %q", t.TaskID, t.TaskType))
		}
		if t.MaxRetries < 0 {
			return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task %q has negative max_retries", t.TaskID))
		}
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return core.NewError("plan.Validate", core.ErrInvalidPlan, p.PlanID, t.TaskID, fmt.Errorf("task %q depends on undefined task %q", t.TaskID, dep))
			}
		}
	}

	return nil
}
