package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/trace"
)

// TaskOutcome is one task's contribution to a run summary.
type TaskOutcome struct {
	TaskID      string   `json:"task_id"`
	Agent       string   `json:"agent"`
	Status      string   `json:"status"`
	Score       *float64 `json:"score,omitempty"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
}

// RunSummary is the per-plan-run aggregate consumed by metrics
// readers. It is purely reflective: nothing downstream feeds it back
// into scheduling.
type RunSummary struct {
	PlanID      string        `json:"plan_id"`
	Timestamp   string        `json:"timestamp"`
	FinalStatus string        `json:"final_status"`
	TotalTasks  int           `json:"total_tasks"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Tasks       []TaskOutcome `json:"tasks"`
}

// EvalLogger writes one RunSummary file per plan run under dir.
type EvalLogger struct {
	dir string
	now func() time.Time
}

// NewEvalLogger builds an EvalLogger rooted at dir.
func NewEvalLogger(dir string) *EvalLogger {
	return &EvalLogger{dir: dir, now: time.Now}
}

// BuildSummary reads the trace log for each entry in traceIDs (task_id
// -> trace_id) out of traces and assembles a RunSummary. Tasks whose
// trace log can't be read are recorded with status "unknown" rather
// than dropped, so the aggregate's task count always matches the run.
func (l *EvalLogger) BuildSummary(planID, finalStatus string, traceIDs map[string]string, traces *trace.Store) RunSummary {
	summary := RunSummary{
		PlanID:      planID,
		Timestamp:   l.now().UTC().Format(time.RFC3339),
		FinalStatus: finalStatus,
		TotalTasks:  len(traceIDs),
	}

	for taskID, traceID := range traceIDs {
		out := TaskOutcome{TaskID: taskID, Status: "unknown"}
		log, err := traces.Read(traceID)
		if err == nil && log != nil {
			out.Agent = log.Agent
			out.Status = lastState(log)
			if d := log.ExecutionResult.DurationSec; d != 0 {
				dd := d
				out.DurationSec = &dd
			}
			if score, ok := toFloat(log.ExecutionResult.Score); ok {
				out.Score = &score
			}
		}
		switch out.Status {
		case string(trace.StateCompleted):
			summary.Completed++
		case string(trace.StateFailed), string(trace.StateTimeout):
			summary.Failed++
		case string(trace.StateSkippedDueToCondition):
			summary.Skipped++
		}
		summary.Tasks = append(summary.Tasks, out)
	}
	return summary
}

func lastState(log *trace.Log) string {
	if len(log.StateTransitions) == 0 {
		return "unknown"
	}
	return string(log.StateTransitions[len(log.StateTransitions)-1].ToState)
}

// WriteRun persists summary as <dir>/<plan_id>_run.json.
func (l *EvalLogger) WriteRun(summary RunSummary) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return core.NewError("scoring.WriteRun", core.ErrDispatchIO, summary.PlanID, "", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return core.NewError("scoring.WriteRun", core.ErrDispatchIO, summary.PlanID, "", err)
	}
	path := filepath.Join(l.dir, summary.PlanID+"_run.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewError("scoring.WriteRun", core.ErrDispatchIO, summary.PlanID, "", err)
	}
	return os.Rename(tmp, path)
}
