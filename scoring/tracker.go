// Package scoring implements the per-agent evaluation ledger (C10):
// an append-only log of task outcomes extracted from task_result
// envelopes, plus rolling per-agent summaries used to answer "is this
// agent degrading" questions.
package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
)

// PlanIDFromTraceID recovers the plan_id component of a trace_id in the
// `<plan_id>-<task_index>-<8 hex chars>` format the trace package
// generates. Returns "" if traceID doesn't carry at least three
// hyphen-separated segments.
func PlanIDFromTraceID(traceID string) string {
	parts := strings.Split(traceID, "-")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

// Entry is one recorded task outcome.
type Entry struct {
	Timestamp   string   `json:"timestamp"`
	AgentID     string   `json:"agent_id"`
	TaskID      string   `json:"task_id"`
	PlanID      string   `json:"plan_id,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Summary is a rolling-window snapshot for one agent.
type Summary struct {
	AgentID     string   `json:"agent_id"`
	Count       int      `json:"count"`
	AvgScore    *float64 `json:"avg_score"`
	SuccessRate *float64 `json:"success_rate"`
}

// Tracker serializes reads and writes to a single JSON-array log file,
// following the same mutex-guarded read-modify-write-then-rename
// discipline the postbox uses for inbox/outbox files.
type Tracker struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewTracker builds a Tracker backed by a log file at dir/agent_scores.json.
func NewTracker(dir string) *Tracker {
	return &Tracker{path: filepath.Join(dir, "agent_scores.json"), now: time.Now}
}

func (t *Tracker) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewError("scoring.read", core.ErrDispatchIO, "", "", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func (t *Tracker) writeLocked(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return core.NewError("scoring.write", core.ErrDispatchIO, "", "", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return core.NewError("scoring.write", core.ErrDispatchIO, "", "", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewError("scoring.write", core.ErrDispatchIO, "", "", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return core.NewError("scoring.write", core.ErrDispatchIO, "", "", err)
	}
	return nil
}

// Append records one evaluation entry.
func (t *Tracker) Append(e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Timestamp == "" {
		e.Timestamp = t.now().UTC().Format(time.RFC3339)
	}
	entries, err := t.readLocked()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	return t.writeLocked(entries)
}

// RecordFromResult extracts success/score/duration_sec/notes from a
// task_result envelope's payload content and appends an Entry.
func (t *Tracker) RecordFromResult(env envelope.Envelope, planID string) error {
	content := env.Payload.Content
	entry := Entry{
		AgentID: env.SenderID,
		TaskID:  env.TaskID,
		PlanID:  planID,
	}
	if v, ok := content["success"].(bool); ok {
		entry.Success = &v
	}
	if v, ok := toFloat(content["score"]); ok {
		entry.Score = &v
	}
	if v, ok := toFloat(content["duration_sec"]); ok {
		entry.DurationSec = &v
	}
	if v, ok := content["notes"].(string); ok {
		entry.Notes = v
	}
	return t.Append(entry)
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

// LastN returns, most-recent-first, up to n entries recorded for agentID.
func (t *Tracker) LastN(agentID string, n int) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.readLocked()
	if err != nil {
		return nil, err
	}

	var matched []Entry
	for i := len(entries) - 1; i >= 0 && len(matched) < n; i-- {
		if entries[i].AgentID == agentID {
			matched = append(matched, entries[i])
		}
	}
	return matched, nil
}

// RollingSummary computes avg_score and success_rate over the last n
// entries recorded for agentID. Both fields are nil when no entry in
// the window carries that metric.
func (t *Tracker) RollingSummary(agentID string, n int) (Summary, error) {
	last, err := t.LastN(agentID, n)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{AgentID: agentID, Count: len(last)}
	if len(last) == 0 {
		return summary, nil
	}

	var scoreSum float64
	var scoreCount int
	var successCount int
	var successTotal int
	for _, e := range last {
		if e.Score != nil {
			scoreSum += *e.Score
			scoreCount++
		}
		if e.Success != nil {
			successTotal++
			if *e.Success {
				successCount++
			}
		}
	}
	if scoreCount > 0 {
		avg := scoreSum / float64(scoreCount)
		summary.AvgScore = &avg
	}
	if successTotal > 0 {
		rate := float64(successCount) / float64(successTotal)
		summary.SuccessRate = &rate
	}
	return summary, nil
}
