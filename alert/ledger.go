package alert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/arch-labs/orchestrator/core"
)

// LedgerEntry is one triggered-alert record, append-only, persisted
// independently of the notification channel so alerts can be audited
// even if the notify call itself failed partway through.
type LedgerEntry struct {
	Timestamp string                 `json:"timestamp"`
	RuleName  string                 `json:"rule_name"`
	TaskID    string                 `json:"task_id"`
	AgentID   string                 `json:"agent_id"`
	Action    Action                 `json:"action"`
	Context   map[string]interface{} `json:"context"`
}

// Ledger appends triggered-alert records to a single JSON array file,
// mirroring the postbox package's mutex-guarded read-modify-write then
// atomic-rename discipline.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger builds a Ledger rooted at dir/alerts_triggered.json.
func NewLedger(dir string) *Ledger {
	return &Ledger{path: filepath.Join(dir, "alerts_triggered.json")}
}

// Append adds entry to the ledger file, creating it if needed.
func (l *Ledger) Append(entry LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return core.NewError("alert.Ledger.Append", core.ErrDispatchIO, "", entry.TaskID, err)
	}

	var entries []LedgerEntry
	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if len(data) > 0 {
			if err := json.Unmarshal(data, &entries); err != nil {
				return core.NewError("alert.Ledger.Append", core.ErrDispatchIO, "", entry.TaskID, err)
			}
		}
	case os.IsNotExist(err):
		entries = []LedgerEntry{}
	default:
		return core.NewError("alert.Ledger.Append", core.ErrDispatchIO, "", entry.TaskID, err)
	}

	entries = append(entries, entry)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return core.NewError("alert.Ledger.Append", core.ErrDispatchIO, "", entry.TaskID, err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return core.NewError("alert.Ledger.Append", core.ErrDispatchIO, "", entry.TaskID, err)
	}
	return os.Rename(tmp, l.path)
}
