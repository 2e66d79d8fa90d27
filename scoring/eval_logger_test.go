package scoring

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arch-labs/orchestrator/trace"
)

func TestBuildSummaryCountsByLastState(t *testing.T) {
	dir := t.TempDir()
	store := trace.NewStore(dir)

	completedLog := trace.New("T1-0-aaaaaaaa", "PLAN1", "T1", "CA", "custom", "medium", nil, nil, 0, 0, trace.TaskContent{})
	require.NoError(t, store.Write(completedLog))
	require.NoError(t, store.TransitionState("T1-0-aaaaaaaa", trace.StateWaiting, trace.StateRunning, "x", 0))
	require.NoError(t, store.RecordResult("T1-0-aaaaaaaa", map[string]interface{}{"score": 88}, 2.0, nil))
	require.NoError(t, store.TransitionState("T1-0-aaaaaaaa", trace.StateRunning, trace.StateCompleted, "done", 0))

	failedLog := trace.New("T2-1-bbbbbbbb", "PLAN1", "T2", "WA", "custom", "medium", nil, nil, 0, 0, trace.TaskContent{})
	require.NoError(t, store.Write(failedLog))
	require.NoError(t, store.TransitionState("T2-1-bbbbbbbb", trace.StateWaiting, trace.StateTimeout, "exhausted retries", 0))

	logger := NewEvalLogger(dir)
	summary := logger.BuildSummary("PLAN1", "partial_success", map[string]string{
		"T1": "T1-0-aaaaaaaa",
		"T2": "T2-1-bbbbbbbb",
	}, store)

	assert.Equal(t, 2, summary.TotalTasks)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "PLAN1", summary.PlanID)

	require.NoError(t, logger.WriteRun(summary))
	assert.FileExists(t, filepath.Join(dir, "PLAN1_run.json"))
}

func TestBuildSummaryMissingTraceIsUnknown(t *testing.T) {
	dir := t.TempDir()
	store := trace.NewStore(dir)
	logger := NewEvalLogger(dir)

	summary := logger.BuildSummary("PLAN2", "failure", map[string]string{"T1": "does-not-exist-0-ffffffff"}, store)
	require.Len(t, summary.Tasks, 1)
	assert.Equal(t, "unknown", summary.Tasks[0].Status)
}
