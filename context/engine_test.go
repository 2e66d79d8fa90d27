package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFromTaskResultSetsStatusAndScore(t *testing.T) {
	e := New(nil)
	e.UpdateFromTaskResult("T1", map[string]interface{}{
		"status": "success",
		"score":  92,
	})

	status, ok := e.Get("T1_status")
	require.True(t, ok)
	assert.Equal(t, "success", status)

	score, ok := e.Get("T1_score")
	require.True(t, ok)
	assert.Equal(t, 92, score)

	last, ok := e.Get("last_score")
	require.True(t, ok)
	assert.Equal(t, 92, last)

	completed, ok := e.Get("T1_completed")
	require.True(t, ok)
	assert.Equal(t, true, completed)
}

func TestUpdateFromTaskResultAppliesContextUpdates(t *testing.T) {
	e := New(nil)
	e.UpdateFromTaskResult("T1", map[string]interface{}{
		"status": "success",
		"context_updates": map[string]interface{}{
			"region": "us-east",
		},
	})
	v, ok := e.Get("region")
	require.True(t, ok)
	assert.Equal(t, "us-east", v)
}

func TestEvaluateConditionsNoGuardsAlwaysRuns(t *testing.T) {
	e := New(nil)
	ok, reason := e.EvaluateConditions("T1", "", "")
	assert.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestEvaluateConditionsWhenFails(t *testing.T) {
	e := New(map[string]interface{}{"score": 10})
	ok, reason := e.EvaluateConditions("T1", "score > 50", "")
	assert.False(t, ok)
	assert.Contains(t, reason, "when condition failed")
}

func TestEvaluateConditionsUnlessBlocks(t *testing.T) {
	e := New(map[string]interface{}{"failed": true})
	ok, reason := e.EvaluateConditions("T1", "", "failed")
	assert.False(t, ok)
	assert.Contains(t, reason, "unless condition failed")
}

func TestEvaluateConditionsLogsEveryCall(t *testing.T) {
	e := New(nil)
	e.EvaluateConditions("T1", "", "")
	e.EvaluateConditions("T2", "1 > 2", "")
	log := e.EvaluationLog()
	require.Len(t, log, 2)
	assert.True(t, log[0].FinalDecision)
	assert.False(t, log[1].FinalDecision)
}

func TestEvaluateConditionsInvalidExpressionIsSkip(t *testing.T) {
	e := New(nil)
	ok, reason := e.EvaluateConditions("T1", "undefined_var", "")
	assert.False(t, ok)
	assert.Contains(t, reason, "condition evaluation error")
}
