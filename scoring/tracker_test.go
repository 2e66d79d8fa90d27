package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arch-labs/orchestrator/envelope"
)

func TestAppendAndLastN(t *testing.T) {
	tr := NewTracker(t.TempDir())

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Append(Entry{AgentID: "CA", TaskID: "T1"}))
	}
	require.NoError(t, tr.Append(Entry{AgentID: "WA", TaskID: "T2"}))

	last, err := tr.LastN("CA", 10)
	require.NoError(t, err)
	assert.Len(t, last, 3)

	last, err = tr.LastN("WA", 10)
	require.NoError(t, err)
	assert.Len(t, last, 1)
}

func TestLastNRespectsLimitAndOrder(t *testing.T) {
	tr := NewTracker(t.TempDir())
	for i := 0; i < 5; i++ {
		score := float64(i)
		require.NoError(t, tr.Append(Entry{AgentID: "CA", TaskID: "T", Score: &score}))
	}

	last, err := tr.LastN("CA", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 4.0, *last[0].Score)
	assert.Equal(t, 3.0, *last[1].Score)
}

func TestRollingSummaryComputesAvgAndSuccessRate(t *testing.T) {
	tr := NewTracker(t.TempDir())
	success := true
	failure := false
	s1, s2 := 80.0, 60.0

	require.NoError(t, tr.Append(Entry{AgentID: "CA", TaskID: "T1", Score: &s1, Success: &success}))
	require.NoError(t, tr.Append(Entry{AgentID: "CA", TaskID: "T2", Score: &s2, Success: &failure}))

	summary, err := tr.RollingSummary("CA", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	require.NotNil(t, summary.AvgScore)
	assert.Equal(t, 70.0, *summary.AvgScore)
	require.NotNil(t, summary.SuccessRate)
	assert.Equal(t, 0.5, *summary.SuccessRate)
}

func TestRollingSummaryEmptyForUnknownAgent(t *testing.T) {
	tr := NewTracker(t.TempDir())
	summary, err := tr.RollingSummary("NOBODY", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
	assert.Nil(t, summary.AvgScore)
}

func TestRecordFromResultExtractsContentFields(t *testing.T) {
	tr := NewTracker(t.TempDir())
	env := envelope.Envelope{
		SenderID: "CA",
		TaskID:   "T1",
		TraceID:  "PLAN1-0-aaaaaaaa",
		Payload: envelope.Payload{
			Type: envelope.TypeTaskResult,
			Content: map[string]interface{}{
				"success":      true,
				"score":        95,
				"duration_sec": 1.5,
				"notes":        "looks good",
			},
		},
	}
	require.NoError(t, tr.RecordFromResult(env, PlanIDFromTraceID(env.TraceID)))

	last, err := tr.LastN("CA", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "PLAN1", last[0].PlanID)
	require.NotNil(t, last[0].Score)
	assert.Equal(t, 95.0, *last[0].Score)
	assert.Equal(t, "looks good", last[0].Notes)
}

func TestPlanIDFromTraceID(t *testing.T) {
	assert.Equal(t, "PLAN1", PlanIDFromTraceID("PLAN1-0-aaaaaaaa"))
	assert.Equal(t, "MULTI-PART-PLAN", PlanIDFromTraceID("MULTI-PART-PLAN-3-deadbeef"))
	assert.Equal(t, "", PlanIDFromTraceID("too-short"))
}
