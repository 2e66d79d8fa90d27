package alert

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/postbox"
)

func scorePtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func taskResultEnvelope(agent string, content map[string]interface{}) envelope.Envelope {
	return envelope.Envelope{
		SenderID: agent,
		TaskID:   "T1",
		Payload:  envelope.Payload{Type: envelope.TypeTaskResult, Content: content},
	}
}

func TestEvaluateMatchesScoreBelowRule(t *testing.T) {
	policy := &Policy{Rules: []Rule{
		{
			Name:      "low_score",
			Enabled:   true,
			Condition: Condition{Type: "task_result", Agent: "*", ScoreBelow: scorePtr(50)},
			Action:    Action{Notify: "console_log"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 20}))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "low_score", matched[0].Name)
}

func TestEvaluateScoreAboveThresholdDoesNotMatch(t *testing.T) {
	policy := &Policy{Rules: []Rule{
		{
			Name:      "low_score",
			Enabled:   true,
			Condition: Condition{Type: "task_result", Agent: "*", ScoreBelow: scorePtr(50)},
			Action:    Action{Notify: "console_log"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 90}))
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestEvaluateDisabledRuleNeverMatches(t *testing.T) {
	policy := &Policy{Rules: []Rule{
		{
			Name:      "low_score",
			Enabled:   false,
			Condition: Condition{Type: "task_result", Agent: "*", ScoreBelow: scorePtr(50)},
			Action:    Action{Notify: "console_log"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 1}))
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestEvaluateAgentFilterRestrictsMatch(t *testing.T) {
	policy := &Policy{Rules: []Rule{
		{
			Name:      "wa_only",
			Enabled:   true,
			Condition: Condition{Type: "task_result", Agent: "WA", ScoreBelow: scorePtr(100)},
			Action:    Action{Notify: "console_log"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 1}))
	require.NoError(t, err)
	assert.Empty(t, matched)

	matched, err = e.Evaluate(taskResultEnvelope("WA", map[string]interface{}{"score": 1}))
	require.NoError(t, err)
	assert.Len(t, matched, 1)
}

func TestEvaluateErrorRuleRequiresRetryCountThreshold(t *testing.T) {
	policy := &Policy{Rules: []Rule{
		{
			Name:      "repeated_failures",
			Enabled:   true,
			Condition: Condition{Type: "error", Agent: "*", RetryCount: intPtr(2)},
			Action:    Action{Notify: "console_log"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	env := envelope.Envelope{
		SenderID:   "CC",
		TaskID:     "T1",
		RetryCount: 1,
		Payload:    envelope.Payload{Type: envelope.TypeError, Content: map[string]interface{}{"error": "boom"}},
	}
	matched, err := e.Evaluate(env)
	require.NoError(t, err)
	assert.Empty(t, matched)

	env.RetryCount = 3
	matched, err = e.Evaluate(env)
	require.NoError(t, err)
	assert.Len(t, matched, 1)
}

func TestEvaluateNoPolicyNeverMatches(t *testing.T) {
	e := NewEvaluator(nil, NewNotifier(nil, nil), nil)
	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 1}))
	require.NoError(t, err)
	assert.Nil(t, matched)
}

func TestEvaluateHumanNotificationWritesInbox(t *testing.T) {
	pb := postbox.New(t.TempDir())
	policy := &Policy{Rules: []Rule{
		{
			Name:      "low_score",
			Enabled:   true,
			Condition: Condition{Type: "task_result", Agent: "*", ScoreBelow: scorePtr(50)},
			Action:    Action{Notify: "human", Message: "score dropped"},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(pb, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 10}))
	require.NoError(t, err)
	require.Len(t, matched, 1)

	inbox, err := pb.ReadInbox("HUMAN")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, envelope.TypeAlert, inbox[0].Type)
}

func TestEvaluateWebhookNotificationPosts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	policy := &Policy{Rules: []Rule{
		{
			Name:      "webhook_alert",
			Enabled:   true,
			Condition: Condition{Type: "task_result", Agent: "*", ScoreBelow: scorePtr(50)},
			Action:    Action{Notify: "webhook", URL: srv.URL},
		},
	}}
	e := NewEvaluator(policy, NewNotifier(nil, nil), nil)

	matched, err := e.Evaluate(taskResultEnvelope("CA", map[string]interface{}{"score": 10}))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, 1, hits)
}

func TestEvaluateWebhook4xxDoesNotRetry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(nil, nil)
	err := n.NotifyWebhook(Action{URL: srv.URL}, map[string]interface{}{"name": "x"})
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}
