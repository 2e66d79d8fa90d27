package postbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arch-labs/orchestrator/envelope"
)

func testEnvelope(taskID, traceID string) envelope.Envelope {
	return envelope.Envelope{
		Type:            envelope.TypeTaskAssignment,
		ProtocolVersion: "1.3",
		SenderID:        "ARCH",
		RecipientID:     "CA",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		TaskID:          taskID,
		TraceID:         traceID,
		Payload:         envelope.Payload{Type: envelope.TypeTaskAssignment, Content: map[string]interface{}{}},
	}
}

func TestAppendAndReadInbox(t *testing.T) {
	pb := New(t.TempDir())
	require.NoError(t, pb.AppendToInbox("CA", testEnvelope("T1", "TR1")))
	require.NoError(t, pb.AppendToInbox("CA", testEnvelope("T2", "TR2")))

	list, err := pb.ReadInbox("CA")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "T1", list[0].TaskID)
	assert.Equal(t, "T2", list[1].TaskID)
}

func TestReadMissingInboxIsEmpty(t *testing.T) {
	pb := New(t.TempDir())
	list, err := pb.ReadInbox("CA")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClearInbox(t *testing.T) {
	pb := New(t.TempDir())
	require.NoError(t, pb.AppendToInbox("CA", testEnvelope("T1", "TR1")))
	require.NoError(t, pb.ClearInbox("CA"))
	list, err := pb.ReadInbox("CA")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWaitForReplyFindsMatch(t *testing.T) {
	pb := New(t.TempDir(), WithPollInterval(10*time.Millisecond))
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = pb.AppendToOutbox("CA", testEnvelope("T1", "TR1"))
	}()

	env, err := pb.WaitForReply(context.Background(), "CA", "TR1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "TR1", env.TraceID)
}

func TestWaitForReplyTimesOut(t *testing.T) {
	pb := New(t.TempDir(), WithPollInterval(5*time.Millisecond))
	_, err := pb.WaitForReply(context.Background(), "CA", "NOPE", 20*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForReplyRespectsCancellation(t *testing.T) {
	pb := New(t.TempDir(), WithPollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := pb.WaitForReply(ctx, "CA", "NOPE", 5*time.Second)
	assert.Error(t, err)
}
