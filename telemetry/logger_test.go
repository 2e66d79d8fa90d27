package telemetry

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New("runner")
	logger.SetOutput(&buf)

	logger.Info("dispatching task", map[string]interface{}{"task_id": "T1"})

	out := buf.String()
	assert.Contains(t, out, "dispatching task")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[runner]")
	assert.Contains(t, out, "task_id=T1")
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New("router")
	logger.SetFormat("json")
	logger.SetOutput(&buf)

	logger.Warn("retry scheduled", map[string]interface{}{"attempt": 2})

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"component":"router"`)
	assert.Contains(t, out, `"message":"retry scheduled"`)
}

func TestLoggerDebugGatedByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("watcher")
	logger.SetOutput(&buf)
	logger.debug = false

	logger.Debug("polling inbox", nil)
	assert.Empty(t, buf.String())

	logger.SetLevel("DEBUG")
	logger.debug = true
	logger.Debug("polling inbox", nil)
	assert.Contains(t, buf.String(), "polling inbox")
}

func TestLoggerLevelFiltering(t *testing.T) {
	tests := []struct {
		configured   string
		call         string
		shouldAppear bool
	}{
		{"INFO", "INFO", true},
		{"ERROR", "WARN", false},
		{"WARN", "ERROR", true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New("alert")
		logger.SetLevel(tt.configured)
		logger.SetOutput(&buf)

		switch tt.call {
		case "INFO":
			logger.Info("x", nil)
		case "WARN":
			logger.Warn("x", nil)
		case "ERROR":
			logger.Error("x", nil)
		}
		if tt.shouldAppear {
			assert.NotEmpty(t, buf.String())
		} else {
			assert.Empty(t, buf.String())
		}
	}
}

func TestLoggerErrorRateLimiting(t *testing.T) {
	var buf bytes.Buffer
	logger := New("alert")
	logger.SetOutput(&buf)

	logger.Error("webhook failed", nil)
	require.Contains(t, buf.String(), "webhook failed")

	buf.Reset()
	logger.Error("webhook failed again", nil)
	assert.Empty(t, buf.String(), "second error within the rate limit window should be suppressed")

	logger.errorLimiter.lastTime = logger.errorLimiter.lastTime.Add(-2 * logger.errorLimiter.interval)
	buf.Reset()
	logger.Error("webhook failed a third time", nil)
	assert.Contains(t, buf.String(), "webhook failed a third time")
}

func TestLoggerWithComponentSharesConfig(t *testing.T) {
	var buf bytes.Buffer
	parent := New("runner")
	parent.SetFormat("json")
	parent.SetOutput(&buf)

	child := parent.WithComponent("router")
	child.Info("routed", nil)

	assert.Contains(t, buf.String(), `"component":"router"`)
}

func TestLoggerWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New("runner")
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "PLAN1-0-abcd1234")
	logger.InfoWithContext(ctx, "dispatched", nil)

	assert.Contains(t, buf.String(), "trace_id=PLAN1-0-abcd1234")
}

func TestLoggerEnvironmentVariables(t *testing.T) {
	origLevel := os.Getenv("ORCH_LOG_LEVEL")
	origFormat := os.Getenv("ORCH_LOG_FORMAT")
	origK8s := os.Getenv("KUBERNETES_SERVICE_HOST")
	t.Cleanup(func() {
		os.Setenv("ORCH_LOG_LEVEL", origLevel)
		os.Setenv("ORCH_LOG_FORMAT", origFormat)
		os.Setenv("KUBERNETES_SERVICE_HOST", origK8s)
	})

	os.Setenv("ORCH_LOG_LEVEL", "WARN")
	os.Setenv("ORCH_LOG_FORMAT", "")
	os.Setenv("KUBERNETES_SERVICE_HOST", "")
	logger := New("runner")
	assert.Equal(t, "WARN", logger.level)

	os.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	logger = New("runner")
	assert.Equal(t, "json", logger.format)
	if !strings.Contains(logger.format, "json") {
		t.Fatalf("expected json format under kubernetes")
	}
}
