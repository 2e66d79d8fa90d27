package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arch-labs/orchestrator/core"
)

// Logger is the orchestrator's core.ComponentAwareLogger implementation.
// It is constructed explicitly (never via a package-level singleton) so
// the plan runner, inbox watcher, router, and alert notifier can each
// hold a differently-scoped logger while sharing one underlying sink.
type Logger struct {
	level     string
	debug     bool
	component string
	format    string
	output    io.Writer
	mu        *sync.RWMutex

	errorLimiter *RateLimiter
}

var _ core.ComponentAwareLogger = (*Logger)(nil)

// New builds a Logger for the given component name. Configuration
// priority: ORCH_LOG_LEVEL / ORCH_LOG_FORMAT / ORCH_DEBUG environment
// variables, then Kubernetes auto-detection for format, then defaults.
func New(component string) *Logger {
	level := os.Getenv(core.EnvLogLevel)
	if level == "" {
		level = "INFO"
	}
	debug := os.Getenv(core.EnvDebug) == "true" || strings.ToUpper(level) == "DEBUG"

	format := "text"
	if core.IsKubernetes() {
		format = "json"
	}
	if envFormat := os.Getenv(core.EnvLogFormat); envFormat != "" {
		format = envFormat
	}

	return &Logger{
		level:        strings.ToUpper(level),
		debug:        debug,
		component:    component,
		format:       format,
		output:       os.Stdout,
		mu:           &sync.RWMutex{},
		errorLimiter: NewRateLimiter(1 * time.Second),
	}
}

// WithComponent returns a logger for a different component sharing this
// logger's level, format, output, and rate limiter.
func (l *Logger) WithComponent(component string) core.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		level:        l.level,
		debug:        l.debug,
		component:    component,
		format:       l.format,
		output:       l.output,
		mu:           l.mu,
		errorLimiter: l.errorLimiter,
	}
}

func (l *Logger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *Logger) Error(msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("INFO", msg, withTraceID(ctx, fields))
}

func (l *Logger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("WARN", msg, withTraceID(ctx, fields))
}

func (l *Logger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}
	l.log("ERROR", msg, withTraceID(ctx, fields))
}

func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, withTraceID(ctx, fields))
}

func withTraceID(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	traceID, ok := ctx.Value(traceIDKey{}).(string)
	if !ok || traceID == "" {
		return fields
	}
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["trace_id"] = traceID
	return out
}

// traceIDKey is the context key used by callers that want log lines
// correlated to a plan trace_id. Exported via WithTraceID below.
type traceIDKey struct{}

// WithTraceID annotates a context so subsequent *WithContext log calls
// carry the plan's trace_id automatically.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func (l *Logger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.shouldLog(level) {
		return
	}
	timestamp := time.Now().Format(time.RFC3339)

	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *Logger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		if k != "timestamp" && k != "level" && k != "component" && k != "message" {
			entry[k] = v
		}
	}
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintln(l.output, string(data))
	}
}

func (l *Logger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		if v, ok := fields["trace_id"]; ok {
			fmt.Fprintf(&b, "trace_id=%v ", v)
		}
		if v, ok := fields["task_id"]; ok {
			fmt.Fprintf(&b, "task_id=%v ", v)
		}
		if v, ok := fields["error"]; ok {
			fmt.Fprintf(&b, "error=%q ", fmt.Sprintf("%v", v))
		}
		for k, v := range fields {
			if k == "trace_id" || k == "task_id" || k == "error" {
				continue
			}
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s\n", timestamp, level, l.component, msg, b.String())
}

func (l *Logger) shouldLog(level string) bool {
	levels := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	current, ok1 := levels[l.level]
	want, ok2 := levels[level]
	if !ok1 || !ok2 {
		return true
	}
	return want >= current
}

// SetOutput redirects where log lines are written. Intended for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetLevel changes the minimum level logged.
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = strings.ToUpper(level)
	l.debug = l.level == "DEBUG"
}

// SetFormat changes between "text" and "json".
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}
