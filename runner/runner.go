// Package runner implements the plan execution engine (C6): layer by
// layer, maximum-parallelism dispatch of tasks to agent postboxes,
// complete with conditional guards, retries, and fallback-agent
// dispatch once a task's retries are exhausted.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	planctx "github.com/arch-labs/orchestrator/context"
	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/plan"
	"github.com/arch-labs/orchestrator/postbox"
	"github.com/arch-labs/orchestrator/trace"
)

// Result is the outcome of running a full plan.
type Result struct {
	PlanID         string
	FinalStatus    string // success, partial_success, failure
	CompletedTasks []string
	FailedTasks    []string
	SkippedTasks   []string

	// TraceIDs maps each task_id to the trace_id of its execution log,
	// letting a caller (the evaluation logger, C11) pull per-task
	// scores back out of the trace store once the run is done.
	TraceIDs map[string]string
}

// Runner executes a plan's DAG against a shared postbox, recording
// per-task execution traces and evolving plan context as results
// arrive.
type Runner struct {
	cfg       *core.RunConfig
	pb        *postbox.Postbox
	traces    *trace.Store
	tracer    *trace.Tracer
	validator *envelope.Validator
	logger    core.Logger

	// ctxMu serializes all access to the shared plan context engine:
	// tasks within a layer run concurrently but guard evaluation and
	// context updates must see a consistent snapshot (spec's
	// concurrency model requires the context engine to serialize
	// updates from completed tasks).
	ctxMu sync.Mutex

	otelTracer   oteltrace.Tracer
	taskOutcomes metric.Int64Counter
	dispatchTime metric.Float64Histogram
}

// New builds a Runner from its collaborators. Tracing spans and metric
// instruments are taken from the process-wide otel providers; when the
// caller never installs an exporting provider (telemetry.InitTracing),
// they're the SDK's no-op defaults and cost nothing beyond the call.
func New(cfg *core.RunConfig, pb *postbox.Postbox, traces *trace.Store, tracer *trace.Tracer, validator *envelope.Validator) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	meter := otel.Meter("github.com/arch-labs/orchestrator/runner")
	counter, err := meter.Int64Counter("orchestrator.tasks.outcomes",
		metric.WithDescription("count of task terminal outcomes by result"))
	if err != nil {
		logger.Warn("failed to create task outcome counter", map[string]interface{}{"error": err.Error()})
	}
	hist, err := meter.Float64Histogram("orchestrator.tasks.dispatch_duration_seconds",
		metric.WithDescription("seconds from dispatch to terminal state per task attempt"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create dispatch duration histogram", map[string]interface{}{"error": err.Error()})
	}

	return &Runner{
		cfg: cfg, pb: pb, traces: traces, tracer: tracer, validator: validator, logger: logger,
		otelTracer:   otel.Tracer("github.com/arch-labs/orchestrator/runner"),
		taskOutcomes: counter,
		dispatchTime: hist,
	}
}

// Run executes every layer of dag in turn, tasks within a layer
// concurrently, and returns the aggregate result once every task has
// reached a terminal state.
func (r *Runner) Run(ctx context.Context, p *plan.Plan, dag *plan.DAG, ctxEngine *planctx.Engine) (*Result, error) {
	layers := dag.Layers()
	taskIndex := make(map[string]int, len(dag.ExecutionOrder))
	for i, id := range dag.ExecutionOrder {
		taskIndex[id] = i
	}

	result := &Result{PlanID: p.PlanID, TraceIDs: map[string]string{}}
	var mu sync.Mutex

	for layerNum, layer := range layers {
		r.logger.Info("starting execution layer", map[string]interface{}{"layer": layerNum, "tasks": layer})

		var wg sync.WaitGroup
		for _, taskID := range layer {
			taskID := taskID
			node := dag.Nodes[taskID]
			parallel := otherTasks(layer, taskID)

			wg.Add(1)
			go func() {
				defer wg.Done()
				traceID, _ := trace.GenerateTraceID(p.PlanID, taskIndex[taskID])
				outcome := r.runTaskWithTraceID(ctx, p.PlanID, node, traceID, layerNum, parallel, ctxEngine)

				mu.Lock()
				defer mu.Unlock()
				result.TraceIDs[taskID] = traceID
				switch outcome {
				case outcomeCompleted:
					result.CompletedTasks = append(result.CompletedTasks, taskID)
				case outcomeSkipped:
					result.SkippedTasks = append(result.SkippedTasks, taskID)
				case outcomeFailed:
					result.FailedTasks = append(result.FailedTasks, taskID)
				}
			}()
		}
		wg.Wait()
	}

	switch {
	case len(result.FailedTasks) == 0:
		result.FinalStatus = "success"
	case len(result.CompletedTasks) > 0 || len(result.SkippedTasks) > 0:
		result.FinalStatus = "partial_success"
	default:
		result.FinalStatus = "failure"
	}
	return result, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeSkipped
	outcomeFailed
)

func outcomeLabel(o outcome) string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

func otherTasks(layer []string, exclude string) []string {
	out := make([]string, 0, len(layer)-1)
	for _, id := range layer {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func (r *Runner) runTaskWithTraceID(ctx context.Context, planID string, node *plan.Node, traceID string, layerNum int, parallelTasks []string, ctxEngine *planctx.Engine) (result outcome) {
	if traceID == "" {
		r.logger.Error("failed to generate trace_id", map[string]interface{}{"task_id": node.TaskID})
		return outcomeFailed
	}

	ctx, span := r.otelTracer.Start(ctx, "task.dispatch", oteltrace.WithAttributes(
		attribute.String("task_id", node.TaskID),
		attribute.String("agent", node.Agent),
		attribute.String("plan_id", planID),
		attribute.Int("layer", layerNum),
	))
	spanStart := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcomeLabel(result)))
		span.End()
		if r.taskOutcomes != nil {
			r.taskOutcomes.Add(ctx, 1, metric.WithAttributes(
				attribute.String("agent", node.Agent),
				attribute.String("outcome", outcomeLabel(result)),
			))
		}
		if r.dispatchTime != nil {
			r.dispatchTime.Record(ctx, time.Since(spanStart).Seconds(), metric.WithAttributes(
				attribute.String("agent", node.Agent),
			))
		}
	}()

	log := trace.New(traceID, planID, node.TaskID, node.Agent, node.TaskType, string(node.Priority),
		node.Dependencies, parallelTasks, layerNum, layerNum, trace.TaskContent{
			Action:       node.Content.Action,
			Parameters:   node.Content.Parameters,
			Requirements: node.Content.Requirements,
			InputFiles:   node.Content.InputFiles,
			OutputFiles:  node.Content.OutputFiles,
		})
	if err := r.traces.Write(log); err != nil {
		r.logger.Error("failed to write task log", map[string]interface{}{"task_id": node.TaskID, "error": err.Error()})
	}
	r.tracer.Record(trace.Event{TraceID: traceID, TaskID: node.TaskID, Agent: node.Agent, FromState: trace.StatePending, ToState: trace.StateWaiting})

	_ = r.traces.TransitionState(traceID, trace.StateWaiting, trace.StateReady, "all dependencies satisfied", 0)
	r.tracer.Record(trace.Event{TraceID: traceID, TaskID: node.TaskID, Agent: node.Agent, FromState: trace.StateWaiting, ToState: trace.StateReady})

	if ctxEngine != nil && (node.When != "" || node.Unless != "") {
		r.ctxMu.Lock()
		should, reason := ctxEngine.EvaluateConditions(node.TaskID, node.When, node.Unless)
		r.ctxMu.Unlock()
		if !should {
			r.logger.Info("skipping task due to condition", map[string]interface{}{"task_id": node.TaskID, "reason": reason})
			_ = r.traces.RecordSkip(traceID, reason)
			r.tracer.Record(trace.Event{TraceID: traceID, TaskID: node.TaskID, Agent: node.Agent, FromState: trace.StateReady, ToState: trace.StateSkippedDueToCondition, Reason: reason})
			return outcomeSkipped
		}
	}

	maxRetries := node.MaxRetries
	if maxRetries <= 0 {
		maxRetries = r.cfg.DefaultRetryLimit
	}
	retryDelay := r.cfg.RetryDelay
	if node.RetryDelay != nil {
		retryDelay = time.Duration(*node.RetryDelay) * time.Second
	}
	timeout := r.cfg.ResponseTimeout
	if node.Timeout != nil {
		timeout = time.Duration(*node.Timeout) * time.Second
	}

	taskStart := time.Now()
	fromState := trace.StateReady

	for attempt := 0; attempt < maxRetries; attempt++ {
		_ = r.traces.TransitionState(traceID, fromState, trace.StateRunning, fmt.Sprintf("starting attempt %d", attempt+1), attempt)
		r.tracer.Record(trace.Event{TraceID: traceID, TaskID: node.TaskID, Agent: node.Agent, FromState: fromState, ToState: trace.StateRunning})

		result, err := r.dispatchAndWait(ctx, node.Task, node.Agent, traceID, planID, attempt, timeout)
		if err == nil {
			r.recordSuccess(traceID, node.TaskID, node.Agent, result, taskStart, ctxEngine)
			return outcomeCompleted
		}

		duration := time.Since(taskStart).Seconds()
		_ = r.traces.AddRetry(traceID, attempt+1, "timeout", err.Error(), duration)

		fromState = trace.StateRunning
		if attempt+1 < maxRetries {
			_ = r.traces.TransitionState(traceID, trace.StateRunning, trace.StateRetrying, fmt.Sprintf("retrying after failure (attempt %d)", attempt+2), attempt+1)
			fromState = trace.StateRetrying
			select {
			case <-ctx.Done():
				return outcomeFailed
			case <-time.After(retryDelay):
			}
		}
	}

	if node.FallbackAgent != "" {
		r.logger.Warn("retries exhausted, attempting fallback agent", map[string]interface{}{"task_id": node.TaskID, "fallback_agent": node.FallbackAgent})
		fallbackTask := node.Task
		fallbackTask.Agent = node.FallbackAgent
		result, err := r.dispatchAndWait(ctx, fallbackTask, node.FallbackAgent, traceID, planID, maxRetries, timeout)
		if err == nil {
			r.recordSuccess(traceID, node.TaskID, node.FallbackAgent, result, taskStart, ctxEngine)
			return outcomeCompleted
		}
		_ = r.traces.AddRetry(traceID, maxRetries+1, "fallback_failed", err.Error(), time.Since(taskStart).Seconds())
	}

	_ = r.traces.TransitionState(traceID, trace.StateRunning, trace.StateTimeout, "max retries exceeded", 0)
	r.tracer.Record(trace.Event{TraceID: traceID, TaskID: node.TaskID, Agent: node.Agent, FromState: trace.StateRunning, ToState: trace.StateTimeout})
	r.logger.Error("task failed after exhausting retries", map[string]interface{}{"task_id": node.TaskID, "max_retries": maxRetries})
	return outcomeFailed
}

func (r *Runner) dispatchAndWait(ctx context.Context, t plan.Task, agent, traceID, planID string, retryCount int, timeout time.Duration) (*envelope.Envelope, error) {
	env, err := buildTaskAssignment(t, agent, traceID, retryCount)
	if err != nil {
		return nil, core.NewError("runner.dispatch", core.ErrInvalidEnvelope, planID, t.TaskID, err)
	}
	if ok, errs := r.validator.Validate(env, envelope.Outbound); !ok {
		return nil, core.NewError("runner.dispatch", core.ErrInvalidEnvelope, planID, t.TaskID, fmt.Errorf("%v", errs))
	}
	if err := r.pb.AppendToInbox(agent, *env); err != nil {
		return nil, err
	}
	return r.pb.WaitForReply(ctx, agent, traceID, timeout)
}

func (r *Runner) recordSuccess(traceID, taskID, agent string, result *envelope.Envelope, taskStart time.Time, ctxEngine *planctx.Engine) {
	duration := time.Since(taskStart).Seconds()
	_ = r.traces.RecordResult(traceID, result.Payload.Content, duration, result)
	_ = r.traces.TransitionState(traceID, trace.StateRunning, trace.StateCompleted, "task executed successfully", 0)
	r.tracer.Record(trace.Event{TraceID: traceID, TaskID: taskID, Agent: agent, FromState: trace.StateRunning, ToState: trace.StateCompleted})

	if ctxEngine != nil {
		r.ctxMu.Lock()
		ctxEngine.UpdateFromTaskResult(taskID, result.Payload.Content)
		r.ctxMu.Unlock()
	}
}
