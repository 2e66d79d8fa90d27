// Command orchestrator runs a single plan to completion: it loads a
// plan and its DAG, starts the inbox watcher in the background, drives
// the plan runner layer by layer, and exits with a status code a
// calling script can branch on.
//
// Usage:
//
//	orchestrator -plan plans/example.yaml \
//	  -phase-policy phase_policy.yaml -alert-policy alert_policy.yaml
//
// Environment variables (flags take precedence): ORCH_PLAN_PATH,
// ORCH_PHASE_POLICY_PATH, ORCH_ALERT_POLICY_PATH, ORCH_POSTBOX_ROOT,
// ORCH_LOGS_ROOT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arch-labs/orchestrator/alert"
	planctx "github.com/arch-labs/orchestrator/context"
	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/plan"
	"github.com/arch-labs/orchestrator/policy"
	"github.com/arch-labs/orchestrator/postbox"
	"github.com/arch-labs/orchestrator/router"
	"github.com/arch-labs/orchestrator/runner"
	"github.com/arch-labs/orchestrator/scoring"
	"github.com/arch-labs/orchestrator/telemetry"
	"github.com/arch-labs/orchestrator/trace"
	"github.com/arch-labs/orchestrator/watcher"
)

// Exit codes per the runner front-end contract: 0 success, 1 plan-level
// failure, 2 invalid plan, 3 I/O or policy load failure.
const (
	exitSuccess     = 0
	exitPlanFailure = 1
	exitInvalidPlan = 2
	exitIOOrPolicy  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		planPath    = flag.String("plan", envDefault(core.EnvPlanPath, ""), "path to the plan YAML document (required)")
		phasePolicy = flag.String("phase-policy", envDefault(core.EnvPhasePolicy, ""), "path to phase_policy.yaml (optional)")
		alertPolicy = flag.String("alert-policy", envDefault(core.EnvAlertPolicy, ""), "path to alert_policy.yaml (optional)")
		postboxRoot = flag.String("postbox-root", "", "override the postbox root directory")
		logsRoot    = flag.String("logs-root", "", "override the logs root directory")
	)
	flag.Parse()

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "orchestrator: -plan is required")
		return exitInvalidPlan
	}

	logger := telemetry.New("orchestrator")

	_, shutdownTracing, err := telemetry.InitTracing("orchestrator")
	if err != nil {
		logger.Warn("tracing disabled: failed to initialize span exporter", map[string]interface{}{"error": err.Error()})
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn("failed to flush trace exporter on shutdown", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	var opts []core.Option
	opts = append(opts, core.WithLogger(logger))
	if *postboxRoot != "" {
		opts = append(opts, core.WithPostboxRoot(*postboxRoot))
	}
	if *logsRoot != "" {
		opts = append(opts, core.WithLogsRoot(*logsRoot))
	}
	cfg, err := core.NewRunConfig(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: configuration error: %v\n", err)
		return exitIOOrPolicy
	}

	knownAgents, err := listAgents(cfg.PostboxRoot)
	if err != nil {
		logger.Error("failed to list known agents from postbox root", map[string]interface{}{"error": err.Error()})
		return exitIOOrPolicy
	}

	p, err := plan.Load(*planPath, knownAgents)
	if err != nil {
		logger.Error("failed to load plan", map[string]interface{}{"plan_path": *planPath, "error": err.Error()})
		return exitInvalidPlan
	}

	dag, err := plan.Build(p)
	if err != nil {
		logger.Error("failed to build plan DAG", map[string]interface{}{"plan_id": p.PlanID, "error": err.Error()})
		return exitInvalidPlan
	}
	if report := dag.ValidateIntegrity(); !report.Valid {
		logger.Error("plan DAG failed integrity validation", map[string]interface{}{"plan_id": p.PlanID, "errors": report.Errors})
		return exitInvalidPlan
	}

	phasePolicyDoc, err := policy.Load(*phasePolicy)
	if err != nil {
		logger.Error("failed to load phase policy", map[string]interface{}{"path": *phasePolicy, "error": err.Error()})
		return exitIOOrPolicy
	}
	alertPolicyDoc, err := alert.LoadPolicy(*alertPolicy)
	if err != nil {
		logger.Error("failed to load alert policy", map[string]interface{}{"path": *alertPolicy, "error": err.Error()})
		return exitIOOrPolicy
	}

	pb := postbox.New(cfg.PostboxRoot, postbox.WithPollInterval(cfg.PollInterval), postbox.WithLogger(logger.WithComponent("postbox")))
	traces := trace.NewStore(filepath.Join(cfg.LogsRoot, "tasks"))
	tracer := trace.NewTracer()
	validator := envelope.NewValidator(core.AgentOrchestrator, knownAgents)
	scoreTracker := scoring.NewTracker(cfg.LogsRoot)
	evalLogger := scoring.NewEvalLogger(filepath.Join(cfg.LogsRoot, "runs"))

	rtr := router.New(pb, phasePolicyDoc, logger.WithComponent("router"), router.WithTracker(scoreTracker))
	notifier := alert.NewNotifier(pb, logger.WithComponent("alert"))
	alertLedger := alert.NewLedger(cfg.LogsRoot)
	evaluator := alert.NewEvaluator(alertPolicyDoc, notifier, logger.WithComponent("alert"), alert.WithLedger(alertLedger))

	watchDir := filepath.Join(cfg.PostboxRoot, core.AgentOrchestrator)
	w := watcher.New(pb, core.AgentOrchestrator, cfg.WatcherInterval, rtr, evaluator,
		watcher.WithLogger(logger.WithComponent("watcher")),
		watcher.WithFsnotify(watchDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		_ = w.Run(ctx)
	}()

	ctxEngine := planctx.New(p.Context)
	run := runner.New(cfg, pb, traces, tracer, validator)

	result, err := run.Run(ctx, p, dag, ctxEngine)
	if err != nil {
		logger.Error("plan run failed to start", map[string]interface{}{"plan_id": p.PlanID, "error": err.Error()})
		stop()
		<-watcherDone
		return exitIOOrPolicy
	}

	stop()
	select {
	case <-watcherDone:
	case <-time.After(2 * cfg.WatcherInterval):
	}

	summary := evalLogger.BuildSummary(p.PlanID, result.FinalStatus, result.TraceIDs, traces)
	if err := evalLogger.WriteRun(summary); err != nil {
		logger.Warn("failed to write run summary", map[string]interface{}{"plan_id": p.PlanID, "error": err.Error()})
	}

	fmt.Printf("plan %s finished: %s (completed=%d failed=%d skipped=%d)\n",
		result.PlanID, result.FinalStatus, len(result.CompletedTasks), len(result.FailedTasks), len(result.SkippedTasks))
	fmt.Printf("  task traces:   %s\n", filepath.Join(cfg.LogsRoot, "tasks"))
	fmt.Printf("  run summary:   %s\n", filepath.Join(cfg.LogsRoot, "runs", p.PlanID+"_run.json"))
	fmt.Printf("  agent scores:  %s\n", filepath.Join(cfg.LogsRoot, "agent_scores.json"))
	fmt.Printf("  alert ledger:  %s\n", filepath.Join(cfg.LogsRoot, "alerts_triggered.json"))

	switch result.FinalStatus {
	case "success":
		return exitSuccess
	default:
		return exitPlanFailure
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// listAgents enumerates the postbox root's immediate subdirectories,
// one per known agent, tolerating a root that doesn't exist yet (a
// fresh deployment creates agent directories lazily on first write).
func listAgents(postboxRoot string) ([]string, error) {
	entries, err := os.ReadDir(postboxRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	agents := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			agents = append(agents, e.Name())
		}
	}
	return agents, nil
}
