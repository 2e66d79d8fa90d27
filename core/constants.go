package core

import "time"

// Environment variables read by the orchestrator's configuration layer
// (mirrors the teacher's three-layer precedence: defaults, then env vars,
// then functional options).
const (
	EnvLogLevel       = "ORCH_LOG_LEVEL"
	EnvLogFormat      = "ORCH_LOG_FORMAT"
	EnvDebug          = "ORCH_DEBUG"
	EnvPostboxRoot    = "ORCH_POSTBOX_ROOT"
	EnvLogsRoot       = "ORCH_LOGS_ROOT"
	EnvPlanPath       = "ORCH_PLAN_PATH"
	EnvPhasePolicy    = "ORCH_PHASE_POLICY_PATH"
	EnvAlertPolicy    = "ORCH_ALERT_POLICY_PATH"
	EnvKubernetesHost = "KUBERNETES_SERVICE_HOST"
)

// Known reserved agent identifiers. ORCHESTRATOR and HUMAN have special
// meaning; ordinary worker agents are addressed by the plan's `agent`
// field and are not enumerated here.
const (
	AgentOrchestrator = "ARCH"
	AgentHuman        = "HUMAN"
)

// Defaults matching the original implementation's constants
// (tools/arch/plan_runner.py RESPONSE_TIMEOUT / RETRY_DELAY).
const (
	DefaultResponseTimeout = 60 * time.Second
	DefaultRetryDelay      = 5 * time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultWatcherInterval = 1 * time.Second
	DefaultWebhookTimeout  = 10 * time.Second
	DefaultRetryLimit      = 3
)

// IDCharClassPattern enforces the `^[A-Z0-9_-]+$` character class shared
// by plan_id and task_id (spec.md §3, §4.1).
const IDCharClassPattern = `^[A-Z0-9_-]+$`

// ProtocolVersionPattern enforces `MAJOR.MINOR` (spec.md §3).
const ProtocolVersionPattern = `^\d+\.\d+$`
