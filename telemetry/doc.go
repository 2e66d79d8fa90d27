// Package telemetry provides the orchestrator's structured logger: a
// core.ComponentAwareLogger implementation that writes text locally and
// JSON under Kubernetes, with rate-limited error bursts.
//
// Unlike a singleton logging package, telemetry.Logger is a plain value
// constructed explicitly by whatever assembles the runner, watcher,
// router, and notifier, so each can be given its own component name and,
// in tests, its own buffer.
package telemetry
