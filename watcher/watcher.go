// Package watcher implements the inbox watcher (C7): a polling loop
// over the orchestrator's own inbox that hands each unseen envelope to
// the router and the alert evaluator in turn.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
	"github.com/arch-labs/orchestrator/postbox"
)

// Handler processes one inbound envelope. Router and the alert
// evaluator both implement this so the watcher can hand an envelope to
// each without depending on their concrete types.
type Handler interface {
	Handle(env envelope.Envelope) error
}

// Watcher polls an agent's inbox (normally core.AgentOrchestrator's)
// at a fixed interval, dedupes by trace_id+task_id, and dispatches
// each unseen envelope to router then to the alert evaluator.
type Watcher struct {
	pb       *postbox.Postbox
	agent    string
	interval time.Duration
	logger   core.Logger

	router Handler
	alerts Handler

	mu   sync.Mutex
	seen map[string]bool

	watchDir string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger attaches a logger.
func WithLogger(l core.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithFsnotify enables the fsnotify fast path: a change event on dir
// triggers an immediate poll instead of waiting for the next tick.
// Purely an optimization — correctness never depends on it, since the
// ticking poll loop runs regardless.
func WithFsnotify(dir string) Option { return func(w *Watcher) { w.watchDir = dir } }

// New builds a Watcher over agent's inbox.
func New(pb *postbox.Postbox, agent string, interval time.Duration, router, alerts Handler, opts ...Option) *Watcher {
	w := &Watcher{
		pb:       pb,
		agent:    agent,
		interval: interval,
		logger:   core.NoOpLogger{},
		router:   router,
		alerts:   alerts,
		seen:     map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func dedupeKey(env envelope.Envelope) string {
	return env.TraceID + "|" + env.TaskID
}

// Run blocks, polling until ctx is cancelled. It never returns an
// error: per-envelope handler failures are logged and the loop
// continues to the next envelope.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var notify chan fsnotify.Event
	if w.watchDir != "" {
		if fw, err := fsnotify.NewWatcher(); err == nil {
			defer fw.Close()
			if err := fw.Add(w.watchDir); err == nil {
				notify = fw.Events
			} else {
				w.logger.Warn("fsnotify add failed, falling back to polling only", map[string]interface{}{"dir": w.watchDir, "error": err.Error()})
			}
		} else {
			w.logger.Warn("fsnotify unavailable, falling back to polling only", map[string]interface{}{"error": err.Error()})
		}
	}

	w.poll()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped", map[string]interface{}{"agent": w.agent})
			return nil
		case <-ticker.C:
			w.poll()
		case _, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	list, err := w.pb.ReadInbox(w.agent)
	if err != nil {
		w.logger.Error("failed to read inbox", map[string]interface{}{"agent": w.agent, "error": err.Error()})
		return
	}

	for _, env := range list {
		key := dedupeKey(env)

		w.mu.Lock()
		if w.seen[key] {
			w.mu.Unlock()
			continue
		}
		w.seen[key] = true
		w.mu.Unlock()

		w.dispatch(env)
	}
}

func (w *Watcher) dispatch(env envelope.Envelope) {
	if w.router != nil {
		if err := w.router.Handle(env); err != nil {
			w.logger.Error("router failed to handle envelope", map[string]interface{}{"trace_id": env.TraceID, "task_id": env.TaskID, "error": err.Error()})
		}
	}
	if w.alerts != nil {
		if err := w.alerts.Handle(env); err != nil {
			w.logger.Error("alert evaluator failed to handle envelope", map[string]interface{}{"trace_id": env.TraceID, "task_id": env.TaskID, "error": err.Error()})
		}
	}
}
