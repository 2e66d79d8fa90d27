// Package postbox implements scoped, atomic read/write access to the
// per-agent inbox.json / outbox.json files that are the sole persisted
// channel between the orchestrator and its agents (C2).
package postbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arch-labs/orchestrator/core"
	"github.com/arch-labs/orchestrator/envelope"
)

// Postbox serializes all reads and writes to a root directory of
// per-agent inbox/outbox files. One Postbox is shared by every
// component that touches the filesystem (runner, router, notifier),
// since each agent's inbox may be written by more than one of them.
type Postbox struct {
	root string

	mu       sync.Mutex
	fileLock map[string]*sync.Mutex

	pollInterval time.Duration
	logger       core.Logger
}

// Option configures a Postbox.
type Option func(*Postbox)

// WithPollInterval overrides the default WaitForReply poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Postbox) { p.pollInterval = d }
}

// WithLogger attaches a logger for corrupt-file warnings.
func WithLogger(l core.Logger) Option {
	return func(p *Postbox) { p.logger = l }
}

// New builds a Postbox rooted at root, creating it lazily on first
// write.
func New(root string, opts ...Option) *Postbox {
	p := &Postbox{
		root:         root,
		fileLock:     map[string]*sync.Mutex{},
		pollInterval: core.DefaultPollInterval,
		logger:       core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postbox) lockFor(path string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.fileLock[path]
	if !ok {
		m = &sync.Mutex{}
		p.fileLock[path] = m
	}
	return m
}

func (p *Postbox) inboxPath(agent string) string  { return filepath.Join(p.root, agent, "inbox.json") }
func (p *Postbox) outboxPath(agent string) string { return filepath.Join(p.root, agent, "outbox.json") }

// ReadInbox returns the agent's current inbox list. A missing or
// corrupt file is treated as empty, matching the source's tolerant
// read path; corruption is logged, never returned as an error.
func (p *Postbox) ReadInbox(agent string) ([]envelope.Envelope, error) {
	return p.readList(p.inboxPath(agent))
}

// ReadOutbox returns the agent's current outbox list.
func (p *Postbox) ReadOutbox(agent string) ([]envelope.Envelope, error) {
	return p.readList(p.outboxPath(agent))
}

func (p *Postbox) readList(path string) ([]envelope.Envelope, error) {
	lock := p.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return p.readListLocked(path)
}

func (p *Postbox) readListLocked(path string) ([]envelope.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewError("postbox.read", core.ErrDispatchIO, "", "", err)
	}
	var list []envelope.Envelope
	if err := json.Unmarshal(data, &list); err != nil {
		p.logger.Warn("postbox file corrupt, treating as empty", map[string]interface{}{"path": path, "error": err.Error()})
		return nil, nil
	}
	return list, nil
}

// AppendToInbox appends an envelope to agent's inbox, creating the
// directory on demand, and replaces the file atomically (write temp,
// rename).
func (p *Postbox) AppendToInbox(agent string, env envelope.Envelope) error {
	return p.appendTo(p.inboxPath(agent), env)
}

// AppendToOutbox appends an envelope to agent's outbox. Used only by
// test fixtures and fake agents; the orchestrator itself never writes
// to another agent's outbox.
func (p *Postbox) AppendToOutbox(agent string, env envelope.Envelope) error {
	return p.appendTo(p.outboxPath(agent), env)
}

func (p *Postbox) appendTo(path string, env envelope.Envelope) error {
	lock := p.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	list, err := p.readListLocked(path)
	if err != nil {
		return err
	}
	list = append(list, env)
	return p.writeListLocked(path, list)
}

// ReplaceInbox overwrites agent's inbox list wholesale, atomically.
func (p *Postbox) ReplaceInbox(agent string, list []envelope.Envelope) error {
	path := p.inboxPath(agent)
	lock := p.lockFor(path)
	lock.Lock()
	defer lock.Unlock()
	return p.writeListLocked(path, list)
}

// ClearInbox empties agent's inbox atomically.
func (p *Postbox) ClearInbox(agent string) error {
	return p.ReplaceInbox(agent, []envelope.Envelope{})
}

func (p *Postbox) writeListLocked(path string, list []envelope.Envelope) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	tmp, err := os.CreateTemp(dir, ".postbox-*")
	if err != nil {
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return core.NewError("postbox.write", core.ErrDispatchIO, "", "", err)
	}
	return nil
}

// ErrTimeout is returned by WaitForReply when no matching reply arrives
// before the deadline.
var ErrTimeout = fmt.Errorf("%w", core.ErrTaskTimeout)

// WaitForReply polls agent's outbox at Postbox's poll interval until an
// envelope whose TraceID matches traceID appears, the context is
// cancelled, or timeout elapses. It is read-only: no file is mutated.
func (p *Postbox) WaitForReply(ctx context.Context, agent, traceID string, timeout time.Duration) (*envelope.Envelope, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		list, err := p.ReadOutbox(agent)
		if err == nil {
			for i := range list {
				if list[i].TraceID == traceID {
					return &list[i], nil
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, core.NewError("postbox.wait_for_reply", core.ErrTaskTimeout, "", "", fmt.Errorf("no reply for trace_id %s from agent %s within %s", traceID, agent, timeout))
		}
		select {
		case <-ctx.Done():
			return nil, core.NewError("postbox.wait_for_reply", core.ErrTaskTimeout, "", "", ctx.Err())
		case <-ticker.C:
		}
	}
}
