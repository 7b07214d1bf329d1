// Package mcp implements the agent orchestration registry: a name to agent
// mapping, an invocation wrapper that times and audits every call, and the
// append-only in-memory audit log with derived statistics.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
)

// ActionInvoke tags log entries written by Invoke.
const ActionInvoke = "invoke"

// LogContext snapshots the invocation input. It never carries document text.
type LogContext struct {
	Query          string `json:"query"`
	DocumentsCount *int   `json:"documentsCount,omitempty"`
}

// LogResult snapshots the invocation outcome.
type LogResult struct {
	Success        bool   `json:"success"`
	CitationsCount *int   `json:"citationsCount,omitempty"`
	Error          string `json:"error,omitempty"`
}

// MCPLog is one audit record. One is appended per invocation attempt.
type MCPLog struct {
	AgentName  string     `json:"agentName"`
	Action     string     `json:"action"`
	Context    LogContext `json:"context"`
	Result     LogResult  `json:"result"`
	RequestID  string     `json:"requestId,omitempty"`
	DurationMS int64      `json:"durationMs"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AgentStats aggregates the audit log for one agent.
type AgentStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Registry maps agent names to agents and audits every invocation.
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent

	logMu sync.Mutex
	logs  []MCPLog

	logger *logging.Logger
	bus    *events.EventBus
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the human-readable logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEventBus publishes agent lifecycle events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		agents: make(map[string]core.Agent),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register maps name to agent. A later registration for the same name
// replaces the earlier one.
func (r *Registry) Register(name string, agent core.Agent) {
	r.mu.Lock()
	_, exists := r.agents[name]
	r.agents[name] = agent
	r.mu.Unlock()

	if exists {
		r.logger.Warn("agent is being overwritten", "agent", name)
		return
	}
	r.logger.Debug("agent registered", "agent", name)
}

// RegisterFunc registers a plain function as an agent.
func (r *Registry) RegisterFunc(name string, fn func(context.Context, *core.AgentContext) (*core.AgentOutput, error)) {
	r.Register(name, core.AgentFunc(fn))
}

func (r *Registry) lookup(name string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[name]
	return agent, ok
}

// Invoke runs the named agent and appends exactly one audit entry for the
// attempt. The agent's output or error is returned unchanged. An unknown name
// fails before anything is timed, logged or called.
func (r *Registry) Invoke(ctx context.Context, name string, actx *core.AgentContext) (*core.AgentOutput, error) {
	agent, ok := r.lookup(name)
	if !ok {
		err := core.ErrAgentNotRegistered(name)
		if suggestion := r.suggest(name); suggestion != "" {
			err = err.WithDetail("suggestion", suggestion)
		}
		return nil, err
	}
	if actx == nil {
		actx = core.NewAgentContext("", nil, nil)
	}

	requestID := core.RequestIDFrom(ctx)
	log := r.logger.WithAgent(name)
	if requestID != "" {
		log = log.WithRequest(requestID)
	}

	start := r.now()
	log.Info("invoking agent", "query", actx.Query)
	r.bus.Publish(events.NewAgentInvokedEvent(requestID, name))

	out, err := runAgent(ctx, agent, actx)
	if err == nil && out == nil {
		err = fmt.Errorf("agent %s returned no output", name)
	}
	finished := r.now()
	duration := finished.Sub(start)

	entry := MCPLog{
		AgentName:  name,
		Action:     ActionInvoke,
		Context:    LogContext{Query: actx.Query},
		RequestID:  requestID,
		DurationMS: duration.Milliseconds(),
		Timestamp:  finished.UTC(),
	}

	if err != nil {
		entry.Result = LogResult{Success: false, Error: errorMessage(err)}
		r.appendLog(entry)
		log.Error("agent failed", "duration", duration, "error", err)
		r.bus.Publish(events.NewAgentFailedEvent(requestID, name, duration, err))
		return nil, err
	}

	docs := len(actx.Documents)
	citations := len(out.Citations)
	entry.Context.DocumentsCount = &docs
	entry.Result = LogResult{Success: true, CitationsCount: &citations}
	r.appendLog(entry)
	log.Info("agent completed", "duration", duration, "citations", citations)
	r.bus.Publish(events.NewAgentCompletedEvent(requestID, name, duration, citations))
	return out, nil
}

// runAgent converts a panicking agent into an ordinary failure so the audit
// entry is still written.
func runAgent(ctx context.Context, agent core.Agent, actx *core.AgentContext) (out *core.AgentOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = core.ErrAgent(core.CodeAgentFailed, fmt.Sprintf("agent panicked: %v", rec))
		}
	}()
	return agent.Run(ctx, actx)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

func (r *Registry) appendLog(entry MCPLog) {
	r.logMu.Lock()
	r.logs = append(r.logs, entry)
	r.logMu.Unlock()
}

// suggest returns the registered name closest to name, if any.
func (r *Registry) suggest(name string) string {
	names := r.RegisteredAgents()
	if len(names) == 0 || name == "" {
		return ""
	}
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}
	matches := fuzzy.Find(strings.ToLower(name), lower)
	if len(matches) == 0 {
		return ""
	}
	return names[matches[0].Index]
}

// RegisteredAgents returns the registered names in sorted order.
func (r *Registry) RegisteredAgents() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Logs returns a copy of the audit log in insertion order, optionally
// filtered by agent name. An empty name means no filter.
func (r *Registry) Logs(agentName ...string) []MCPLog {
	filter := ""
	if len(agentName) > 0 {
		filter = agentName[0]
	}

	r.logMu.Lock()
	defer r.logMu.Unlock()

	out := make([]MCPLog, 0, len(r.logs))
	for _, entry := range r.logs {
		if filter == "" || entry.AgentName == filter {
			out = append(out, entry)
		}
	}
	return out
}

// ClearLogs empties the audit log.
func (r *Registry) ClearLogs() {
	r.logMu.Lock()
	r.logs = nil
	r.logMu.Unlock()
	r.logger.Debug("agent logs cleared")
}

// Stats folds the audit log into per-agent counters. It is recomputed on
// every call.
func (r *Registry) Stats() map[string]AgentStats {
	r.logMu.Lock()
	defer r.logMu.Unlock()

	stats := make(map[string]AgentStats)
	for _, entry := range r.logs {
		s := stats[entry.AgentName]
		s.Total++
		if entry.Result.Success {
			s.Success++
		} else {
			s.Failed++
		}
		stats[entry.AgentName] = s
	}
	return stats
}
