package jido

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentjido/jido-sub001/config"
	"github.com/agentjido/jido-sub001/internal/envconfig"
	"github.com/agentjido/jido-sub001/internal/logging"
)

// InstanceStats is the per-agent summary InstanceManager.Stats reports.
type InstanceStats struct {
	Key      Key
	Status   Status
	QueueLen int
}

// buildSlot tracks one in-flight construction for a key: waiters block on
// done, then read server/err once it's closed.
type buildSlot struct {
	done   chan struct{}
	server *AgentServer
	err    error
}

// InstanceManager is a keyed pool of AgentServers for one AgentSpec,
// namespaced as {agent_module, {manager_name, raw_key}} (§4.5). Get
// thaws a hibernated agent on demand if no live instance exists. Two
// concurrent Get calls for the same key never race each other into
// double-construction: the second caller waits on the first's build
// rather than starting its own (§4.5 thaw-race handling).
type InstanceManager struct {
	Name string
	Spec AgentSpec

	router     *Router
	dispatcher *Dispatcher
	settings   *config.Settings
	storage    StorageAdapter
	logger     *slog.Logger
	persist    *Persist

	mu        sync.Mutex
	instances map[string]*AgentServer
	building  map[string]*buildSlot
}

// ManagerOptions configures an InstanceManager's shared dependencies,
// forwarded to every AgentServer it starts.
type ManagerOptions struct {
	Router     *Router
	Dispatcher *Dispatcher
	Settings   *config.Settings
	Storage    StorageAdapter
	Logger     *slog.Logger
}

// NewInstanceManager builds an InstanceManager for spec under name.
func NewInstanceManager(name string, spec AgentSpec, opts ManagerOptions) *InstanceManager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	m := &InstanceManager{
		Name:       name,
		Spec:       spec,
		router:     opts.Router,
		dispatcher: opts.Dispatcher,
		settings:   opts.Settings,
		storage:    opts.Storage,
		logger:     logger,
		instances:  map[string]*AgentServer{},
		building:   map[string]*buildSlot{},
	}
	if opts.Storage != nil {
		m.persist = NewPersist(opts.Storage, logger)
	}
	return m
}

func (m *InstanceManager) key(raw string) Key {
	return Key{AgentModule: m.Spec.Module, Manager: m.Name, Raw: raw}
}

func (m *InstanceManager) serverOptions() ServerOptions {
	return ServerOptions{
		Router: m.router, Dispatcher: m.dispatcher, Settings: m.settings,
		Storage: m.storage, Manager: m.Name, Logger: m.logger,
	}
}

// Lookup returns the live instance for raw without starting or thawing
// one.
func (m *InstanceManager) Lookup(raw string) (*AgentServer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.instances[raw]
	return s, ok
}

// Get returns the live AgentServer for raw: an already-running instance,
// one thawed from storage, or a freshly constructed one (initial may be
// nil), in that preference order (§4.5). Concurrent Get calls for the
// same raw key converge on a single construction attempt; a caller that
// loses the race waits up to 5s for the winner before giving up.
func (m *InstanceManager) Get(ctx context.Context, raw string, initial map[string]any) (*AgentServer, error) {
	return m.getWithDeadline(ctx, raw, initial, time.Now().Add(5*time.Second))
}

func (m *InstanceManager) getWithDeadline(ctx context.Context, raw string, initial map[string]any, deadline time.Time) (*AgentServer, error) {
	m.mu.Lock()
	if s, ok := m.instances[raw]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if slot, ok := m.building[raw]; ok {
		m.mu.Unlock()
		return m.awaitSlot(ctx, raw, initial, slot, deadline)
	}

	slot := &buildSlot{done: make(chan struct{})}
	m.building[raw] = slot
	m.mu.Unlock()

	slot.server, slot.err = m.build(ctx, raw, initial)

	m.mu.Lock()
	delete(m.building, raw)
	if slot.err == nil {
		m.instances[raw] = slot.server
	}
	m.mu.Unlock()
	close(slot.done)

	if slot.err != nil {
		return nil, slot.err
	}
	m.watchForExit(raw, slot.server)
	return slot.server, nil
}

// awaitSlot waits for an in-flight build this caller lost the race to
// start, retrying the whole Get once the slot resolves (another Get may
// have started and finished in between) until deadline elapses.
func (m *InstanceManager) awaitSlot(ctx context.Context, raw string, initial map[string]any, slot *buildSlot, deadline time.Time) (*AgentServer, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, New("InstanceManager.Get", KindTimeout, "timed out waiting for concurrent build")
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-slot.done:
		if slot.err == nil {
			return slot.server, nil
		}
		return m.getWithDeadline(ctx, raw, initial, deadline)
	case <-timer.C:
		return nil, New("InstanceManager.Get", KindTimeout, "timed out waiting for concurrent build")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build thaws from storage if a checkpoint exists, else constructs fresh.
func (m *InstanceManager) build(ctx context.Context, raw string, initial map[string]any) (*AgentServer, error) {
	if m.persist != nil {
		if agent, strategy, err := m.persist.Thaw(ctx, m.Spec, m.key(raw)); err == nil {
			return m.startFromAgent(ctx, agent, strategy)
		}
	}
	return NewAgentServer(ctx, m.Spec, raw, initial, m.serverOptions())
}

// startFromAgent wraps an already-constructed Agent/Strategy pair (from
// Persist.Thaw) in a running AgentServer, bypassing AgentSpec.New.
func (m *InstanceManager) startFromAgent(ctx context.Context, agent *Agent, strategy Strategy) (*AgentServer, error) {
	wrapSpec := m.Spec
	wrapSpec.New = func(string, map[string]any) (*Agent, Strategy, error) {
		return agent, strategy, nil
	}
	return NewAgentServer(ctx, wrapSpec, agent.ID, nil, m.serverOptions())
}

// watchForExit removes raw from the pool once its server fully stops, so
// a later Get thaws or restarts fresh instead of handing back a dead
// handle.
func (m *InstanceManager) watchForExit(raw string, s *AgentServer) {
	envconfig.SafeGo(func() {
		<-s.Done()
		m.mu.Lock()
		if m.instances[raw] == s {
			delete(m.instances, raw)
		}
		m.mu.Unlock()
	})
}

// Stop gracefully stops the instance for raw: hibernate (if storage is
// configured) then terminate (§4.5). Returns ErrNotFound if no live
// instance is tracked under raw. Hibernation runs on the server's own
// goroutine via RequestHibernateStop so it observes a consistent Agent
// value rather than racing the owning goroutine.
func (m *InstanceManager) Stop(raw, reason string) error {
	m.mu.Lock()
	s, ok := m.instances[raw]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if m.persist != nil {
		s.RequestHibernateStop(reason)
		return nil
	}
	s.RequestStop(reason)
	return nil
}

// Stats returns a summary of every currently tracked instance.
func (m *InstanceManager) Stats() []InstanceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InstanceStats, 0, len(m.instances))
	for raw, s := range m.instances {
		out = append(out, InstanceStats{Key: m.key(raw), Status: s.StatusNow(), QueueLen: s.QueueLen()})
	}
	return out
}
