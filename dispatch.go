package jido

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentjido/jido-sub001/internal/logging"
)

// DispatchAdapter publishes a signal to a transport (§6). Adapters must
// not block the calling server for more than sub-millisecond setup work;
// anything that can take longer should hand off internally (e.g. to a
// buffered channel or background goroutine) the way dispatch/bus and
// dispatch/resilient do.
type DispatchAdapter interface {
	Dispatch(ctx context.Context, signal Signal, opts map[string]any) error
}

// DispatchAdapterFunc adapts a function to a DispatchAdapter.
type DispatchAdapterFunc func(ctx context.Context, signal Signal, opts map[string]any) error

func (f DispatchAdapterFunc) Dispatch(ctx context.Context, signal Signal, opts map[string]any) error {
	return f(ctx, signal, opts)
}

// Standard adapter names (§6).
const (
	AdapterLogger    = "logger"
	AdapterPID       = "pid"
	AdapterPubSub    = "pubsub"
	AdapterBus       = "bus"
	AdapterResilient = "resilient"
	AdapterConsole   = "console"
	AdapterNoop      = "noop"
)

// Dispatcher resolves DispatchConfig values to concrete adapters and fans
// a signal out to every adapter a config list names. It ships with
// logger/console/noop built in; a pid adapter for a given server comes
// from NewPIDAdapter, and the dispatch/bus and dispatch/resilient adapters
// are installed under "bus"/"pubsub"/"resilient" by the caller via
// Register.
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[string]DispatchAdapter
	fallback string
}

// NewDispatcher builds a Dispatcher with the standard built-in adapters
// registered and fallback as the adapter used when a directive names none.
func NewDispatcher(fallback string) *Dispatcher {
	d := &Dispatcher{adapters: map[string]DispatchAdapter{}, fallback: fallback}
	d.Register(AdapterLogger, loggerAdapter{})
	d.Register(AdapterConsole, consoleAdapter{})
	d.Register(AdapterNoop, noopAdapter{})
	if fallback == "" {
		d.fallback = AdapterLogger
	}
	return d
}

// Register installs or replaces the adapter for name.
func (d *Dispatcher) Register(name string, adapter DispatchAdapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[name] = adapter
}

func (d *Dispatcher) resolve(name string) (DispatchAdapter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[name]
	return a, ok
}

// Dispatch fans signal out to every adapter named in cfg (or the
// dispatcher's fallback if cfg is nil/empty), logging but never
// propagating per-adapter failures — Emit never blocks or fails the
// server (§4.3).
func (d *Dispatcher) Dispatch(ctx context.Context, signal Signal, cfgs []DispatchConfig) {
	if len(cfgs) == 0 {
		cfgs = []DispatchConfig{{Adapter: d.fallback}}
	}
	for _, cfg := range cfgs {
		adapter, ok := d.resolve(cfg.Adapter)
		if !ok {
			adapter, ok = d.resolve(d.fallback)
			if !ok {
				adapter = loggerAdapter{}
			}
		}
		if err := adapter.Dispatch(ctx, signal, cfg.Opts); err != nil {
			logging.FromContext(ctx).Warn("dispatch failed",
				logging.FieldAdapter, cfg.Adapter,
				logging.FieldSignalType, signal.Type,
				logging.FieldError, err)
		}
	}
}

type loggerAdapter struct{}

func (loggerAdapter) Dispatch(ctx context.Context, signal Signal, _ map[string]any) error {
	logging.FromContext(ctx).Info("signal dispatched",
		logging.FieldSignalID, signal.ID,
		logging.FieldSignalType, signal.Type)
	return nil
}

type consoleAdapter struct{}

func (consoleAdapter) Dispatch(_ context.Context, signal Signal, _ map[string]any) error {
	fmt.Printf("[jido] %s %s %v\n", signal.ID, signal.Type, signal.Data)
	return nil
}

type noopAdapter struct{}

func (noopAdapter) Dispatch(context.Context, Signal, map[string]any) error { return nil }

// pidAdapter delivers a signal straight into an AgentServer's inbox,
// grounding the "pid" adapter name (§6) in this target's task-per-agent
// model: there is no OS process id, but the AgentServer handle plays the
// same addressing role.
type pidAdapter struct {
	target *AgentServer
}

// NewPIDAdapter builds a dispatch adapter that casts every dispatched
// signal directly to target.
func NewPIDAdapter(target *AgentServer) DispatchAdapter {
	return pidAdapter{target: target}
}

func (p pidAdapter) Dispatch(ctx context.Context, signal Signal, _ map[string]any) error {
	_, err := p.target.Cast(ctx, signal)
	return err
}
