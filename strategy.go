package jido

import "context"

// StrategyContext carries the ambient dependencies a Strategy needs beyond
// the agent value itself: the instructions' own execution context. It is
// intentionally thin — strategies must not reach outside it
// to perform side effects (§4.2 invariant).
type StrategyContext struct {
	Context context.Context
}

// SnapshotStatus is the coarse status a Strategy.Snapshot reports.
type SnapshotStatus string

const (
	SnapshotIdle       SnapshotStatus = "idle"
	SnapshotProcessing SnapshotStatus = "processing"
	SnapshotDone       SnapshotStatus = "done"
	SnapshotError      SnapshotStatus = "error"
)

// Snapshot is the optional progress report a Strategy can produce.
type Snapshot struct {
	Status  SnapshotStatus
	Done    bool
	Result  any
	Details map[string]any
}

// Strategy is the pluggable "what to do with this batch of instructions"
// module (§4.2). Implementations own the agent's __strategy__ state slice
// and must be pure with respect to their inputs: cmd returns a (agent,
// directives) pair and performs no side effects directly — all effects
// flow through the returned Directives so the server can order, retry,
// and observe them uniformly.
type Strategy interface {
	// Init seeds the agent's strategy slice and may return initial
	// directives (e.g. an initial state-machine transition event).
	Init(agent *Agent, sctx StrategyContext) (*Agent, []Directive, error)

	// Cmd decides what to do with a batch of instructions, returning the
	// (possibly mutated) agent and the directives the server should
	// enact.
	Cmd(agent *Agent, instructions []Instruction, sctx StrategyContext) (*Agent, []Directive, error)
}

// SignalRouter is an optional Strategy capability: a strategy may
// contribute its own routes, consulted before the server's Router (§4.4
// step 2).
type SignalRouter interface {
	SignalRoutes(sctx StrategyContext) []RouteConfig
}

// Snapshotter is an optional Strategy capability exposing progress.
type Snapshotter interface {
	Snapshot(agent *Agent, sctx StrategyContext) Snapshot
}
