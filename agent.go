package jido

import (
	"maps"
)

// Reserved state keys (§3, §9). Conceptually these are slices owned by a
// specific cooperating component (the Strategy, the Persist subsystem)
// rather than ordinary user state.
const (
	ReservedStrategyKey = "__strategy__"
	ReservedThreadKey   = "__thread__"
)

// Agent is the stateful unit owning an id, a state map, a pending
// instruction queue, and an action registry (§3). It is executed
// exclusively by one AgentServer at a time; nothing outside that server
// may mutate an Agent value.
type Agent struct {
	ID      string
	State   map[string]any
	Pending []Instruction
	Actions map[string]Action
	Result  any
}

// NewAgent constructs an Agent with an empty pending queue and action
// registry. id must be non-empty (§3 invariant); otherwise NewAgent
// returns a missing_agent_id *Error.
func NewAgent(id string, initial map[string]any) (*Agent, error) {
	if id == "" {
		return nil, New("NewAgent", KindMissingAgentID, "agent id must not be empty")
	}
	state := map[string]any{}
	maps.Copy(state, initial)
	return &Agent{
		ID:      id,
		State:   state,
		Pending: nil,
		Actions: map[string]Action{},
	}, nil
}

// Clone returns a deep-enough copy of the Agent suitable for passing
// through a pure Strategy.cmd call: the state map and pending queue are
// copied so the strategy cannot alias the server's live value.
func (a *Agent) Clone() *Agent {
	state := make(map[string]any, len(a.State))
	maps.Copy(state, a.State)
	pending := make([]Instruction, len(a.Pending))
	copy(pending, a.Pending)
	actions := make(map[string]Action, len(a.Actions))
	maps.Copy(actions, a.Actions)
	return &Agent{ID: a.ID, State: state, Pending: pending, Actions: actions, Result: a.Result}
}

// Enqueue appends an instruction to the pending FIFO queue.
func (a *Agent) Enqueue(i Instruction) {
	a.Pending = append(a.Pending, i)
}

// Dequeue pops the oldest pending instruction, if any.
func (a *Agent) Dequeue() (Instruction, bool) {
	if len(a.Pending) == 0 {
		return Instruction{}, false
	}
	i := a.Pending[0]
	a.Pending = a.Pending[1:]
	return i, true
}

// RegisterAction adds an Action to the registry, keyed by its Name().
func (a *Agent) RegisterAction(act Action) {
	if a.Actions == nil {
		a.Actions = map[string]Action{}
	}
	a.Actions[act.Name()] = act
}

// DeregisterAction removes an Action by name.
func (a *Agent) DeregisterAction(name string) {
	delete(a.Actions, name)
}

// Thread returns the agent's attached Thread, if any, and whether one is
// present. The reserved __thread__ key holds it.
func (a *Agent) Thread() (*Thread, bool) {
	v, ok := a.State[ReservedThreadKey]
	if !ok {
		return nil, false
	}
	th, ok := v.(*Thread)
	return th, ok
}

// AttachThread sets the agent's __thread__ slice.
func (a *Agent) AttachThread(th *Thread) {
	a.State[ReservedThreadKey] = th
}

// DetachThread removes the __thread__ slice, returning it if present. Used
// by Persist to build a thread-free checkpoint state document (§4.6).
func (a *Agent) DetachThread() *Thread {
	th, ok := a.Thread()
	if ok {
		delete(a.State, ReservedThreadKey)
	}
	return th
}

// StateWithoutThread returns a shallow copy of State with __thread__
// stripped, per the Checkpoint invariant that state never embeds the
// thread (§3).
func (a *Agent) StateWithoutThread() map[string]any {
	out := make(map[string]any, len(a.State))
	maps.Copy(out, a.State)
	delete(out, ReservedThreadKey)
	return out
}

// ApplyStateModify applies a StateModify directive's semantics to the
// agent's state map (§3, §4.3): set creates missing intermediate maps,
// delete removes the leaf, replace with an empty path overwrites the
// whole map.
func (a *Agent) ApplyStateModify(d StateModify) error {
	if len(d.Path) == 0 {
		switch d.Op {
		case StateModifyReplace:
			m, ok := d.Value.(map[string]any)
			if !ok {
				return New("Agent.ApplyStateModify", KindValidation, "replace with empty path requires a map[string]any value")
			}
			a.State = m
			return nil
		case StateModifyDelete:
			a.State = map[string]any{}
			return nil
		default:
			return New("Agent.ApplyStateModify", KindValidation, "set requires a non-empty path")
		}
	}

	cur := a.State
	for _, seg := range d.Path[:len(d.Path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if d.Op == StateModifyDelete {
				return nil // nothing to delete along a missing path
			}
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	leaf := d.Path[len(d.Path)-1]
	switch d.Op {
	case StateModifySet, StateModifyReplace:
		cur[leaf] = d.Value
	case StateModifyDelete:
		delete(cur, leaf)
	default:
		return Newf("Agent.ApplyStateModify", KindValidation, "unknown state modify op %q", d.Op)
	}
	return nil
}

// AgentSpec describes how to construct, checkpoint, and restore an agent
// of a given type ("agent_module" in the spec's vocabulary). It is the
// unit SpawnAgent and InstanceManager operate on.
type AgentSpec struct {
	// Module is the persisted type identity, used as the agent_module
	// component of a checkpoint key (§4.5, §4.6).
	Module string

	// New constructs a fresh Agent and its Strategy for id, seeded with
	// initial state.
	New func(id string, initial map[string]any) (*Agent, Strategy, error)

	// Checkpoint optionally builds a custom checkpoint body for the
	// agent; if nil, Persist uses the default (state minus thread).
	Checkpoint func(a *Agent) (map[string]any, error)

	// Restore optionally reconstructs an Agent from a checkpoint; if
	// nil, Persist calls New(checkpoint.ID, checkpoint.State).
	Restore func(id string, state map[string]any) (*Agent, Strategy, error)
}
