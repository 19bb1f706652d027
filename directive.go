package jido

// Directive is the closed tagged union of effect descriptors a Strategy's
// cmd (or an Action) returns for the server to enact (§3). In the source
// material this is an open, dynamically-dispatched map; here it is a
// sealed Go interface implemented only by the variant structs in this
// file, so DirectiveExec can exhaustively switch over concrete types.
type Directive interface {
	directive()
}

// Emit publishes a signal asynchronously. Never blocks the server (§4.3,
// §5). Dispatch, if nil, falls back to the Signal's own Dispatch field,
// then the server's configured default, then the logger adapter.
type Emit struct {
	Signal   Signal
	Dispatch *DispatchConfig
}

func (Emit) directive() {}

// Enqueue pushes an instruction onto the agent's pending queue (FIFO).
type Enqueue struct {
	Instruction Instruction
}

func (Enqueue) directive() {}

// RunInstruction executes Instruction outside the strategy, then routes
// its outcome back through the agent via a synthesized instruction whose
// action is ResultAction (§4.3). Meta is opaque and threaded through
// unchanged into the result-action params.
type RunInstruction struct {
	Instruction  Instruction
	ResultAction Action
	Meta         map[string]any
}

func (RunInstruction) directive() {}

// Schedule delivers Message (wrapped into a signal if it isn't one) to
// this agent after DelayMS. Cleared on hibernate — best-effort only
// (§9 open questions).
type Schedule struct {
	DelayMS int64
	Message any
}

func (Schedule) directive() {}

// SpawnAgent creates a child agent, registers it under Tag, and monitors
// it. AgentSpec describes what to start; Opts are spawn-time options.
type SpawnAgent struct {
	Spec AgentSpec
	Tag  string
	Opts map[string]any
	Meta map[string]any
}

func (SpawnAgent) directive() {}

// StopChild gracefully shuts down the child registered under Tag. Unknown
// tags are not an error (§4.3).
type StopChild struct {
	Tag    string
	Reason string
}

func (StopChild) directive() {}

// Stop terminates the agent after in-flight directives complete (§4.3,
// §5).
type Stop struct {
	Reason string
}

func (Stop) directive() {}

// ErrorDirective records/propagates a failure; server policy decides
// whether to continue, count, or stop (§4.3). Named ErrorDirective (not
// Error) to avoid colliding with the built-in error type and this
// package's *Error.
type ErrorDirective struct {
	Err     error
	Context map[string]any
}

func (ErrorDirective) directive() {}

// StateModifyOp is the operation a StateModify directive applies.
type StateModifyOp string

const (
	StateModifySet     StateModifyOp = "set"
	StateModifyDelete   StateModifyOp = "delete"
	StateModifyReplace  StateModifyOp = "replace"
)

// StateModify applies a structural update to agent state (§3, §4.3). Path
// is a sequence of map keys; an empty Path with op=replace overwrites the
// whole state map.
type StateModify struct {
	Op    StateModifyOp
	Path  []string
	Value any
}

func (StateModify) directive() {}

// RegisterAction adds an Action to the agent's action registry.
type RegisterAction struct {
	Action Action
}

func (RegisterAction) directive() {}

// DeregisterAction removes an Action (by name) from the agent's action
// registry.
type DeregisterAction struct {
	Name string
}

func (DeregisterAction) directive() {}
