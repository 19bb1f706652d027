package jido

import "context"

// Action is any value that can be run with a set of params against a
// context carrying the current agent state (§6). Implementations normalize
// their own return shape via ActionResult.
type Action interface {
	// Name identifies the action for routing targets and logging.
	Name() string
	// Run executes the action. ctx.Value(stateKey{}) holds the agent's
	// state map at the time of invocation, injected by the server.
	Run(ctx context.Context, params map[string]any) (ActionResult, error)
}

// ActionResult is the normalized outcome of an Action.Run call: a result
// value plus any follow-up Directives the action wants the server to
// enact. A bare successful result with no directives is the common case.
type ActionResult struct {
	Result     any
	Directives []Directive
}

// stateKey is the context key under which the server injects agent state
// before invoking an Action.
type stateKey struct{}

// WithState returns a context carrying the given state map, as injected by
// the server before each Action.Run call (§3, §6).
func WithState(ctx context.Context, state map[string]any) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

// StateFromContext retrieves the agent state map injected by WithState. It
// returns nil if none was injected.
func StateFromContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(stateKey{}).(map[string]any)
	return m
}

// Instruction pairs an Action reference with its params and an additional
// context map (§3). The server merges the agent's current state into
// context["state"] before execution; Instruction.Context carries any
// caller-supplied extras.
type Instruction struct {
	Action  Action
	Params  map[string]any
	Context map[string]any
}

// NewInstruction builds an Instruction with the given action and params.
func NewInstruction(action Action, params map[string]any) Instruction {
	return Instruction{Action: action, Params: params}
}

// ActionFunc adapts a plain function into an Action, for small inline
// actions (result-action markers, test fixtures) that don't warrant a
// dedicated type.
type ActionFunc struct {
	FuncName string
	Fn       func(ctx context.Context, params map[string]any) (ActionResult, error)
}

func (f ActionFunc) Name() string { return f.FuncName }

func (f ActionFunc) Run(ctx context.Context, params map[string]any) (ActionResult, error) {
	return f.Fn(ctx, params)
}
