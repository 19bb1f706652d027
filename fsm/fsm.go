// Package fsm is the canonical richer Strategy (§4.2): a named state plus
// a transitions map, driving a batch of instructions one at a time through
// RunInstruction so each instruction's outcome is folded back into the
// agent's __strategy__ slice before the next one starts. strategy_direct.go
// is the minimal strategy beneath it for agents that don't need a state
// machine.
package fsm

import (
	"context"
	"fmt"

	jido "github.com/agentjido/jido-sub001"
)

const resultActionName = "fsm.instruction_result"

// Strategy is a named-state machine Strategy. Transitions maps a state
// name to the set of states reachable from it; Cmd refuses a transition
// the map doesn't allow.
type Strategy struct {
	Initial     string
	Transitions map[string][]string
}

// New builds a Strategy with the given initial state and transition
// table. A nil table defaults to the two-state idle/processing machine
// §4.2 describes.
func New(initial string, transitions map[string][]string) *Strategy {
	if initial == "" {
		initial = "idle"
	}
	if transitions == nil {
		transitions = map[string][]string{
			"idle":       {"processing"},
			"processing": {"idle"},
		}
	}
	return &Strategy{Initial: initial, Transitions: transitions}
}

func (s *Strategy) getState(agent *jido.Agent) map[string]any {
	raw, _ := agent.State[jido.ReservedStrategyKey].(map[string]any)
	out := map[string]any{
		"state":           s.Initial,
		"processed_count": 0,
		"last_result":     nil,
		"last_error":      "",
	}
	for k, v := range raw {
		out[k] = v
	}
	return out
}

func (s *Strategy) setState(agent *jido.Agent, st map[string]any) {
	agent.State[jido.ReservedStrategyKey] = st
}

func (s *Strategy) canTransition(from, to string) bool {
	for _, allowed := range s.Transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *Strategy) transition(st map[string]any, to string) error {
	from, _ := st["state"].(string)
	if from == to {
		return nil
	}
	if !s.canTransition(from, to) {
		return jido.Newf("fsm.Strategy", jido.KindValidation, "no transition %s -> %s", from, to)
	}
	st["state"] = to
	return nil
}

// Init seeds the agent's __strategy__ slice with the initial state, if
// absent.
func (s *Strategy) Init(agent *jido.Agent, _ jido.StrategyContext) (*jido.Agent, []jido.Directive, error) {
	if _, ok := agent.State[jido.ReservedStrategyKey]; !ok {
		s.setState(agent, s.getState(agent))
	}
	return agent, nil, nil
}

// Cmd either starts a fresh batch of instructions (transitioning to
// "processing" and running the first one via RunInstruction) or, when
// called with the synthesized result instruction, folds that outcome
// into state and continues with the next queued instruction until the
// batch is empty, at which point it transitions back to Initial.
func (s *Strategy) Cmd(agent *jido.Agent, instructions []jido.Instruction, sctx jido.StrategyContext) (*jido.Agent, []jido.Directive, error) {
	st := s.getState(agent)

	if len(instructions) == 1 && instructions[0].Action != nil && instructions[0].Action.Name() == resultActionName {
		return s.handleResult(agent, st, instructions[0])
	}
	return s.handleBatch(agent, st, instructions)
}

func (s *Strategy) handleBatch(agent *jido.Agent, st map[string]any, instructions []jido.Instruction) (*jido.Agent, []jido.Directive, error) {
	if len(instructions) == 0 {
		s.setState(agent, st)
		return agent, nil, nil
	}
	if err := s.transition(st, "processing"); err != nil {
		s.setState(agent, st)
		return agent, []jido.Directive{jido.ErrorDirective{Err: err}}, nil
	}
	s.setState(agent, st)

	first := instructions[0]
	remaining := instructions[1:]
	directive := jido.RunInstruction{
		Instruction:  first,
		ResultAction: resultMarker{},
		Meta:         map[string]any{"remaining": remaining},
	}
	return agent, []jido.Directive{directive}, nil
}

func (s *Strategy) handleResult(agent *jido.Agent, st map[string]any, resultInstr jido.Instruction) (*jido.Agent, []jido.Directive, error) {
	params := resultInstr.Params
	meta, _ := params["meta"].(map[string]any)
	remaining, _ := meta["remaining"].([]jido.Instruction)

	count, _ := st["processed_count"].(int)
	st["processed_count"] = count + 1

	if status, _ := params["status"].(string); status == "ok" {
		st["last_result"] = params["result"]
		agent.Result = params["result"]
	} else {
		st["last_error"] = fmt.Sprint(params["reason"])
	}

	if len(remaining) == 0 {
		if err := s.transition(st, s.Initial); err != nil {
			s.setState(agent, st)
			return agent, []jido.Directive{jido.ErrorDirective{Err: err}}, nil
		}
		s.setState(agent, st)
		return agent, nil, nil
	}

	s.setState(agent, st)
	next := remaining[0]
	directive := jido.RunInstruction{
		Instruction:  next,
		ResultAction: resultMarker{},
		Meta:         map[string]any{"remaining": remaining[1:]},
	}
	return agent, []jido.Directive{directive}, nil
}

// Snapshot reports the machine's current state name, processed count,
// and last result/error, satisfying jido.Snapshotter.
func (s *Strategy) Snapshot(agent *jido.Agent, _ jido.StrategyContext) jido.Snapshot {
	st := s.getState(agent)
	state, _ := st["state"].(string)
	status := jido.SnapshotIdle
	if state == "processing" {
		status = jido.SnapshotProcessing
	}
	return jido.Snapshot{
		Status: status,
		Done:   state == s.Initial,
		Result: st["last_result"],
		Details: map[string]any{
			"state":           state,
			"processed_count": st["processed_count"],
			"last_error":      st["last_error"],
		},
	}
}

// resultMarker is the private Action identity RunInstruction.ResultAction
// is set to; DirectiveExec never invokes Run on it directly — Cmd only
// compares Name() to recognize a resumed call (§4.2, §4.3).
type resultMarker struct{}

func (resultMarker) Name() string { return resultActionName }

func (resultMarker) Run(_ context.Context, _ map[string]any) (jido.ActionResult, error) {
	return jido.ActionResult{}, nil
}
