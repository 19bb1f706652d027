package jido

import (
	"context"
	"log/slog"
	"testing"

	"github.com/agentjido/jido-sub001/config"
)

// fakeRuntime is a minimal ExecRuntime for exercising DirectiveExec without
// a full AgentServer.
type fakeRuntime struct {
	dispatched   []Signal
	spawnErr     error
	spawned      []string
	stopChildErr error
	stoppedTags  []string
	scheduled    []int64
	logger       *slog.Logger
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{logger: slog.Default()}
}

func (f *fakeRuntime) Dispatch(_ context.Context, signal Signal, _ *DispatchConfig) {
	f.dispatched = append(f.dispatched, signal)
}

func (f *fakeRuntime) SpawnChild(spec AgentSpec, tag string, _, _ map[string]any) (*ChildHandle, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.spawned = append(f.spawned, tag)
	return &ChildHandle{Module: spec.Module, Tag: tag}, nil
}

func (f *fakeRuntime) StopChild(_ context.Context, tag, _ string) error {
	if f.stopChildErr != nil {
		return f.stopChildErr
	}
	f.stoppedTags = append(f.stoppedTags, tag)
	return nil
}

func (f *fakeRuntime) ScheduleTimer(delayMS int64, _ any) {
	f.scheduled = append(f.scheduled, delayMS)
}

func (f *fakeRuntime) Logger() *slog.Logger { return f.logger }

func newTestExec(policy config.ErrorPolicyKind, maxErrors int) *DirectiveExec {
	return NewDirectiveExec(NewDispatcher(AdapterNoop), policy, maxErrors)
}

func TestDirectiveExecEmitDispatchesAsync(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)
	sig := NewSignal("", "test", "jido.agent.event.started", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, Emit{Signal: sig}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecAsync {
		t.Fatalf("expected ExecAsync, got %v", res.Outcome)
	}
	if len(rt.dispatched) != 1 || rt.dispatched[0].ID != sig.ID {
		t.Fatalf("expected the signal dispatched, got %+v", rt.dispatched)
	}
}

func TestDirectiveExecEnqueue(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)
	instr := Instruction{Params: map[string]any{"n": 1}}

	_, err := de.Exec(context.Background(), a, nil, StrategyContext{}, Enqueue{Instruction: instr}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(a.Pending) != 1 || a.Pending[0].Params["n"] != 1 {
		t.Fatalf("expected instruction enqueued, got %+v", a.Pending)
	}
}

func TestDirectiveExecStateModify(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{},
		StateModify{Op: StateModifySet, Path: []string{"x"}, Value: 1}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecContinue {
		t.Fatalf("expected ExecContinue, got %v", res.Outcome)
	}
	if a.State["x"] != 1 {
		t.Fatalf("expected state modified, got %+v", a.State)
	}
}

func TestDirectiveExecRegisterDeregisterAction(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	_, err := de.Exec(context.Background(), a, nil, StrategyContext{}, RegisterAction{Action: namedAction("echo")}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, ok := a.Actions["echo"]; !ok {
		t.Fatalf("expected action registered")
	}

	_, err = de.Exec(context.Background(), a, nil, StrategyContext{}, DeregisterAction{Name: "echo"}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, ok := a.Actions["echo"]; ok {
		t.Fatalf("expected action deregistered")
	}
}

func TestDirectiveExecStop(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, Stop{Reason: "done"}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecStop || res.StopReason != "done" {
		t.Fatalf("expected ExecStop with reason done, got %+v", res)
	}
}

func TestDirectiveExecErrorPolicyLogOnly(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, ErrorDirective{Err: ErrConflict}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecContinue {
		t.Fatalf("expected log_only policy to continue, got %v", res.Outcome)
	}
}

func TestDirectiveExecErrorPolicyStopOnError(t *testing.T) {
	de := newTestExec(config.ErrorPolicyStopOnError, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, ErrorDirective{Err: ErrConflict}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecStop || res.StopReason != "agent_error" {
		t.Fatalf("expected stop_on_error policy to stop immediately, got %+v", res)
	}
}

func TestDirectiveExecErrorPolicyMaxErrors(t *testing.T) {
	de := newTestExec(config.ErrorPolicyMaxErrors, 2)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res1, _ := de.Exec(context.Background(), a, nil, StrategyContext{}, ErrorDirective{Err: ErrConflict}, rt)
	if res1.Outcome != ExecContinue {
		t.Fatalf("expected first error under max to continue, got %v", res1.Outcome)
	}
	res2, _ := de.Exec(context.Background(), a, nil, StrategyContext{}, ErrorDirective{Err: ErrConflict}, rt)
	if res2.Outcome != ExecStop || res2.StopReason != "max_errors" {
		t.Fatalf("expected second error to hit max_errors and stop, got %+v", res2)
	}
}

func TestDirectiveExecSpawnAgentFailureIsNonFatal(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	rt.spawnErr = ErrInvalidAgent
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, SpawnAgent{Spec: AgentSpec{Module: "child"}, Tag: "c1"}, rt)
	if err != nil {
		t.Fatalf("expected spawn failure to not surface as an Exec error, got %v", err)
	}
	if res.Outcome != ExecContinue {
		t.Fatalf("expected ExecContinue after a failed spawn, got %v", res.Outcome)
	}
	if len(rt.spawned) != 0 {
		t.Fatalf("expected no child recorded on spawn failure")
	}
}

func TestDirectiveExecStopChildUnknownTagIsNotAnError(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	rt.stopChildErr = ErrNotFound
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, StopChild{Tag: "missing"}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecContinue {
		t.Fatalf("expected ExecContinue for an unknown child tag, got %v", res.Outcome)
	}
}

func TestDirectiveExecScheduleDispatchesAsync(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)

	res, err := de.Exec(context.Background(), a, nil, StrategyContext{}, Schedule{DelayMS: 500, Message: "ping"}, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Outcome != ExecAsync {
		t.Fatalf("expected ExecAsync, got %v", res.Outcome)
	}
	if len(rt.scheduled) != 1 || rt.scheduled[0] != 500 {
		t.Fatalf("expected timer scheduled for 500ms, got %+v", rt.scheduled)
	}
}

// resultCapture is a result-action used to verify RunInstruction splicing.
type resultCapture struct {
	captured *map[string]any
}

func (resultCapture) Name() string { return "result.capture" }

func (r resultCapture) Run(_ context.Context, params map[string]any) (ActionResult, error) {
	*r.captured = params
	return ActionResult{}, nil
}

// echoStrategy re-enters Cmd for RunInstruction's synthesized result
// instruction and returns a follow-up directive so splicing is observable.
type echoStrategy struct{}

func (echoStrategy) Init(a *Agent, _ StrategyContext) (*Agent, []Directive, error) { return a, nil, nil }

func (echoStrategy) Cmd(a *Agent, instrs []Instruction, sctx StrategyContext) (*Agent, []Directive, error) {
	var directives []Directive
	for _, instr := range instrs {
		if instr.Action == nil {
			continue
		}
		if _, err := instr.Action.Run(sctx.Context, instr.Params); err != nil {
			return a, nil, err
		}
		directives = append(directives, StateModify{Op: StateModifySet, Path: []string{"spliced"}, Value: true})
	}
	return a, directives, nil
}

func TestDirectiveExecRunInstructionSplicesResultDirectives(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)
	var captured map[string]any

	action := ActionFunc{FuncName: "double", Fn: func(_ context.Context, params map[string]any) (ActionResult, error) {
		return ActionResult{Result: params["n"].(int) * 2}, nil
	}}
	rinstr := RunInstruction{
		Instruction:  Instruction{Action: action, Params: map[string]any{"n": 21}},
		ResultAction: resultCapture{captured: &captured},
	}

	res, err := de.Exec(context.Background(), a, echoStrategy{}, StrategyContext{Context: context.Background()}, rinstr, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if captured["status"] != "ok" || captured["result"] != 42 {
		t.Fatalf("expected result action to observe the instruction's outcome, got %+v", captured)
	}
	if len(res.Spliced) != 1 {
		t.Fatalf("expected one spliced directive from the result-action's Cmd re-entry, got %d", len(res.Spliced))
	}
	if _, ok := res.Spliced[0].(StateModify); !ok {
		t.Fatalf("expected a StateModify directive spliced, got %T", res.Spliced[0])
	}
}

func TestDirectiveExecRunInstructionCarriesActionError(t *testing.T) {
	de := newTestExec(config.ErrorPolicyLogOnly, 0)
	rt := newFakeRuntime()
	a, _ := NewAgent("a1", nil)
	var captured map[string]any

	failing := ActionFunc{FuncName: "fail", Fn: func(context.Context, map[string]any) (ActionResult, error) {
		return ActionResult{}, ErrConflict
	}}
	rinstr := RunInstruction{
		Instruction:  Instruction{Action: failing},
		ResultAction: resultCapture{captured: &captured},
	}

	_, err := de.Exec(context.Background(), a, echoStrategy{}, StrategyContext{Context: context.Background()}, rinstr, rt)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if captured["status"] != "error" {
		t.Fatalf("expected result action to observe status=error, got %+v", captured)
	}
}
