package fsm

import (
	"context"
	"testing"

	jido "github.com/agentjido/jido-sub001"
)

type echoAction struct{ name string }

func (e echoAction) Name() string { return e.name }

func (e echoAction) Run(_ context.Context, params map[string]any) (jido.ActionResult, error) {
	return jido.ActionResult{Result: params["value"]}, nil
}

func TestInitSeedsState(t *testing.T) {
	agent, err := jido.NewAgent("a1", nil)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	s := New("idle", nil)
	agent, _, err = s.Init(agent, jido.StrategyContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	st := agent.State[jido.ReservedStrategyKey].(map[string]any)
	if st["state"] != "idle" {
		t.Errorf("state = %v, want idle", st["state"])
	}
}

func TestCmdDrivesBatchThroughRunInstruction(t *testing.T) {
	agent, _ := jido.NewAgent("a1", nil)
	s := New("idle", nil)
	agent, _, _ = s.Init(agent, jido.StrategyContext{Context: context.Background()})

	instrs := []jido.Instruction{
		{Action: echoAction{"a"}, Params: map[string]any{"value": 1}},
		{Action: echoAction{"b"}, Params: map[string]any{"value": 2}},
	}
	agent, directives, err := s.Cmd(agent, instrs, jido.StrategyContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("Cmd: %v", err)
	}
	if len(directives) != 1 {
		t.Fatalf("directives = %d, want 1", len(directives))
	}
	ri, ok := directives[0].(jido.RunInstruction)
	if !ok {
		t.Fatalf("directive type = %T, want RunInstruction", directives[0])
	}
	st := agent.State[jido.ReservedStrategyKey].(map[string]any)
	if st["state"] != "processing" {
		t.Errorf("state = %v, want processing", st["state"])
	}

	// Simulate DirectiveExec resolving the RunInstruction and re-entering Cmd.
	remaining := ri.Meta["remaining"].([]jido.Instruction)
	resultInstr := jido.Instruction{
		Action: ri.ResultAction,
		Params: map[string]any{"status": "ok", "result": 1, "meta": map[string]any{"remaining": remaining}},
	}
	agent, directives, err = s.Cmd(agent, []jido.Instruction{resultInstr}, jido.StrategyContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("Cmd resume: %v", err)
	}
	if len(directives) != 1 {
		t.Fatalf("directives = %d, want 1 (second instruction)", len(directives))
	}
	st = agent.State[jido.ReservedStrategyKey].(map[string]any)
	if st["processed_count"] != 1 {
		t.Errorf("processed_count = %v, want 1", st["processed_count"])
	}

	// Finish the batch.
	resultInstr2 := jido.Instruction{
		Action: resultMarker{},
		Params: map[string]any{"status": "ok", "result": 2, "meta": map[string]any{"remaining": []jido.Instruction{}}},
	}
	agent, directives, err = s.Cmd(agent, []jido.Instruction{resultInstr2}, jido.StrategyContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("Cmd finish: %v", err)
	}
	if len(directives) != 0 {
		t.Errorf("directives = %d, want 0 at end of batch", len(directives))
	}
	st = agent.State[jido.ReservedStrategyKey].(map[string]any)
	if st["state"] != "idle" {
		t.Errorf("state = %v, want idle after batch", st["state"])
	}
	if st["processed_count"] != 2 {
		t.Errorf("processed_count = %v, want 2", st["processed_count"])
	}
}

func TestSnapshotReportsStatus(t *testing.T) {
	agent, _ := jido.NewAgent("a1", nil)
	s := New("idle", nil)
	agent, _, _ = s.Init(agent, jido.StrategyContext{Context: context.Background()})
	snap := s.Snapshot(agent, jido.StrategyContext{Context: context.Background()})
	if snap.Status != jido.SnapshotIdle {
		t.Errorf("status = %v, want idle", snap.Status)
	}
	if !snap.Done {
		t.Error("expected Done at initial state")
	}
}
