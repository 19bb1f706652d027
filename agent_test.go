package jido

import "testing"

func TestNewAgentRequiresID(t *testing.T) {
	_, err := NewAgent("", nil)
	if !IsKind(err, KindMissingAgentID) {
		t.Fatalf("expected KindMissingAgentID, got %v", err)
	}
}

func TestNewAgentCopiesInitialState(t *testing.T) {
	initial := map[string]any{"count": 1}
	a, err := NewAgent("a1", initial)
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	initial["count"] = 2
	if a.State["count"] != 1 {
		t.Fatalf("expected agent state to be isolated from caller's map, got %v", a.State["count"])
	}
}

func TestAgentCloneIsolatesState(t *testing.T) {
	a, _ := NewAgent("a1", map[string]any{"x": 1})
	a.RegisterAction(namedAction("echo"))
	clone := a.Clone()

	clone.State["x"] = 2
	clone.Enqueue(Instruction{})
	clone.DeregisterAction("echo")

	if a.State["x"] != 1 {
		t.Fatalf("mutating clone's state must not affect original")
	}
	if len(a.Pending) != 0 {
		t.Fatalf("mutating clone's pending queue must not affect original")
	}
	if _, ok := a.Actions["echo"]; !ok {
		t.Fatalf("deregistering on clone must not affect original's action registry")
	}
}

func TestAgentEnqueueDequeueFIFO(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	a.Enqueue(Instruction{Params: map[string]any{"n": 1}})
	a.Enqueue(Instruction{Params: map[string]any{"n": 2}})

	first, ok := a.Dequeue()
	if !ok || first.Params["n"] != 1 {
		t.Fatalf("expected FIFO order, got %+v", first)
	}
	second, ok := a.Dequeue()
	if !ok || second.Params["n"] != 2 {
		t.Fatalf("expected second dequeue to return n=2, got %+v", second)
	}
	if _, ok := a.Dequeue(); ok {
		t.Fatalf("expected empty queue to report ok=false")
	}
}

func TestAgentThreadAttachDetach(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	if _, ok := a.Thread(); ok {
		t.Fatalf("expected no thread on a fresh agent")
	}
	th := NewThread("", nil)
	a.AttachThread(th)
	got, ok := a.Thread()
	if !ok || got != th {
		t.Fatalf("expected AttachThread to be visible via Thread()")
	}
	if _, present := a.State[ReservedThreadKey]; !present {
		t.Fatalf("expected thread to live under the reserved state key")
	}

	detached := a.DetachThread()
	if detached != th {
		t.Fatalf("expected DetachThread to return the attached thread")
	}
	if _, ok := a.Thread(); ok {
		t.Fatalf("expected no thread after DetachThread")
	}
}

func TestAgentStateWithoutThreadStripsReservedKey(t *testing.T) {
	a, _ := NewAgent("a1", map[string]any{"count": 1})
	a.AttachThread(NewThread("", nil))
	out := a.StateWithoutThread()
	if _, present := out[ReservedThreadKey]; present {
		t.Fatalf("expected __thread__ stripped from StateWithoutThread")
	}
	if out["count"] != 1 {
		t.Fatalf("expected other state to survive, got %v", out)
	}
	if _, present := a.State[ReservedThreadKey]; !present {
		t.Fatalf("StateWithoutThread must not mutate the live agent")
	}
}

func TestApplyStateModifySetCreatesIntermediateMaps(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	err := a.ApplyStateModify(StateModify{Op: StateModifySet, Path: []string{"a", "b", "c"}, Value: 42})
	if err != nil {
		t.Fatalf("ApplyStateModify: %v", err)
	}
	inner, ok := a.State["a"].(map[string]any)["b"].(map[string]any)
	if !ok || inner["c"] != 42 {
		t.Fatalf("expected nested path created, got %+v", a.State)
	}
}

func TestApplyStateModifyDeleteLeaf(t *testing.T) {
	a, _ := NewAgent("a1", map[string]any{"a": map[string]any{"b": 1}})
	err := a.ApplyStateModify(StateModify{Op: StateModifyDelete, Path: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("ApplyStateModify: %v", err)
	}
	inner := a.State["a"].(map[string]any)
	if _, present := inner["b"]; present {
		t.Fatalf("expected leaf deleted, got %+v", inner)
	}
}

func TestApplyStateModifyDeleteMissingPathIsNoop(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	err := a.ApplyStateModify(StateModify{Op: StateModifyDelete, Path: []string{"missing", "leaf"}})
	if err != nil {
		t.Fatalf("expected deleting a missing path to be a no-op, got %v", err)
	}
}

func TestApplyStateModifyReplaceEmptyPath(t *testing.T) {
	a, _ := NewAgent("a1", map[string]any{"old": 1})
	err := a.ApplyStateModify(StateModify{Op: StateModifyReplace, Value: map[string]any{"new": 2}})
	if err != nil {
		t.Fatalf("ApplyStateModify: %v", err)
	}
	if _, present := a.State["old"]; present {
		t.Fatalf("expected replace with empty path to overwrite the whole state map")
	}
	if a.State["new"] != 2 {
		t.Fatalf("expected replacement map installed, got %+v", a.State)
	}
}

func TestApplyStateModifyReplaceEmptyPathRequiresMap(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	err := a.ApplyStateModify(StateModify{Op: StateModifyReplace, Value: "not a map"})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected KindValidation, got %v", err)
	}
}

func TestApplyStateModifySetEmptyPathIsInvalid(t *testing.T) {
	a, _ := NewAgent("a1", nil)
	err := a.ApplyStateModify(StateModify{Op: StateModifySet, Value: 1})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected set with empty path to be invalid, got %v", err)
	}
}
