package jido_test

import (
	"context"
	"testing"

	jido "github.com/agentjido/jido-sub001"
	"github.com/agentjido/jido-sub001/storage/memory"
)

func echoSpecForPersist() jido.AgentSpec {
	return jido.AgentSpec{
		Module: "test.echo",
		New: func(id string, initial map[string]any) (*jido.Agent, jido.Strategy, error) {
			a, err := jido.NewAgent(id, initial)
			if err != nil {
				return nil, nil, err
			}
			return a, jido.NewDirectStrategy(), nil
		},
	}
}

func TestPersistHibernateThawRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := jido.NewPersist(store, nil)
	spec := echoSpecForPersist()
	key := jido.Key{AgentModule: spec.Module, Manager: "demo", Raw: "a1"}

	agent, err := jido.NewAgent("a1", map[string]any{"count": 1})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	th := jido.NewThread("t1", nil)
	th.Append(jido.Entry{Kind: "note", Payload: "hi"})
	agent.AttachThread(th)

	if err := p.Hibernate(ctx, key, spec, agent); err != nil {
		t.Fatalf("Hibernate: %v", err)
	}

	restored, _, err := p.Thaw(ctx, spec, key)
	if err != nil {
		t.Fatalf("Thaw: %v", err)
	}
	if restored.ID != "a1" || restored.State["count"] != 1 {
		t.Fatalf("expected restored state to round-trip, got %+v", restored.State)
	}
	restoredThread, ok := restored.Thread()
	if !ok {
		t.Fatalf("expected thread reattached after thaw")
	}
	if restoredThread.Rev != 1 || len(restoredThread.Entries) != 1 {
		t.Fatalf("expected thread entries to round-trip, got %+v", restoredThread)
	}
}

func TestPersistHibernateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := jido.NewPersist(store, nil)
	spec := echoSpecForPersist()
	key := jido.Key{AgentModule: spec.Module, Manager: "demo", Raw: "a1"}

	agent, _ := jido.NewAgent("a1", nil)
	th := jido.NewThread("t1", nil)
	th.Append(jido.Entry{Kind: "note"})
	agent.AttachThread(th)

	if err := p.Hibernate(ctx, key, spec, agent); err != nil {
		t.Fatalf("first Hibernate: %v", err)
	}
	if err := p.Hibernate(ctx, key, spec, agent); err != nil {
		t.Fatalf("expected a second Hibernate with no new entries to be a no-op, got %v", err)
	}
}

func TestPersistThawMissingCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := jido.NewPersist(store, nil)
	spec := echoSpecForPersist()
	key := jido.Key{AgentModule: spec.Module, Manager: "demo", Raw: "unknown"}

	_, _, err := p.Thaw(ctx, spec, key)
	if !jido.IsKind(err, jido.KindStorage) {
		t.Fatalf("expected KindStorage for a missing checkpoint, got %v", err)
	}
}

// brokenThreadStore wraps memory.Store but always reports a thread missing,
// to exercise Persist.Thaw's missing_thread detail path without needing a
// real storage backend that can diverge from its own checkpoint.
type brokenThreadStore struct {
	*memory.Store
}

func (b brokenThreadStore) GetThread(context.Context, jido.Key, string) (*jido.Thread, error) {
	return nil, jido.ErrNotFound
}

func TestPersistThawMissingThread(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	store := brokenThreadStore{Store: inner}
	p := jido.NewPersist(store, nil)
	spec := echoSpecForPersist()
	key := jido.Key{AgentModule: spec.Module, Manager: "demo", Raw: "a1"}

	agent, _ := jido.NewAgent("a1", nil)
	th := jido.NewThread("t1", nil)
	th.Append(jido.Entry{Kind: "note"})
	agent.AttachThread(th)

	if err := p.Hibernate(ctx, key, spec, agent); err != nil {
		t.Fatalf("Hibernate: %v", err)
	}

	_, _, err := p.Thaw(ctx, spec, key)
	if err == nil {
		t.Fatalf("expected an error when the checkpoint's thread pointer can't be resolved")
	}
	if !contains(err.Error(), jido.StorageMissingThread) {
		t.Fatalf("expected storage_error{missing_thread}, got %v", err)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
