package resilient

import (
	"context"
	"testing"
	"time"

	jido "github.com/agentjido/jido-sub001"
	"github.com/agentjido/jido-sub001/dispatch/bus"
	"github.com/agentjido/jido-sub001/storage/memory"
)

func pendingKey() jido.Key {
	return jido.Key{AgentModule: "system", Manager: "dispatch", Raw: "pending"}
}

func TestPublishGoesStraightThroughWhenHealthy(t *testing.T) {
	b := bus.New()
	p := New(b, memory.New(), pendingKey(), nil)
	sub := b.Subscribe("s1", "*")

	p.Publish(bus.Message{Topic: "agent.a0.output", Type: "output"})

	select {
	case msg := <-sub.Ch:
		if msg.Topic != "agent.a0.output" {
			t.Errorf("topic = %q, want agent.a0.output", msg.Topic)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishFallsBackWhenUnhealthy(t *testing.T) {
	b := bus.New()
	store := memory.New()
	key := pendingKey()
	p := New(b, store, key, nil)
	p.SetHealthy(false)

	p.Publish(bus.Message{Topic: "agent.a0.output", Type: "output"})

	th, err := store.GetThread(context.Background(), key, pendingThreadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(th.Entries) != 1 {
		t.Fatalf("pending count = %d, want 1", len(th.Entries))
	}
	msg, ok := th.Entries[0].Payload.(bus.Message)
	if !ok {
		t.Fatalf("pending entry payload = %T, want bus.Message", th.Entries[0].Payload)
	}
	if msg.Topic != "agent.a0.output" {
		t.Errorf("pending topic = %q, want agent.a0.output", msg.Topic)
	}
}

func TestRecoverPendingReplaysAndMarksHealthy(t *testing.T) {
	b := bus.New()
	store := memory.New()
	key := pendingKey()
	p := New(b, store, key, nil)
	p.SetHealthy(false)
	p.Publish(bus.Message{Topic: "agent.a0.output"})

	sub := b.Subscribe("s1", "*")
	p.recoverPending(context.Background())

	select {
	case <-sub.Ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected replayed message on bus")
	}
	if !p.Healthy() {
		t.Error("expected publisher to be marked healthy after drain")
	}

	// A second recovery pass over the same (append-only, never-deleted)
	// thread must not replay the entry again, since the watermark has
	// already advanced past it.
	p.recoverPending(context.Background())
	select {
	case <-sub.Ch:
		t.Fatal("expected no re-delivery of an already-replayed entry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishToBuildsTopic(t *testing.T) {
	b := bus.New()
	p := New(b, memory.New(), pendingKey(), nil)
	sub := b.Subscribe("s1", "*")

	p.PublishTo(bus.TopicSystem, "health", "ping", map[string]any{"ok": true})

	select {
	case msg := <-sub.Ch:
		if msg.Topic != "system.health" {
			t.Errorf("topic = %q, want system.health", msg.Topic)
		}
		if msg.From != "system" {
			t.Errorf("from = %q, want system", msg.From)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}
