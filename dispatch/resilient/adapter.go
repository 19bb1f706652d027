package resilient

import (
	"context"

	jido "github.com/agentjido/jido-sub001"

	"github.com/agentjido/jido-sub001/dispatch/bus"
)

// Adapter adapts a Publisher to jido.DispatchAdapter, registered under
// AdapterResilient so Settings.DefaultDispatch == "resilient" routes
// every Emit through the durability-degrading path (§11 item 4).
type Adapter struct {
	Publisher *Publisher
}

// NewAdapter builds a jido.DispatchAdapter over p.
func NewAdapter(p *Publisher) Adapter { return Adapter{Publisher: p} }

func (a Adapter) Dispatch(_ context.Context, signal jido.Signal, opts map[string]any) error {
	topic := signal.Type
	if t, ok := opts["topic"].(string); ok && t != "" {
		topic = t
	}
	a.Publisher.Publish(bus.Message{
		Topic:   "jido.agent." + signal.Source + "." + topic,
		From:    signal.Source,
		Type:    signal.Type,
		Payload: signal.Data,
	})
	return nil
}
