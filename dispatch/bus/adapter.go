package bus

import (
	"context"

	jido "github.com/agentjido/jido-sub001"
)

// Adapter adapts a Bus to jido.DispatchAdapter so Dispatcher.Register can
// wire a signal's Emit/RunInstruction directives straight onto the bus
// under the AdapterBus/AdapterPubSub names (§11 item 3).
type Adapter struct {
	Bus *Bus
}

// NewAdapter builds a jido.DispatchAdapter publishing to b. Topics are
// built as "jido.agent.<signal.Source>.<opts["topic"] or signal.Type>".
func NewAdapter(b *Bus) Adapter { return Adapter{Bus: b} }

func (a Adapter) Dispatch(_ context.Context, signal jido.Signal, opts map[string]any) error {
	topic := signal.Type
	if t, ok := opts["topic"].(string); ok && t != "" {
		topic = t
	}
	a.Bus.Publish(Message{
		Topic:   "jido.agent." + signal.Source + "." + topic,
		From:    signal.Source,
		Type:    signal.Type,
		Payload: signal.Data,
	})
	return nil
}
