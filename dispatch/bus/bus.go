// Package bus is a process-internal pub/sub fan-out for signal traffic
// that needs more than one listener: dashboards, audit sinks, bridged
// transports (§11). It is deliberately separate from the routing
// Dispatcher — the Dispatcher decides which Action a signal invokes,
// MessageBus decides who else gets to observe it.
package bus

import (
	"sync"
	"time"

	jido "github.com/agentjido/jido-sub001"
)

// Message is one published event. Payload is left as any rather than
// json.RawMessage since publishers on this side are in-process callers,
// not over-the-wire producers.
type Message struct {
	Topic     string
	From      string
	To        string
	Type      string
	Payload   any
	Timestamp time.Time
	Seq       int64
}

// Topic prefix conventions. Subscribers filter by prefix, not exact
// match, so "agent.a0" catches "agent.a0.output" and "agent.a0.status"
// alike.
const (
	TopicAgent        = "agent"
	TopicSystem       = "system"
	TopicOrchestration = "orchestration"
	TopicAll          = "*"
)

// Subscriber is a live subscription: Ch delivers every Message whose
// Topic matches Filter.
type Subscriber struct {
	ID     string
	Filter string
	Ch     chan Message
}

// Bus is an in-process topic pub/sub. Publish fans a message out to every
// subscriber whose Filter matches, without blocking on a slow or dead
// subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	seq         int64
	onPublish   func(Message)
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*Subscriber)}
}

// SetOnPublish installs a callback invoked once per published message,
// outside the bus's lock, for bridging into an external sink (an SSE
// stream, a log). Only one callback is kept; a later call replaces it.
func (b *Bus) SetOnPublish(fn func(Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPublish = fn
}

// Publish assigns the next sequence number and timestamp, then fans out
// to matching subscribers. seq assignment and fan-out happen under the
// same lock so delivery order matches seq order; a subscriber with a
// full channel is skipped rather than blocking the publisher.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	b.seq++
	msg.Seq = b.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	onPub := b.onPublish
	for _, sub := range b.subscribers {
		if matchTopic(sub.Filter, msg.Topic) {
			select {
			case sub.Ch <- msg:
			default:
			}
		}
	}
	b.mu.Unlock()

	if onPub != nil {
		onPub(msg)
	}
}

// Subscribe registers a new subscription under id, filtered by topic
// prefix ("agent.a0", "system", or "*" for everything). A later
// Subscribe with the same id replaces the previous one.
func (b *Bus) Subscribe(id, filter string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{ID: id, Filter: filter, Ch: make(chan Message, 64)}
	b.subscribers[id] = sub
	return sub
}

// Unsubscribe removes and closes the subscription registered under id,
// if any.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount reports how many subscriptions are currently live.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Seq reports the most recently assigned sequence number.
func (b *Bus) Seq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// matchTopic reports whether topic falls under filter: "*" broadcasts to
// everything, otherwise filter is a dotted-segment prefix of topic per
// jido.TopicPrefixMatch ("agent.a0" matches "agent.a0.output" but not
// "agent.a0x").
func matchTopic(filter, topic string) bool {
	if filter == TopicAll {
		return true
	}
	return jido.TopicPrefixMatch(filter, topic)
}
