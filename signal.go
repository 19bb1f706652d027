package jido

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signal is the typed envelope carrying every event into and out of an
// AgentServer (§3). It is immutable once created; callers that need a
// modified copy should build a new Signal rather than mutate fields.
type Signal struct {
	ID       string
	Source   string
	Type     string
	Data     any
	Dispatch *DispatchConfig
}

// Signal type taxonomy (§6). Bit-stable: external tooling consumes these
// literal strings.
const (
	TypeCmdState       = "jido.agent.cmd.state"
	TypeCmdQueueSize    = "jido.agent.cmd.queuesize"
	TypeCmdSet          = "jido.agent.cmd.set"
	TypeCmdValidate     = "jido.agent.cmd.validate"
	TypeCmdPlan         = "jido.agent.cmd.plan"
	TypeCmdRun          = "jido.agent.cmd.run"
	TypeCmdCmd          = "jido.agent.cmd.cmd"
	TypeCmdStop         = "jido.agent.stop"

	TypeEventStarted             = "jido.agent.event.started"
	TypeEventStopped             = "jido.agent.event.stopped"
	TypeEventTransitionSucceeded = "jido.agent.event.transition.succeeded"
	TypeEventTransitionFailed    = "jido.agent.event.transition.failed"
	TypeEventQueueOverflow       = "jido.agent.event.queue.overflow"
	TypeEventQueueCleared        = "jido.agent.event.queue.cleared"
	TypeEventProcessStarted      = "jido.agent.event.process.started"
	TypeEventProcessRestarted    = "jido.agent.event.process.restarted"
	TypeEventProcessTerminated   = "jido.agent.event.process.terminated"
	TypeEventProcessFailed       = "jido.agent.event.process.failed"

	TypeErrExecution = "jido.agent.err.execution.error"

	TypeOutInstructionResult = "jido.agent.out.instruction.result"
	TypeOutSignalResult      = "jido.agent.out.signal.result"

	TypeScheduled = "jido.scheduled"
)

// NewSignal creates a Signal, assigning a random (v4) UUID when id is
// empty. Producers that need correlation (result signals) should pass the
// originating signal's id explicitly.
func NewSignal(id, source, typ string, data any) Signal {
	if id == "" {
		id = uuid.NewString()
	}
	return Signal{ID: id, Source: source, Type: typ, Data: data}
}

// ResultSignal builds an out.* signal that reuses the originating signal's
// id verbatim, per §3/§6 ("signal id reuse").
func ResultSignal(original Signal, source, typ string, data any) Signal {
	return Signal{ID: original.ID, Source: source, Type: typ, Data: data}
}

// WrapScheduled wraps an arbitrary message into a jido.scheduled signal, as
// Schedule directives do for non-Signal payloads (§4.3).
func WrapScheduled(source string, message any) Signal {
	if s, ok := message.(Signal); ok {
		return s
	}
	return NewSignal("", source, TypeScheduled, map[string]any{"message": message})
}

// splitPath splits a dotted-path signal type into its literal segments.
// Used by Router.Route and TopicPrefixMatch.
func splitPath(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// TopicPrefixMatch reports whether topic falls under the dotted-segment
// prefix named by filter, using the same literal-segment comparison the
// Router applies to route patterns (§4.1) rather than a byte-level string
// prefix check — so "agent.a0" matches "agent.a0.output" but not
// "agent.a0x". dispatch/bus uses this to filter subscriptions, keeping the
// bus and the router speaking one dotted-path convention.
func TopicPrefixMatch(filter, topic string) bool {
	if filter == "" {
		return topic == ""
	}
	filterSegs := splitPath(filter)
	topicSegs := splitPath(topic)
	if len(topicSegs) < len(filterSegs) {
		return false
	}
	for i, seg := range filterSegs {
		if topicSegs[i] != seg {
			return false
		}
	}
	return true
}

// nowUnixMilli is a small seam kept so tests can reason about elapsed time
// without depending on wall-clock flakiness at the call site.
func nowUnixMilli() int64 { return time.Now().UnixMilli() }
