package jido

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentjido/jido-sub001/config"
	"github.com/agentjido/jido-sub001/internal/logging"
)

// ChildHandle is what DirectiveExec and AgentServer track for a spawned
// child agent: its server handle plus the identity it was spawned with
// (§4.3 SpawnAgent, §4.4 children registry).
type ChildHandle struct {
	Server *AgentServer
	Module string
	Tag    string
	Meta   map[string]any
}

// ExecRuntime is the mutable server-owned surface DirectiveExec acts
// against: children, timers, dispatch, logging (§4.3). AgentServer is the
// only production implementation; tests may supply a fake.
type ExecRuntime interface {
	Dispatch(ctx context.Context, signal Signal, cfg *DispatchConfig)
	SpawnChild(spec AgentSpec, tag string, opts, meta map[string]any) (*ChildHandle, error)
	StopChild(ctx context.Context, tag, reason string) error
	ScheduleTimer(delayMS int64, message any)
	Logger() *slog.Logger
}

// ExecOutcome is DirectiveExec's verdict on what the drain loop should do
// next.
type ExecOutcome int

const (
	ExecContinue ExecOutcome = iota
	ExecAsync
	ExecStop
)

// ExecResult is the result of executing one directive.
type ExecResult struct {
	Outcome    ExecOutcome
	Spliced    []Directive // directives to process before the rest of the queue (RunInstruction splicing, §4.3)
	StopReason string
}

// DirectiveExec interprets one Directive at a time against an agent plus
// an ExecRuntime (§4.3). One instance is owned per AgentServer; its error
// counter is therefore per-agent mutable state, not shared.
type DirectiveExec struct {
	Dispatcher *Dispatcher
	Policy     config.ErrorPolicyKind
	MaxErrors  int

	errCount int
}

// NewDirectiveExec builds a DirectiveExec for one AgentServer.
func NewDirectiveExec(dispatcher *Dispatcher, policy config.ErrorPolicyKind, maxErrors int) *DirectiveExec {
	return &DirectiveExec{Dispatcher: dispatcher, Policy: policy, MaxErrors: maxErrors}
}

// Exec applies one directive. agent is mutated in place. strategy/sctx are
// needed only for RunInstruction, which re-enters the strategy's Cmd.
func (de *DirectiveExec) Exec(ctx context.Context, agent *Agent, strategy Strategy, sctx StrategyContext, d Directive, rt ExecRuntime) (ExecResult, error) {
	switch v := d.(type) {
	case Emit:
		var cfg *DispatchConfig
		if v.Dispatch != nil {
			cfg = v.Dispatch
		} else if v.Signal.Dispatch != nil {
			cfg = v.Signal.Dispatch
		}
		rt.Dispatch(ctx, v.Signal, cfg)
		return ExecResult{Outcome: ExecAsync}, nil

	case Enqueue:
		agent.Enqueue(v.Instruction)
		return ExecResult{Outcome: ExecContinue}, nil

	case RunInstruction:
		return de.execRunInstruction(ctx, agent, strategy, sctx, v, rt)

	case Schedule:
		rt.ScheduleTimer(v.DelayMS, v.Message)
		return ExecResult{Outcome: ExecAsync}, nil

	case SpawnAgent:
		handle, err := rt.SpawnChild(v.Spec, v.Tag, v.Opts, v.Meta)
		if err != nil {
			rt.Logger().Warn("spawn agent failed, leaving state unchanged",
				logging.FieldTag, v.Tag, logging.FieldError, err)
			return ExecResult{Outcome: ExecContinue}, nil
		}
		rt.Dispatch(ctx, NewSignal("", handle.Server.id, TypeEventProcessStarted, map[string]any{"tag": v.Tag}), nil)
		return ExecResult{Outcome: ExecContinue}, nil

	case StopChild:
		if err := rt.StopChild(ctx, v.Tag, v.Reason); err != nil && !errors.Is(err, ErrNotFound) {
			rt.Logger().Warn("stop child failed", logging.FieldTag, v.Tag, logging.FieldError, err)
		}
		return ExecResult{Outcome: ExecContinue}, nil

	case Stop:
		return ExecResult{Outcome: ExecStop, StopReason: v.Reason}, nil

	case ErrorDirective:
		return de.execError(v, rt), nil

	case StateModify:
		if err := agent.ApplyStateModify(v); err != nil {
			return de.execError(ErrorDirective{Err: err, Context: map[string]any{"op": v.Op, "path": v.Path}}, rt), nil
		}
		return ExecResult{Outcome: ExecContinue}, nil

	case RegisterAction:
		agent.RegisterAction(v.Action)
		return ExecResult{Outcome: ExecContinue}, nil

	case DeregisterAction:
		agent.DeregisterAction(v.Name)
		return ExecResult{Outcome: ExecContinue}, nil

	default:
		// Unknown directive: forward-compat no-op (§4.3).
		return ExecResult{Outcome: ExecContinue}, nil
	}
}

func (de *DirectiveExec) execError(v ErrorDirective, rt ExecRuntime) ExecResult {
	switch de.Policy {
	case config.ErrorPolicyStopOnError:
		rt.Logger().Error("agent error, stopping per policy", logging.FieldError, v.Err)
		return ExecResult{Outcome: ExecStop, StopReason: "agent_error"}
	case config.ErrorPolicyMaxErrors:
		de.errCount++
		rt.Logger().Warn("agent error, counted", logging.FieldError, v.Err, "count", de.errCount, "max", de.MaxErrors)
		if de.errCount >= de.MaxErrors {
			return ExecResult{Outcome: ExecStop, StopReason: "max_errors"}
		}
		return ExecResult{Outcome: ExecContinue}
	default: // log_only
		rt.Logger().Warn("agent error, logged only", logging.FieldError, v.Err)
		return ExecResult{Outcome: ExecContinue}
	}
}

// execRunInstruction runs instruction.Action outside the strategy,
// synthesizes a result instruction targeting ResultAction, and re-enters
// the strategy's Cmd so its follow-up directives can be spliced ahead of
// the rest of the outer drain (§4.3).
func (de *DirectiveExec) execRunInstruction(ctx context.Context, agent *Agent, strategy Strategy, sctx StrategyContext, v RunInstruction, rt ExecRuntime) (ExecResult, error) {
	runCtx := WithState(ctx, agent.State)
	result, err := v.Instruction.Action.Run(runCtx, v.Instruction.Params)

	payload := map[string]any{
		"instruction": v.Instruction,
		"meta":        v.Meta,
	}
	if err != nil {
		payload["status"] = "error"
		payload["reason"] = err
	} else {
		payload["status"] = "ok"
		payload["result"] = result.Result
		payload["effects"] = result.Directives
	}

	resultInstr := Instruction{Action: v.ResultAction, Params: payload}
	newAgent, directives, cerr := strategy.Cmd(agent, []Instruction{resultInstr}, sctx)
	if cerr != nil {
		return de.execError(ErrorDirective{Err: Wrap(cerr, "DirectiveExec.RunInstruction", KindExecution, "result_action cmd failed")}, rt), nil
	}
	*agent = *newAgent
	return ExecResult{Outcome: ExecContinue, Spliced: directives}, nil
}
