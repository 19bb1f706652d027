// Package jido's AgentServer owns exactly one Agent and processes signals
// against it strictly serially on its own goroutine. A crash partway
// through a multi-directive drain is visible as partial state: directives
// already applied before the failure are not rolled back (§4.4, §9 open
// question — resolved as "yes, partial state is visible").
package jido

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentjido/jido-sub001/config"
	"github.com/agentjido/jido-sub001/internal/envconfig"
	"github.com/agentjido/jido-sub001/internal/logging"
)

// Status is an AgentServer's observable lifecycle state, distinct from any
// strategy-internal state machine (§4.4).
type Status string

const (
	StatusStarting Status = "starting"
	StatusIdle     Status = "idle"
	StatusProcessing Status = "processing"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

type inboxMsg struct {
	signal  Signal
	replyCh chan callResult
}

type callResult struct {
	value any
	err   error
}

type childExit struct {
	tag string
}

// ServerOptions configures an AgentServer beyond what the AgentSpec
// already determines.
type ServerOptions struct {
	Router     *Router
	Dispatcher *Dispatcher
	Settings   *config.Settings
	Storage    StorageAdapter
	Manager    string // manager_name component of the persistence key (§4.5)
	Logger     *slog.Logger
}

// AgentServer is the owning process for one Agent: inbox, pending signal
// queue (the inbox channel itself, bounded), reply-ref table, child
// registry, and directive drain loop (§4.4).
type AgentServer struct {
	id       string
	spec     AgentSpec
	strategy Strategy
	sctx     StrategyContext

	router     *Router
	dispatcher *Dispatcher
	directExec *DirectiveExec
	settings   *config.Settings
	storage    StorageAdapter
	managerName string
	logger     *slog.Logger

	inbox          chan inboxMsg
	childExit      chan childExit
	stopReq        chan string
	hibernateReq   chan string
	touch          chan struct{}

	// agent is owned exclusively by the run() goroutine — no lock guards
	// it, by design (§4.4/§5: one goroutine, one agent). External callers
	// (State, HTTP handlers, tests) must go through the published
	// snapshot below instead of touching it directly.
	agent *Agent

	publishedMu    sync.RWMutex
	publishedState map[string]any

	statusMu sync.RWMutex
	status   Status

	attachCount int32

	children map[string]*ChildHandle

	recentMu sync.Mutex
	recent   []Signal

	// drainIteration counts completed process() cycles, surfaced in the
	// Call timeout diagnostic (§5, spec.md:177).
	drainIteration int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	stopOnce sync.Once
}

// NewAgentServer constructs and starts an AgentServer for one agent. It
// runs spec.New then strategy.Init, drains Init's directives, and spawns
// the processing loop goroutine before returning.
func NewAgentServer(ctx context.Context, spec AgentSpec, id string, initial map[string]any, opts ServerOptions) (*AgentServer, error) {
	agent, strategy, err := spec.New(id, initial)
	if err != nil {
		return nil, Wrap(err, "NewAgentServer", KindInvalidAgent, "agent construction failed")
	}
	if strategy == nil {
		strategy = NewDirectStrategy()
	}

	settings := opts.Settings
	if settings == nil {
		settings = config.Load()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(settings.DefaultDispatch)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	router := opts.Router
	if router == nil {
		router, _ = NewRouter()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &AgentServer{
		id:          id,
		spec:        spec,
		strategy:    strategy,
		sctx:        StrategyContext{Context: sctx},
		router:      router,
		dispatcher:  dispatcher,
		directExec:  NewDirectiveExec(dispatcher, settings.Policy(), settings.MaxErrors),
		settings:    settings,
		storage:     opts.Storage,
		managerName: opts.Manager,
		logger:      logger,
		inbox:        make(chan inboxMsg, settings.MaxQueueSize),
		childExit:    make(chan childExit, 8),
		stopReq:      make(chan string, 1),
		hibernateReq: make(chan string, 1),
		touch:        make(chan struct{}, 1),
		agent:       agent,
		status:      StatusStarting,
		children:    map[string]*ChildHandle{},
		ctx:         sctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	initAgent, initDirectives, err := strategy.Init(agent, s.sctx)
	if err != nil {
		cancel()
		return nil, Wrap(err, "NewAgentServer", KindInvalidAgent, "strategy init failed")
	}
	s.agent = initAgent
	s.publishState()

	envconfig.SafeGo(func() { s.run(initDirectives) })
	return s, nil
}

// ID returns the agent's id.
func (s *AgentServer) ID() string { return s.id }

// Done returns a channel closed once the server has fully stopped.
func (s *AgentServer) Done() <-chan struct{} { return s.done }

func (s *AgentServer) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// emitTransition dispatches jido.agent.event.transition.{succeeded|failed}
// for an idle<->processing lifecycle transition, per §4.4/§6. err is the
// drain's overall error for a processing -> idle transition, nil otherwise.
func (s *AgentServer) emitTransition(from, to Status, err error) {
	typ := TypeEventTransitionSucceeded
	if err != nil {
		typ = TypeEventTransitionFailed
	}
	data := map[string]any{"from": string(from), "to": string(to)}
	if err != nil {
		data["error"] = err.Error()
	}
	s.dispatcher.Dispatch(s.ctx, NewSignal("", s.id, typ, data), nil)
}

// StatusNow returns the current lifecycle status. Never blocks on queue
// processing (§4.4).
func (s *AgentServer) StatusNow() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// State returns the most recently published snapshot of the agent's state
// map. It is never blocked by queue processing (§4.4): the snapshot is a
// plain copy published by the loop goroutine after each processed signal,
// so a reader never touches the live Agent the loop goroutine owns.
func (s *AgentServer) State() map[string]any {
	s.publishedMu.RLock()
	defer s.publishedMu.RUnlock()
	return s.publishedState
}

// publishState copies the live agent's state into the published snapshot.
// Must only be called from the loop goroutine.
func (s *AgentServer) publishState() {
	out := make(map[string]any, len(s.agent.State))
	for k, v := range s.agent.State {
		out[k] = v
	}
	s.publishedMu.Lock()
	s.publishedState = out
	s.publishedMu.Unlock()
}

// QueueLen reports the number of signals currently buffered in the inbox.
func (s *AgentServer) QueueLen() int { return len(s.inbox) }

// DrainIteration reports how many process() cycles the server has
// completed since it started.
func (s *AgentServer) DrainIteration() int64 { return atomic.LoadInt64(&s.drainIteration) }

// Cast enqueues signal and returns immediately with its id (§4.4). Returns
// ErrQueueOverflow if the bounded inbox is full; overflow is never silent
// — a queue.overflow event is dispatched before the error is returned.
func (s *AgentServer) Cast(ctx context.Context, signal Signal) (string, error) {
	if signal.ID == "" {
		signal = NewSignal("", signal.Source, signal.Type, signal.Data)
	}
	select {
	case s.inbox <- inboxMsg{signal: signal}:
		return signal.ID, nil
	default:
		s.dispatcher.Dispatch(ctx, NewSignal("", s.id, TypeEventQueueOverflow, map[string]any{"signal_id": signal.ID}), nil)
		return "", New("AgentServer.Cast", KindQueueOverflow, "pending queue full")
	}
}

// Call enqueues signal and blocks for a reply or until timeout elapses
// (§4.4, §5). On timeout it returns a *TimeoutError carrying a non-empty
// diagnostic; the server is unaffected and continues processing.
func (s *AgentServer) Call(ctx context.Context, signal Signal, timeout time.Duration) (any, error) {
	if signal.ID == "" {
		signal = NewSignal("", signal.Source, signal.Type, signal.Data)
	}
	replyCh := make(chan callResult, 1)
	select {
	case s.inbox <- inboxMsg{signal: signal, replyCh: replyCh}:
	default:
		s.dispatcher.Dispatch(ctx, NewSignal("", s.id, TypeEventQueueOverflow, map[string]any{"signal_id": signal.ID}), nil)
		return nil, New("AgentServer.Call", KindQueueOverflow, "pending queue full")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-replyCh:
		return res.value, res.err
	case <-timer.C:
		return nil, &TimeoutError{
			Op: "AgentServer.Call",
			Diagnostic: map[string]any{
				"queue_length":    s.QueueLen(),
				"server_status":   s.StatusNow(),
				"drain_iteration": s.DrainIteration(),
				"elapsed_ms":      timeout.Milliseconds(),
			},
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Attach increments the keep-alive reference count the InstanceManager
// uses to defeat the idle timer (§4.4).
func (s *AgentServer) Attach() { atomic.AddInt32(&s.attachCount, 1) }

// Detach decrements the keep-alive reference count.
func (s *AgentServer) Detach() {
	if atomic.AddInt32(&s.attachCount, -1) < 0 {
		atomic.StoreInt32(&s.attachCount, 0)
	}
}

// Touch resets the idle timer without otherwise affecting processing.
func (s *AgentServer) Touch() {
	select {
	case s.touch <- struct{}{}:
	default:
	}
}

// RecentEvents returns up to limit of the most recently emitted result
// signals (the out.* / error replies replyAndEmit sends) — a bounded,
// best-effort development aid, not an audit log (§4.4). Lifecycle signals
// such as started, stopped and transition events are not recorded.
func (s *AgentServer) RecentEvents(limit int) []Signal {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Signal, limit)
	copy(out, s.recent[len(s.recent)-limit:])
	return out
}

func (s *AgentServer) recordEvent(sig Signal) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, sig)
	max := s.settings.DebugMaxEvents
	if max > 0 && len(s.recent) > max {
		s.recent = s.recent[len(s.recent)-max:]
	}
}

// RequestStop asks the server to shut down gracefully after any in-flight
// directive drain completes (§4.4, §5).
func (s *AgentServer) RequestStop(reason string) {
	select {
	case s.stopReq <- reason:
	default:
	}
}

// RequestHibernateStop asks the server to hibernate (if storage is
// configured) and then shut down, per the InstanceManager's "stop ==
// hibernate then terminate" contract (§4.5). The hibernate runs on the
// server's own goroutine so it observes a consistent Agent value, never
// the caller's.
func (s *AgentServer) RequestHibernateStop(reason string) {
	select {
	case s.hibernateReq <- reason:
	default:
	}
}

// run is the single goroutine that owns all per-agent state. It processes
// signals strictly FIFO, serially; the only suspension points are the
// select below, external I/O inside an Action, or a dispatch adapter call
// (§5).
func (s *AgentServer) run(initDirectives []Directive) {
	defer close(s.done)

	s.setStatus(StatusIdle)
	s.dispatcher.Dispatch(s.ctx, NewSignal("", s.id, TypeEventStarted, nil), nil)

	idleTimeout := time.Duration(s.settings.IdleTimeoutMS) * time.Millisecond
	if idleTimeout <= 0 {
		idleTimeout = 365 * 24 * time.Hour // effectively disabled
	}
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()
	resetIdle := func() {
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(idleTimeout)
	}

	if len(initDirectives) > 0 {
		s.drain(initDirectives)
		s.publishState()
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown("context canceled")
			return

		case reason := <-s.stopReq:
			s.shutdown(reason)
			return

		case reason := <-s.hibernateReq:
			s.hibernateAndStop(reason)
			return

		case ce := <-s.childExit:
			delete(s.children, ce.tag)
			s.dispatcher.Dispatch(s.ctx, NewSignal("", s.id, TypeEventProcessTerminated, map[string]any{"tag": ce.tag}), nil)

		case <-s.touch:
			resetIdle()

		case <-idleTimer.C:
			if atomic.LoadInt32(&s.attachCount) > 0 {
				resetIdle()
				continue
			}
			s.hibernateAndStop("idle_timeout")
			return

		case msg := <-s.inbox:
			resetIdle()
			s.setStatus(StatusProcessing)
			s.emitTransition(StatusIdle, StatusProcessing, nil)
			stop, reason, procErr := s.process(msg)
			atomic.AddInt64(&s.drainIteration, 1)
			s.setStatus(StatusIdle)
			s.emitTransition(StatusProcessing, StatusIdle, procErr)
			if stop {
				s.shutdown(reason)
				return
			}
		}
	}
}

// process handles exactly one inbox message end to end (§4.4 steps 1-8).
// Returns whether the server should shut down and why, plus the drain's
// overall error (nil on a clean pass).
func (s *AgentServer) process(msg inboxMsg) (stop bool, stopReason string, err error) {
	instructions, directDispatch := s.resolveInstructions(msg.signal)
	if len(directDispatch) > 0 {
		s.dispatcher.Dispatch(s.ctx, msg.signal, directDispatch)
	}

	agentForCmd := s.agent.Clone()
	var directives []Directive
	var cmdErr error
	if len(instructions) > 0 {
		var newAgent *Agent
		newAgent, directives, cmdErr = s.strategy.Cmd(agentForCmd, instructions, s.sctx)
		if cmdErr != nil {
			directives = []Directive{ErrorDirective{Err: Wrap(cmdErr, "AgentServer.process", KindExecution, "strategy cmd failed")}}
			newAgent = agentForCmd
		}
		s.agent = newAgent
	}

	overallErr, stopRequested, reason := s.drain(directives)
	s.publishState()
	s.replyAndEmit(msg, overallErr, stopRequested, reason)
	return stopRequested, reason, overallErr
}

// drain runs DirectiveExec over directives FIFO, splicing RunInstruction
// result-action directives immediately after the triggering directive
// (§4.3, §8 invariant 6).
func (s *AgentServer) drain(directives []Directive) (overallErr error, stopRequested bool, stopReason string) {
	queue := append([]Directive(nil), directives...)
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		res, err := s.directExec.Exec(s.ctx, s.agent, s.strategy, s.sctx, d, s)

		if err != nil {
			overallErr = err
		}
		if len(res.Spliced) > 0 {
			queue = append(append([]Directive(nil), res.Spliced...), queue...)
		}
		if res.Outcome == ExecStop {
			return overallErr, true, res.StopReason
		}
	}
	return overallErr, false, ""
}

// replyAndEmit is the single code path that both fulfils a waiting caller
// (if any) and emits the correlated out.* signal — resolving §9's open
// question as "emit whenever a reply is sent": the two can never diverge
// because they share this call site.
func (s *AgentServer) replyAndEmit(msg inboxMsg, err error, stopRequested bool, stopReason string) {
	var value any = s.agent.Result

	var deliverErr error
	switch {
	case stopRequested && err == nil:
		deliverErr = Newf("AgentServer", KindExecution, "shutdown: %s", stopReason)
	case err != nil:
		deliverErr = err
	}

	if msg.replyCh != nil {
		select {
		case msg.replyCh <- callResult{value: value, err: deliverErr}:
		default:
		}
	}

	outType := TypeOutInstructionResult
	data := map[string]any{"value": value}
	if deliverErr != nil {
		outType = TypeErrExecution
		data = map[string]any{"error": deliverErr.Error()}
	}
	out := ResultSignal(msg.signal, s.id, outType, data)
	s.recordEvent(out)
	s.dispatcher.Dispatch(s.ctx, out, nil)
}

// resolveInstructions implements §4.4 step 2: strategy signal_routes
// first, else the server's router, else a default per-type action.
func (s *AgentServer) resolveInstructions(signal Signal) (instructions []Instruction, directDispatch []DispatchConfig) {
	var targets []Target
	if sr, ok := s.strategy.(SignalRouter); ok {
		if routes := sr.SignalRoutes(s.sctx); len(routes) > 0 {
			if r, err := NewRouter(routes...); err == nil {
				targets = r.Route(signal)
			}
		}
	}
	if len(targets) == 0 {
		targets = s.router.Route(signal)
	}
	if len(targets) == 0 {
		if act := s.defaultAction(signal.Type); act != nil {
			targets = []Target{{Action: act}}
		}
	}

	for _, t := range targets {
		if t.Action != nil {
			instructions = append(instructions, Instruction{
				Action: t.Action,
				Params: map[string]any{"signal": signal},
			})
			continue
		}
		directDispatch = append(directDispatch, t.Dispatch...)
	}
	return instructions, directDispatch
}

// --- ExecRuntime implementation -------------------------------------------------

func (s *AgentServer) Dispatch(ctx context.Context, signal Signal, cfg *DispatchConfig) {
	var cfgs []DispatchConfig
	if cfg != nil {
		cfgs = []DispatchConfig{*cfg}
	}
	s.dispatcher.Dispatch(ctx, signal, cfgs)
}

func (s *AgentServer) SpawnChild(spec AgentSpec, tag string, opts, meta map[string]any) (*ChildHandle, error) {
	if _, exists := s.children[tag]; exists {
		return nil, Newf("AgentServer.SpawnChild", KindExecution, "tag %q already in use", tag)
	}
	childID := fmt.Sprintf("%s/%s", s.id, tag)
	var initial map[string]any
	if v, ok := opts["initial_state"].(map[string]any); ok {
		initial = v
	}
	child, err := NewAgentServer(s.ctx, spec, childID, initial, ServerOptions{
		Router: s.router, Dispatcher: s.dispatcher, Settings: s.settings,
		Storage: s.storage, Manager: s.managerName, Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}
	handle := &ChildHandle{Server: child, Module: spec.Module, Tag: tag, Meta: meta}
	s.children[tag] = handle

	envconfig.SafeGo(func() {
		<-child.Done()
		select {
		case s.childExit <- childExit{tag: tag}:
		case <-s.ctx.Done():
		}
	})
	return handle, nil
}

func (s *AgentServer) StopChild(ctx context.Context, tag, reason string) error {
	h, ok := s.children[tag]
	if !ok {
		return ErrNotFound
	}
	h.Server.RequestStop(reason)
	return nil
}

func (s *AgentServer) ScheduleTimer(delayMS int64, message any) {
	envconfig.SafeGo(func() {
		t := time.NewTimer(time.Duration(delayMS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-t.C:
			sig := WrapScheduled(s.id, message)
			_, _ = s.Cast(s.ctx, sig)
		case <-s.ctx.Done():
		}
	})
}

func (s *AgentServer) Logger() *slog.Logger { return s.logger }

// shutdown performs graceful teardown: cancels the context, marks status
// stopped, and stops any children (best-effort, no hibernate — used for
// explicit Stop directives and StopChild requests). Idle-timeout shutdown
// goes through hibernateAndStop instead.
func (s *AgentServer) shutdown(reason string) {
	s.stopOnce.Do(func() {
		s.setStatus(StatusStopping)
		for _, h := range s.children {
			h.Server.RequestStop("parent stopping")
		}
		s.dispatcher.Dispatch(context.Background(), NewSignal("", s.id, TypeEventStopped, map[string]any{"reason": reason}), nil)
		s.setStatus(StatusStopped)
		s.cancel()
	})
}

func (s *AgentServer) hibernateAndStop(reason string) {
	if s.storage != nil {
		key := Key{AgentModule: s.spec.Module, Manager: s.managerName, Raw: s.id}
		p := NewPersist(s.storage, s.logger)
		if err := p.Hibernate(context.Background(), key, s.spec, s.agent); err != nil {
			s.logger.Error("hibernate on idle timeout failed", logging.FieldAgentID, s.id, logging.FieldError, err)
		}
	}
	s.shutdown(reason)
}

// defaultAction resolves the built-in per-type actions for control
// signals that no route matched (§4.4 step 2): jido.agent.cmd.state and
// jido.agent.cmd.queuesize.
func (s *AgentServer) defaultAction(signalType string) Action {
	switch signalType {
	case TypeCmdState:
		return ActionFunc{FuncName: "cmd.state", Fn: func(ctx context.Context, _ map[string]any) (ActionResult, error) {
			return ActionResult{Result: StateFromContext(ctx)}, nil
		}}
	case TypeCmdQueueSize:
		return ActionFunc{FuncName: "cmd.queuesize", Fn: func(_ context.Context, _ map[string]any) (ActionResult, error) {
			return ActionResult{Result: s.QueueLen()}, nil
		}}
	default:
		return nil
	}
}
