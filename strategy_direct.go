package jido

// directStrategy is the zero-configuration default Strategy: it runs each
// routed instruction's Action synchronously, in order, collecting
// follow-up directives and leaving the last successful result in
// Agent.Result for Call to return. It does not use RunInstruction — there
// is no result-action indirection to configure — which makes it the
// right fit for agents that just want "run whatever the router matched"
// without a state machine (§4.2 names the FSM strategy as the canonical
// richer example; this is the minimal one beneath it).
type directStrategy struct{}

// NewDirectStrategy returns the default Strategy used when an AgentSpec
// doesn't supply one.
func NewDirectStrategy() Strategy { return directStrategy{} }

func (directStrategy) Init(agent *Agent, _ StrategyContext) (*Agent, []Directive, error) {
	return agent, nil, nil
}

func (directStrategy) Cmd(agent *Agent, instructions []Instruction, sctx StrategyContext) (*Agent, []Directive, error) {
	var directives []Directive
	for _, instr := range instructions {
		if instr.Action == nil {
			continue
		}
		runCtx := WithState(sctx.Context, agent.State)
		res, err := instr.Action.Run(runCtx, instr.Params)
		if err != nil {
			directives = append(directives, ErrorDirective{
				Err:     Wrap(err, "directStrategy.Cmd", KindExecution, "action failed"),
				Context: map[string]any{"action": instr.Action.Name()},
			})
			continue
		}
		agent.Result = res.Result
		directives = append(directives, res.Directives...)
	}
	return agent, directives, nil
}
