// cmd/jido-demo wires one AgentSpec end to end — router, direct strategy,
// in-memory storage, bus dispatch, and the HTTP control surface — as a
// runnable example of the pieces this module provides.
package main

import (
	"context"
	"os/signal"
	"syscall"

	jido "github.com/agentjido/jido-sub001"
	"github.com/agentjido/jido-sub001/config"
	"github.com/agentjido/jido-sub001/dispatch/bus"
	"github.com/agentjido/jido-sub001/internal/envconfig"
	"github.com/agentjido/jido-sub001/internal/httpapi"
	"github.com/agentjido/jido-sub001/internal/logging"
	"github.com/agentjido/jido-sub001/storage/memory"
)

// echoAction returns whatever params["message"] holds, unchanged.
type echoAction struct{}

func (echoAction) Name() string { return "echo" }

func (echoAction) Run(_ context.Context, params map[string]any) (jido.ActionResult, error) {
	return jido.ActionResult{Result: params["message"]}, nil
}

func echoSpec() jido.AgentSpec {
	return jido.AgentSpec{
		Module: "jido.demo.echo",
		New: func(id string, initial map[string]any) (*jido.Agent, jido.Strategy, error) {
			agent, err := jido.NewAgent(id, initial)
			if err != nil {
				return nil, nil, err
			}
			agent.RegisterAction(echoAction{})
			return agent, jido.NewDirectStrategy(), nil
		},
	}
}

func buildRouter() (*jido.Router, error) {
	return jido.NewRouter(jido.RouteConfig{
		Pattern:  "jido.agent.cmd.run",
		Priority: jido.PriorityAgent,
		Target:   jido.Target{Action: echoAction{}},
	})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	settings := config.Load()
	logging.Init(settings.LogLevel)
	log := logging.Default()

	messageBus := bus.New()
	dispatcher := jido.NewDispatcher(settings.DefaultDispatch)
	dispatcher.Register(jido.AdapterBus, bus.NewAdapter(messageBus))

	store := memory.New()

	router, err := buildRouter()
	if err != nil {
		log.Error("router build failed", logging.FieldError, err)
		return
	}

	manager := jido.NewInstanceManager("demo", echoSpec(), jido.ManagerOptions{
		Router:     router,
		Dispatcher: dispatcher,
		Settings:   settings,
		Storage:    store,
		Logger:     log,
	})

	api := httpapi.NewServer(manager, messageBus)
	envconfig.SafeGo(func() {
		if err := api.ListenAndServe(ctx, settings.HTTPAddr); err != nil {
			log.Error("httpapi server failed", logging.FieldError, err)
		}
	})

	log.Info("jido-demo started", "http_addr", settings.HTTPAddr)
	<-ctx.Done()
	log.Info("jido-demo shutting down")
}
