// Package toolkit routes the inbound event stream to per-session runtimes:
// it demultiplexes by session id, registers sessions up to the concurrency
// cap, and keeps the agent enrolled with the matchmaking queue.
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaiground/agentkit/internal/agent"
	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
	"github.com/plaiground/agentkit/internal/session"
	"github.com/plaiground/agentkit/internal/task"
	"github.com/plaiground/agentkit/internal/transport"
)

// ErrUnexpectedExit reports that the inbound subscription returned even
// though no shutdown was requested. The run loop is meant to run forever;
// any other return is a fault the process supervisor must see.
var ErrUnexpectedExit = errors.New("inbound subscription exited unexpectedly")

// EnvironmentFactory builds the environment for one newly registered
// session. Returning an error aborts only that session's registration.
type EnvironmentFactory func(sctx event.SessionContext, state *game.State, emitter *session.Emitter, cfg session.Config) (session.Environment, error)

// Option customises a Toolkit.
type Option func(*Toolkit)

// WithEnvironmentFactory replaces the default environment construction.
func WithEnvironmentFactory(factory EnvironmentFactory) Option {
	return func(t *Toolkit) { t.factory = factory }
}

// WithTaskLoader seeds each new session's projection from the task data the
// session start event names.
func WithTaskLoader(loader task.Loader) Option {
	return func(t *Toolkit) { t.tasks = loader }
}

// Toolkit is the session router. One Toolkit serves one agent identity over
// one bus connection.
type Toolkit struct {
	guard      *agent.Guard
	client     transport.Client
	cfg        Config
	sessionCfg session.Config
	factory    EnvironmentFactory
	tasks      task.Loader

	mu       sync.Mutex
	sessions map[string]*session.Runtime
	runCtx   context.Context

	tracer trace.Tracer
}

// New builds a coordinator for the given agent over the given bus client.
func New(ag agent.Agent, client transport.Client, cfg Config, opts ...Option) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("toolkit config: %w", err)
	}
	if ag == nil {
		return nil, errors.New("agent is required")
	}
	if client == nil {
		return nil, errors.New("transport client is required")
	}

	t := &Toolkit{
		guard:      agent.NewGuard(ag),
		client:     client,
		cfg:        cfg,
		sessionCfg: cfg.SessionConfig(),
		sessions:   make(map[string]*session.Runtime),
		runCtx:     context.Background(),
		tracer:     otel.Tracer("github.com/plaiground/agentkit/internal/toolkit"),
	}
	t.factory = func(sctx event.SessionContext, state *game.State, emitter *session.Emitter, cfg session.Config) (session.Environment, error) {
		return session.NewGameEnvironment(sctx, state, emitter, nil, cfg), nil
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run announces readiness for the full session capacity, then consumes the
// inbound stream until ctx is cancelled. A nil return only happens on
// requested shutdown; every other outcome wraps ErrUnexpectedExit.
func (t *Toolkit) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	if err := t.announceReady(ctx, t.cfg.MaxConcurrentSessions); err != nil {
		return fmt.Errorf("announce readiness: %w", err)
	}
	log.Printf("toolkit: agent %s ready for up to %d sessions",
		t.cfg.AgentServiceID, t.cfg.MaxConcurrentSessions)

	err := t.client.Subscribe(ctx, func(evt event.Event) {
		t.Dispatch(&evt)
	})
	t.shutdown()

	if ctx.Err() != nil {
		log.Printf("toolkit: shutdown requested, %s", ctx.Err())
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedExit, err)
	}
	return ErrUnexpectedExit
}

// Dispatch routes one inbound event. Rules are evaluated top to bottom and
// the first match wins; unroutable events are dropped with at most a log
// line because the bus is multi-tenant and noisy by design.
func (t *Toolkit) Dispatch(evt *event.Event) {
	if evt == nil {
		log.Printf("toolkit: dropping nil event")
		return
	}
	if evt.Source != event.SourcePlatform {
		// Foreign-origin events, including this agent's own echoes.
		return
	}
	if evt.SessionID == "" {
		log.Printf("toolkit: dropping %s event %s without session id", evt.Type, evt.ID)
		return
	}
	if evt.SubscriptionFilterKey != t.cfg.AgentServiceID {
		// The platform stamps every delivered event with the addressee;
		// anything else belongs to another agent on the shared bus.
		return
	}

	_, span := t.tracer.Start(t.runContext(), "toolkit.dispatch",
		trace.WithAttributes(
			attribute.String("event.type", string(evt.Type)),
			attribute.String("session.id", evt.SessionID),
		))
	defer span.End()

	t.mu.Lock()
	runtime, known := t.sessions[evt.SessionID]
	active := len(t.sessions)
	t.mu.Unlock()

	switch {
	case known:
		runtime.Enqueue(*evt)
		if evt.Type == event.TypeSessionEnd {
			t.remove(evt.SessionID)
			if t.cfg.AutoRejoin {
				if err := t.announceReady(t.runContext(), 1); err != nil {
					log.Printf("toolkit: rejoin after session %s: %v", evt.SessionID, err)
				}
			}
		}
	case evt.Type == event.TypeSessionStart && active < t.cfg.MaxConcurrentSessions:
		if err := t.register(evt); err != nil {
			// One session's startup failure must not take the router down.
			log.Printf("toolkit: registering session %s failed: %v", evt.SessionID, err)
		}
	case evt.Type == event.TypeSessionStart:
		log.Printf("toolkit: dropping session start for %s, already at %d concurrent sessions",
			evt.SessionID, t.cfg.MaxConcurrentSessions)
	default:
		log.Printf("toolkit: dropping %s event %s for untracked session %s",
			evt.Type, evt.ID, evt.SessionID)
	}
}

// ActiveSessions reports the number of sessions currently registered.
func (t *Toolkit) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// SessionIDs lists the registered session ids in stable order.
func (t *Toolkit) SessionIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionState returns the projection of a registered session. Reading it
// while the session runs is supported only under synchronous processing.
func (t *Toolkit) SessionState(sessionID string) (*game.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	runtime, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return runtime.State(), true
}

func (t *Toolkit) register(evt *event.Event) error {
	sctx := event.SessionContext{
		TournamentID: evt.TournamentID,
		TaskID:       evt.TaskID,
		SessionID:    evt.SessionID,
		GroupID:      evt.GroupID,
		RoleID:       t.cfg.RoleID,
	}
	ctx := t.runContext()

	state := game.NewState()
	if t.tasks != nil && sctx.TaskID != "" {
		seed, err := t.tasks.Load(ctx, sctx.TaskID)
		if err != nil {
			return fmt.Errorf("load task %s: %w", sctx.TaskID, err)
		}
		if err := state.SeedTask(seed); err != nil {
			return fmt.Errorf("seed task %s: %w", sctx.TaskID, err)
		}
	}

	emitter := session.NewEmitter(t.client, sctx, state, t.sessionCfg)
	env, err := t.factory(sctx, state, emitter, t.sessionCfg)
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}

	runtime := session.NewRuntime(sctx, env, t.guard, t.sessionCfg)

	t.mu.Lock()
	t.sessions[sctx.SessionID] = runtime
	t.mu.Unlock()

	runtime.Start(ctx)
	log.Printf("toolkit: session %s registered for task %s", sctx.SessionID, sctx.TaskID)
	return nil
}

func (t *Toolkit) remove(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	log.Printf("toolkit: session %s removed", sessionID)
}

// shutdown stops every active session and waits for its runtime loop to
// finish; no session may be abandoned mid-mutation.
func (t *Toolkit) shutdown() {
	t.mu.Lock()
	runtimes := make([]*session.Runtime, 0, len(t.sessions))
	for _, runtime := range t.sessions {
		runtimes = append(runtimes, runtime)
	}
	t.sessions = make(map[string]*session.Runtime)
	t.mu.Unlock()

	for _, runtime := range runtimes {
		runtime.Stop()
	}
	for _, runtime := range runtimes {
		runtime.Join()
		log.Printf("toolkit: session %s stopped", runtime.SessionID())
	}
}

func (t *Toolkit) announceReady(ctx context.Context, count int) error {
	batch := make([]event.Event, 0, count)
	for i := 0; i < count; i++ {
		evt, err := event.NewReady(t.cfg.AgentServiceID, t.cfg.MaxConcurrentSessions)
		if err != nil {
			return err
		}
		batch = append(batch, evt)
	}
	return t.client.SendEvents(ctx, batch)
}

func (t *Toolkit) runContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runCtx
}
