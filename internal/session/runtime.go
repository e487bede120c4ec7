package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaiground/agentkit/internal/agent"
	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
)

// inbound pairs an event with an optional completion signal for synchronous
// processing.
type inbound struct {
	evt  event.Event
	done chan struct{}
}

// Runtime drives one session's control loop on its own goroutine. Events are
// applied strictly in arrival order; the decision loop runs only while the
// session's role holds the turn.
type Runtime struct {
	sctx  event.SessionContext
	env   Environment
	agent agent.Agent
	cfg   Config

	inbox  chan inbound
	stop   chan struct{}
	exited chan struct{}

	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// firstStep marks that the next decision step begins a new turn.
	firstStep bool
	obs       game.Observation

	tracer trace.Tracer
}

// NewRuntime builds a session runtime. The agent is shared across sessions
// and must already be guarded for concurrent use.
func NewRuntime(sctx event.SessionContext, env Environment, ag agent.Agent, cfg Config) *Runtime {
	cfg = cfg.withDefaults()
	return &Runtime{
		sctx:   sctx,
		env:    env,
		agent:  ag,
		cfg:    cfg,
		inbox:  make(chan inbound, cfg.QueueSize),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
		tracer: otel.Tracer("github.com/plaiground/agentkit/internal/session"),
	}
}

// Start resets the environment and launches the runtime loop.
func (r *Runtime) Start(ctx context.Context) {
	r.running.Store(true)
	r.firstStep = true
	r.obs = r.env.Reset()

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop asks the runtime loop to exit. The loop observes the flag between
// iterations; an in-flight decision step always completes first.
func (r *Runtime) Stop() {
	r.running.Store(false)
	r.stopOnce.Do(func() { close(r.stop) })
}

// Join blocks until the runtime loop has exited.
func (r *Runtime) Join() {
	r.wg.Wait()
}

// Enqueue hands an inbound event to the runtime loop. In synchronous mode it
// blocks until the event has been fully applied and any resulting decision
// step has completed, giving the caller a happens-before edge on the
// projection. Events for an exited runtime are dropped.
func (r *Runtime) Enqueue(evt event.Event) {
	in := inbound{evt: evt}
	if r.cfg.Synchronous {
		in.done = make(chan struct{})
	}

	select {
	case r.inbox <- in:
	case <-r.exited:
		log.Printf("session %s: dropping event %s, runtime exited", r.sctx.SessionID, evt.ID)
		return
	}
	if in.done == nil {
		return
	}

	if r.cfg.SyncWaitTimeout > 0 {
		select {
		case <-in.done:
		case <-time.After(r.cfg.SyncWaitTimeout):
			log.Printf("session %s: synchronous wait for event %s timed out after %s",
				r.sctx.SessionID, evt.ID, r.cfg.SyncWaitTimeout)
		}
		return
	}
	select {
	case <-in.done:
	case <-r.exited:
	}
}

// SessionID returns the session this runtime serves.
func (r *Runtime) SessionID() string {
	return r.sctx.SessionID
}

// State returns the session projection. Reading it from another goroutine is
// supported only under synchronous processing.
func (r *Runtime) State() *game.State {
	return r.env.State()
}

func (r *Runtime) run(ctx context.Context) {
	defer r.wg.Done()
	defer r.drain()
	defer func() {
		if err := r.env.Close(); err != nil {
			log.Printf("session %s: close environment: %v", r.sctx.SessionID, err)
		}
	}()

	for r.running.Load() {
		if ctx.Err() != nil {
			return
		}

		var in *inbound
		select {
		case next := <-r.inbox:
			in = &next
		default:
		}

		if in != nil {
			if in.evt.Type == event.TypeSessionEnd {
				r.agent.SessionEnd()
				signal(in)
				log.Printf("session %s: session ended", r.sctx.SessionID)
				return
			}
			if err := r.env.ApplyEvent(in.evt); err != nil {
				// A projection that failed to replay cannot safely continue.
				signal(in)
				log.Printf("session %s: replay of event %s failed, terminating runtime: %v",
					r.sctx.SessionID, in.evt.ID, err)
				return
			}
			if in.evt.Type == event.TypeTurnChange && in.evt.PreviousActiveRoleID == r.sctx.RoleID {
				// The turn moved off this role, whether forced by the platform
				// or confirming this role's own end turn. Either way this is
				// the single place the agent hears about it.
				r.env.TurnEnding()
				r.agent.TurnEnd()
				r.firstStep = true
			}
		}

		if r.env.State().ActiveRoleID == r.sctx.RoleID {
			r.decisionStep(ctx)
		}
		signal(in)

		if in == nil && r.env.State().ActiveRoleID != r.sctx.RoleID {
			select {
			case <-time.After(r.cfg.PollInterval):
			case <-r.stop:
			case <-ctx.Done():
			}
		}
	}
}

// decisionStep runs one iteration of the agent's turn. The first step of a
// turn is a no-op refresh so events applied just before it are visible in
// the observation the agent reasons about.
func (r *Runtime) decisionStep(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "session.decision_step",
		trace.WithAttributes(
			attribute.String("session.id", r.sctx.SessionID),
			attribute.String("session.role", r.sctx.RoleID),
		))
	defer span.End()

	if r.firstStep {
		r.env.TurnStarting()
		result, err := r.env.Step(ctx, r.env.NoOpAction())
		if err != nil {
			log.Printf("session %s: observation refresh failed: %v", r.sctx.SessionID, err)
			return
		}
		r.obs = result.Observation
		r.env.TurnInProgress()
		r.firstStep = false
		if result.Done {
			// The episode can already be over when the turn starts.
			r.finishTurn(ctx)
		}
		return
	}

	action, err := r.agent.NextAction(r.obs, r.env.State())
	if err != nil {
		// The turn is not forfeited on a single decision error; recover the
		// agent and retry on the next iteration.
		log.Printf("session %s: decision failed, restarting agent: %v", r.sctx.SessionID, err)
		r.agent.Restart(err)
		return
	}

	result, err := r.env.Step(ctx, action)
	if err != nil {
		log.Printf("session %s: applying action failed, restarting agent: %v", r.sctx.SessionID, err)
		r.agent.Restart(err)
		return
	}
	r.obs = result.Observation

	if result.Done {
		r.finishTurn(ctx)
	}
}

// finishTurn gives the turn back to the platform. The agent's TurnEnd hook
// does not fire here; it fires once the platform's confirming turn change
// arrives, the same path a forced turn end takes.
func (r *Runtime) finishTurn(ctx context.Context) {
	r.firstStep = true
	r.env.TurnEnding()
	if err := r.env.EndTurn(ctx); err != nil {
		log.Printf("session %s: emitting turn end failed: %v", r.sctx.SessionID, err)
	}
}

// drain unblocks producers after the loop exits: pending synchronous waits
// are released and their events dropped.
func (r *Runtime) drain() {
	close(r.exited)
	for {
		select {
		case in := <-r.inbox:
			signal(&in)
		default:
			return
		}
	}
}

func signal(in *inbound) {
	if in != nil && in.done != nil {
		close(in.done)
	}
}
