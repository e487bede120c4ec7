package toolkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plaiground/agentkit/internal/agent"
	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
	"github.com/plaiground/agentkit/internal/session"
	"github.com/plaiground/agentkit/internal/transport/local"
)

// idleAgent always returns the no-op action.
type idleAgent struct {
	mu          sync.Mutex
	calls       int
	sessionEnds int
}

func (a *idleAgent) ServiceID() string { return "agent-service" }

func (a *idleAgent) NextAction(game.Observation, *game.State) (agent.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return agent.NoOp{}, nil
}

func (a *idleAgent) Restart(error) {}
func (a *idleAgent) TurnEnd()      {}

func (a *idleAgent) SessionEnd() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionEnds++
}

func (a *idleAgent) nextActionCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func testConfig() Config {
	return Config{
		AgentServiceID:            "agent-service",
		RoleID:                    "agent",
		MaxConcurrentSessions:     2,
		AutoRejoin:                true,
		SynchronousTurnProcessing: true,
		SyncWaitTimeout:           5 * time.Second,
		MoveDistanceThreshold:     0.2,
		MovePitchThreshold:        5,
		MoveYawThreshold:          10,
	}
}

func newTestToolkit(t *testing.T, cfg Config, opts ...Option) (*Toolkit, *local.Client) {
	t.Helper()
	client := local.NewClient()
	tk, err := New(&idleAgent{}, client, cfg, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return tk, client
}

func sessionStart(sessionID string) event.Event {
	return event.Event{
		ID:                    "start-" + sessionID,
		Type:                  event.TypeSessionStart,
		SessionID:             sessionID,
		TaskID:                "task1",
		TournamentID:          "t1",
		GroupID:               "grp1",
		Source:                event.SourcePlatform,
		ProducedAt:            time.Now().UTC(),
		SubscriptionFilterKey: "agent-service",
	}
}

func sessionEnd(sessionID string) event.Event {
	return event.Event{
		ID:                    "end-" + sessionID,
		Type:                  event.TypeSessionEnd,
		SessionID:             sessionID,
		Source:                event.SourcePlatform,
		ProducedAt:            time.Now().UTC(),
		SubscriptionFilterKey: "agent-service",
	}
}

func TestConcurrencyCapIsStrict(t *testing.T) {
	tk, _ := newTestToolkit(t, testConfig())
	defer tk.shutdown()

	for _, id := range []string{"g1", "g2", "g3"} {
		evt := sessionStart(id)
		tk.Dispatch(&evt)
	}

	if got := tk.ActiveSessions(); got != 2 {
		t.Fatalf("active sessions = %d, want 2", got)
	}
	ids := tk.SessionIDs()
	if len(ids) != 2 || ids[0] != "g1" || ids[1] != "g2" {
		t.Fatalf("session ids = %v, want [g1 g2]", ids)
	}
}

func TestSessionEndRemovesAndRejoins(t *testing.T) {
	tk, client := newTestToolkit(t, testConfig())
	defer tk.shutdown()

	start := sessionStart("g1")
	tk.Dispatch(&start)
	end := sessionEnd("g1")
	tk.Dispatch(&end)

	if got := tk.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0", got)
	}
	ready := client.SentOfType(event.TypeParticipantReady)
	if len(ready) != 1 {
		t.Fatalf("readiness events = %d, want exactly 1 after session end", len(ready))
	}
	if ready[0].SubscriptionFilterKey != "agent-service" {
		t.Fatalf("readiness filter key = %q", ready[0].SubscriptionFilterKey)
	}
}

func TestNoRejoinWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRejoin = false
	tk, client := newTestToolkit(t, cfg)
	defer tk.shutdown()

	start := sessionStart("g1")
	tk.Dispatch(&start)
	end := sessionEnd("g1")
	tk.Dispatch(&end)

	if got := len(client.SentOfType(event.TypeParticipantReady)); got != 0 {
		t.Fatalf("readiness events = %d, want 0 with auto-rejoin disabled", got)
	}
}

func TestDispatchDropsUnroutableEvents(t *testing.T) {
	tk, _ := newTestToolkit(t, testConfig())
	defer tk.shutdown()

	tk.Dispatch(nil)

	echoed := sessionStart("g1")
	echoed.Source = event.SourceAgentRuntime
	tk.Dispatch(&echoed)

	noSession := sessionStart("g1")
	noSession.SessionID = ""
	tk.Dispatch(&noSession)

	foreign := sessionStart("g1")
	foreign.SubscriptionFilterKey = "someone-else"
	tk.Dispatch(&foreign)

	unaddressed := sessionStart("g1")
	unaddressed.SubscriptionFilterKey = ""
	tk.Dispatch(&unaddressed)

	untracked := sessionEnd("ghost")
	tk.Dispatch(&untracked)

	if got := tk.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0 after unroutable events", got)
	}
}

func TestRegistrationFaultIsIsolated(t *testing.T) {
	calls := 0
	factory := func(sctx event.SessionContext, state *game.State, emitter *session.Emitter, cfg session.Config) (session.Environment, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no workspace available")
		}
		return session.NewGameEnvironment(sctx, state, emitter, nil, cfg), nil
	}
	tk, _ := newTestToolkit(t, testConfig(), WithEnvironmentFactory(factory))
	defer tk.shutdown()

	first := sessionStart("g1")
	tk.Dispatch(&first)
	if got := tk.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0 after failed registration", got)
	}

	second := sessionStart("g2")
	tk.Dispatch(&second)
	if got := tk.ActiveSessions(); got != 1 {
		t.Fatalf("active sessions = %d, want 1, coordinator must survive a bad registration", got)
	}
}

func TestRunReturnsNilOnRequestedShutdown(t *testing.T) {
	tk, client := newTestToolkit(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tk.Run(ctx) }()

	waitFor(t, "initial readiness", func() bool {
		return len(client.SentOfType(event.TypeParticipantReady)) == 2
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on requested shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// exitingClient simulates a transport whose subscription ends on its own.
type exitingClient struct {
	*local.Client
}

func (c *exitingClient) Subscribe(context.Context, func(event.Event)) error {
	return nil
}

func TestRunReportsUnexpectedExit(t *testing.T) {
	client := &exitingClient{Client: local.NewClient()}
	tk, err := New(&idleAgent{}, client, testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := tk.Run(context.Background()); !errors.Is(err, ErrUnexpectedExit) {
		t.Fatalf("Run returned %v, want ErrUnexpectedExit", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestStartupToTurnGrantScenario walks the full path: one readiness event at
// startup, session registration, a foreign sub-threshold move, and the turn
// reaching this agent only on the second turn change.
func TestStartupToTurnGrantScenario(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentSessions = 1

	ag := &idleAgent{}
	client := local.NewClient()
	tk, err := New(ag, client, cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tk.Run(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	waitFor(t, "startup readiness", func() bool {
		return len(client.SentOfType(event.TypeParticipantReady)) == 1
	})

	client.Receive(sessionStart("g1"))
	waitFor(t, "session registration", func() bool {
		return tk.ActiveSessions() == 1
	})

	join := func(roleID string, loc event.Location) event.Event {
		return event.Event{
			ID: "join-" + roleID, Type: event.TypeParticipantJoin,
			SessionID: "g1", Source: event.SourcePlatform,
			ProducedAt:            time.Now().UTC(),
			SubscriptionFilterKey: "agent-service",
			ParticipantID:         "p-" + roleID, RoleID: roleID, Location: &loc,
		}
	}
	turn := func(id, previous, next string) event.Event {
		return event.Event{
			ID: id, Type: event.TypeTurnChange,
			SessionID: "g1", Source: event.SourcePlatform,
			ProducedAt:            time.Now().UTC(),
			SubscriptionFilterKey: "agent-service",
			PreviousActiveRoleID:  previous, NextActiveRoleID: next,
		}
	}

	client.Receive(join("agent", event.Location{}))
	client.Receive(join("other", event.Location{}))
	client.Receive(turn("turn-1", "", "other"))
	client.Receive(event.Event{
		ID: "move-1", Type: event.TypeParticipantMove,
		SessionID: "g1", Source: event.SourcePlatform,
		ProducedAt:            time.Now().UTC(),
		SubscriptionFilterKey: "agent-service",
		RoleID:                "other", Location: &event.Location{X: 0.05},
	})

	// Synchronous processing: once the last Receive is dispatched, all prior
	// events are applied. Wait for the move to land in the projection.
	waitFor(t, "foreign move applied", func() bool {
		state, ok := tk.SessionState("g1")
		if !ok {
			return false
		}
		loc, ok := state.ParticipantLocation("other")
		return ok && loc.X == 0.05
	})

	if calls := ag.nextActionCalls(); calls != 0 {
		t.Fatalf("NextAction calls = %d, want 0 before the turn grant", calls)
	}
	if got := len(client.SentOfType(event.TypeParticipantMove)); got != 0 {
		t.Fatalf("move confirmations = %d, want 0 for a foreign sub-threshold move", got)
	}

	client.Receive(turn("turn-2", "other", "agent"))
	waitFor(t, "turn grant", func() bool {
		state, ok := tk.SessionState("g1")
		return ok && state.ActiveRoleID == "agent"
	})
	waitFor(t, "first decision", func() bool {
		return ag.nextActionCalls() > 0
	})

	if got := len(client.SentOfType(event.TypeParticipantReady)); got != 1 {
		t.Fatalf("readiness events = %d, want only the startup announcement", got)
	}
}

func TestConfigValidation(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"missing service id": func(c *Config) { c.AgentServiceID = "" },
		"missing role":       func(c *Config) { c.RoleID = "" },
		"zero sessions":      func(c *Config) { c.MaxConcurrentSessions = 0 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
