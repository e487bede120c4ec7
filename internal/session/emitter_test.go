package session

import (
	"context"
	"sync"
	"testing"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
)

// captureClient records outbound batches in memory.
type captureClient struct {
	mu      sync.Mutex
	batches [][]event.Event
}

func (c *captureClient) SendEvents(_ context.Context, events []event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]event.Event, len(events))
	copy(batch, events)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureClient) Subscribe(ctx context.Context, _ func(event.Event)) error {
	<-ctx.Done()
	return nil
}

func (c *captureClient) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *captureClient) all() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var events []event.Event
	for _, batch := range c.batches {
		events = append(events, batch...)
	}
	return events
}

func (c *captureClient) byType(t event.Type) []event.Event {
	var matched []event.Event
	for _, evt := range c.all() {
		if evt.Type == t {
			matched = append(matched, evt)
		}
	}
	return matched
}

func testSessionContext() event.SessionContext {
	return event.SessionContext{
		TournamentID: "t1",
		TaskID:       "task1",
		SessionID:    "g1",
		GroupID:      "grp1",
		RoleID:       "agent",
	}
}

func newTestEmitter(client *captureClient) (*Emitter, *game.State) {
	state := game.NewState()
	state.ParticipantJoin("p1", "agent", event.Location{})
	cfg := DefaultConfig()
	return NewEmitter(client, testSessionContext(), state, cfg), state
}

func TestMoveFirstObservationAlwaysEmits(t *testing.T) {
	client := &captureClient{}
	emitter, _ := newTestEmitter(client)

	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	if client.batchCount() != 1 {
		t.Fatalf("batches = %d, want 1 for the first observed position", client.batchCount())
	}
}

func TestMoveSuppressionEmitsOnlyFinalPosition(t *testing.T) {
	client := &captureClient{}
	emitter, state := newTestEmitter(client)

	// Confirm the starting position so lastSent is set.
	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}

	// Sub-threshold drift from the confirmed position: nothing emitted.
	for _, x := range []float64{0.05, 0.1, 0.15} {
		state.ParticipantMove("agent", event.Location{X: x})
		if err := emitter.Move(context.Background()); err != nil {
			t.Fatalf("Move returned error: %v", err)
		}
	}
	if client.batchCount() != 1 {
		t.Fatalf("batches = %d, want 1 (sub-threshold moves suppressed)", client.batchCount())
	}

	// Final transition exceeds the distance threshold.
	state.ParticipantMove("agent", event.Location{X: 0.5})
	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}

	moves := client.byType(event.TypeParticipantMove)
	if len(moves) != 2 {
		t.Fatalf("move events = %d, want 2 (initial + final)", len(moves))
	}
	final := moves[len(moves)-1]
	if final.Location == nil || final.Location.X != 0.5 {
		t.Fatalf("final move location = %+v, want X=0.5", final.Location)
	}
}

func TestYawDriftWrapsAroundZero(t *testing.T) {
	client := &captureClient{}
	emitter, state := newTestEmitter(client)

	state.ParticipantMove("agent", event.Location{Yaw: 355})
	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}

	// 355 to 8 is a 13 degree arc, over the 10 degree threshold even though
	// the raw difference is 347.
	state.ParticipantMove("agent", event.Location{Yaw: 8})
	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	if got := len(client.byType(event.TypeParticipantMove)); got != 2 {
		t.Fatalf("move events = %d, want 2", got)
	}

	// 8 to 12 is under the threshold.
	state.ParticipantMove("agent", event.Location{Yaw: 12})
	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	if got := len(client.byType(event.TypeParticipantMove)); got != 2 {
		t.Fatalf("move events = %d, want 2 after sub-threshold yaw", got)
	}
}

func TestChatPrecededByPositionConfirmation(t *testing.T) {
	client := &captureClient{}
	emitter, state := newTestEmitter(client)

	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	state.ParticipantMove("agent", event.Location{X: 3})

	if err := emitter.Chat(context.Background(), "over here"); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	batch := client.batches[len(client.batches)-1]
	if len(batch) != 2 {
		t.Fatalf("batch length = %d, want confirmation + chat", len(batch))
	}
	if batch[0].Type != event.TypeParticipantMove || batch[0].Location.X != 3 {
		t.Fatalf("first event = %+v, want position confirmation at X=3", batch[0])
	}
	if batch[1].Type != event.TypeParticipantChat || batch[1].Message != "over here" {
		t.Fatalf("second event = %+v, want the chat", batch[1])
	}
}

func TestChatWithoutDriftSendsOnlyChat(t *testing.T) {
	client := &captureClient{}
	emitter, _ := newTestEmitter(client)

	if err := emitter.Move(context.Background()); err != nil {
		t.Fatalf("Move returned error: %v", err)
	}
	if err := emitter.Chat(context.Background(), "still here"); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	batch := client.batches[len(client.batches)-1]
	if len(batch) != 1 || batch[0].Type != event.TypeParticipantChat {
		t.Fatalf("batch = %+v, want a lone chat event", batch)
	}
}

func TestEndTurnCarriesPreviousRole(t *testing.T) {
	client := &captureClient{}
	emitter, _ := newTestEmitter(client)

	if err := emitter.EndTurn(context.Background()); err != nil {
		t.Fatalf("EndTurn returned error: %v", err)
	}

	turns := client.byType(event.TypeTurnChange)
	if len(turns) != 1 {
		t.Fatalf("turn change events = %d, want 1", len(turns))
	}
	evt := turns[0]
	if evt.PreviousActiveRoleID != "agent" || evt.NextActiveRoleID != "" {
		t.Fatalf("turn change = %+v, want previous=agent next empty", evt)
	}
	if evt.Source != event.SourceAgentRuntime {
		t.Fatalf("source = %q, want agent runtime", evt.Source)
	}
}
