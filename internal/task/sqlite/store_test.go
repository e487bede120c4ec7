package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetSeedRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := task.Seed{
		TaskID: "task1",
		Initial: task.InitialState{
			Instructions: "build a bridge",
			ParticipantStates: map[string]task.ParticipantSeed{
				"builder": {ParticipantID: "p1", RoleID: "builder", Location: event.Location{Y: 64}},
			},
		},
		WorldObjects: map[string]task.ObjectDescriptor{
			"[0,63,0,0,0]": {Type: 1},
		},
		TargetDeltas: []task.Delta{
			{WorldChanges: &task.WorldState{ObjectChanges: map[string]task.ObjectDescriptor{"[0,64,0,0,0]": {Type: 5}}}},
		},
	}

	if err := store.PutSeed(ctx, seed); err != nil {
		t.Fatalf("PutSeed returned error: %v", err)
	}

	got, err := store.GetSeed(ctx, "task1")
	if err != nil {
		t.Fatalf("GetSeed returned error: %v", err)
	}
	if got.Initial.Instructions != seed.Initial.Instructions {
		t.Fatalf("Instructions = %q, want %q", got.Initial.Instructions, seed.Initial.Instructions)
	}
	if got.WorldObjects["[0,63,0,0,0]"].Type != 1 {
		t.Fatalf("world object type = %d, want 1", got.WorldObjects["[0,63,0,0,0]"].Type)
	}
	if len(got.TargetDeltas) != 1 {
		t.Fatalf("target deltas = %d, want 1", len(got.TargetDeltas))
	}
}

func TestGetSeedNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetSeed(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutSeedReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutSeed(ctx, task.Seed{TaskID: "task1", Initial: task.InitialState{Instructions: "v1"}}); err != nil {
		t.Fatalf("first PutSeed returned error: %v", err)
	}
	if err := store.PutSeed(ctx, task.Seed{TaskID: "task1", Initial: task.InitialState{Instructions: "v2"}}); err != nil {
		t.Fatalf("second PutSeed returned error: %v", err)
	}

	got, err := store.GetSeed(ctx, "task1")
	if err != nil {
		t.Fatalf("GetSeed returned error: %v", err)
	}
	if got.Initial.Instructions != "v2" {
		t.Fatalf("Instructions = %q, want %q", got.Initial.Instructions, "v2")
	}
}
