package agent

import (
	"errors"
	"sync"
	"testing"

	"github.com/plaiground/agentkit/internal/game"
)

type countingAgent struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	calls   int
}

func (a *countingAgent) ServiceID() string { return "agent-1" }

func (a *countingAgent) NextAction(game.Observation, *game.State) (Action, error) {
	a.mu.Lock()
	a.active++
	if a.active > a.maxSeen {
		a.maxSeen = a.active
	}
	a.calls++
	a.mu.Unlock()

	a.mu.Lock()
	a.active--
	a.mu.Unlock()
	return NoOp{}, nil
}

func (a *countingAgent) Restart(error) {}
func (a *countingAgent) TurnEnd()      {}
func (a *countingAgent) SessionEnd()   {}

func TestGuardSerialisesNextAction(t *testing.T) {
	inner := &countingAgent{}
	guard := NewGuard(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := guard.NextAction(game.Observation{}, nil); err != nil {
					t.Errorf("NextAction returned error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if inner.calls != 400 {
		t.Fatalf("calls = %d, want 400", inner.calls)
	}
	if inner.maxSeen != 1 {
		t.Fatalf("max concurrent decision calls = %d, want 1", inner.maxSeen)
	}
}

type restartAgent struct {
	countingAgent
	restarts []error
}

func (a *restartAgent) Restart(err error) {
	a.restarts = append(a.restarts, err)
}

func TestGuardForwardsRestart(t *testing.T) {
	inner := &restartAgent{}
	guard := NewGuard(inner)

	want := errors.New("model crashed")
	guard.Restart(want)

	if len(inner.restarts) != 1 || !errors.Is(inner.restarts[0], want) {
		t.Fatalf("restarts = %v, want [%v]", inner.restarts, want)
	}
}
