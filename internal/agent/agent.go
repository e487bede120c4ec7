// Package agent defines the decision-making contract a session runtime
// drives, and the lock guard that lets one agent instance serve several
// concurrent sessions.
package agent

import (
	"sync"

	"github.com/plaiground/agentkit/internal/game"
)

// Action is an agent-chosen action. Its concrete type is defined by the
// environment that executes it; the toolkit only carries it between the two.
type Action any

// NoOp is the action used to refresh an observation without acting. Every
// environment must treat it as a pure read.
type NoOp struct{}

// Agent picks actions for game sessions. One Agent instance is shared by all
// concurrent sessions of a toolkit; implementations should stay stateless
// across turns where possible.
type Agent interface {
	// ServiceID returns the identity under which the agent subscribes to
	// the bus.
	ServiceID() string
	// NextAction picks the next action given the latest observation and a
	// reference to the session projection.
	NextAction(obs game.Observation, state *game.State) (Action, error)
	// Restart is invoked after NextAction returns an error so the agent can
	// recover; the failed decision is retried afterwards.
	Restart(err error)
	// TurnEnd is invoked when the agent's turn ends, whether by its own
	// choice or forcibly by the platform.
	TurnEnd()
	// SessionEnd is invoked when a session the agent participated in ends.
	SessionEnd()
}

// Guard wraps a shared Agent so that decision-making and failure recovery
// are each atomic with respect to other sessions' concurrent calls.
type Guard struct {
	mu    sync.Mutex
	agent Agent
}

// NewGuard wraps an agent for concurrent use across sessions.
func NewGuard(a Agent) *Guard {
	return &Guard{agent: a}
}

// ServiceID returns the wrapped agent's service identity.
func (g *Guard) ServiceID() string {
	return g.agent.ServiceID()
}

// NextAction serialises decision-making across sessions.
func (g *Guard) NextAction(obs game.Observation, state *game.State) (Action, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.agent.NextAction(obs, state)
}

// Restart serialises failure recovery across sessions.
func (g *Guard) Restart(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.agent.Restart(err)
}

// TurnEnd notifies the agent that its turn ended.
func (g *Guard) TurnEnd() {
	g.agent.TurnEnd()
}

// SessionEnd notifies the agent that a session ended.
func (g *Guard) SessionEnd() {
	g.agent.SessionEnd()
}
