// Package demo provides a minimal scripted agent for the example binaries:
// it sends one chat per turn and then gives the turn back.
package demo

import (
	"log"
	"sync"

	"github.com/plaiground/agentkit/internal/agent"
	"github.com/plaiground/agentkit/internal/game"
	"github.com/plaiground/agentkit/internal/session"
)

// Agent chats a fixed greeting each turn. It keeps one chatted flag across
// sessions, which is fine for a demo serving one session at a time.
type Agent struct {
	serviceID string
	greeting  string

	mu      sync.Mutex
	chatted bool
}

// New builds a demo agent with the given bus identity.
func New(serviceID, greeting string) *Agent {
	if greeting == "" {
		greeting = "hello from agentkit"
	}
	return &Agent{serviceID: serviceID, greeting: greeting}
}

// ServiceID returns the agent's bus identity.
func (a *Agent) ServiceID() string { return a.serviceID }

// NextAction chats once per turn, then ends the turn.
func (a *Agent) NextAction(game.Observation, *game.State) (agent.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.chatted {
		a.chatted = true
		return session.ChatAction{Message: a.greeting}, nil
	}
	return session.EndTurnAction{}, nil
}

// Restart logs the decision failure and resets the turn progress.
func (a *Agent) Restart(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatted = false
	log.Printf("demo agent: restarting after decision failure: %v", err)
}

// TurnEnd resets the per-turn chat flag.
func (a *Agent) TurnEnd() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatted = false
}

// SessionEnd logs the completed session.
func (a *Agent) SessionEnd() {
	log.Printf("demo agent: session ended")
}
