// Package simulator drives a scripted turn-based session against the local
// loopback bus so an agent can be exercised without the real platform.
package simulator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/platform/id"
	"github.com/plaiground/agentkit/internal/transport/local"
)

// Config shapes the scripted session.
type Config struct {
	// AgentServiceID is the agent identity the simulator addresses.
	AgentServiceID string
	// AgentRoleID is the role the agent plays.
	AgentRoleID string
	// PartnerRoleID is the scripted opponent role.
	PartnerRoleID string

	SessionID    string
	TaskID       string
	TournamentID string
	GroupID      string

	// Turns is how many turns the agent is granted before the session ends.
	Turns int
	// TurnTimeout bounds how long the simulator waits for the agent to give
	// the turn back before forcing the handover.
	TurnTimeout time.Duration
	// PartnerChat is the message the partner sends each of its turns.
	PartnerChat string
}

// DefaultConfig returns a two-turn scripted session.
func DefaultConfig(agentServiceID string) Config {
	return Config{
		AgentServiceID: agentServiceID,
		AgentRoleID:    "agent",
		PartnerRoleID:  "partner",
		SessionID:      "sim-session",
		TaskID:         "sim-task",
		TournamentID:   "sim-tournament",
		GroupID:        "sim-group",
		Turns:          2,
		TurnTimeout:    5 * time.Second,
		PartnerChat:    "your move",
	}
}

// Server replays the platform side of one session over a loopback client.
type Server struct {
	client *local.Client
	cfg    Config

	// seen tracks how much of the agent's outbound stream was consumed.
	seen int
}

// New builds a simulator over the loopback client the agent is connected to.
func New(client *local.Client, cfg Config) *Server {
	return &Server{client: client, cfg: cfg}
}

// Run plays the scripted session: wait for readiness, start the session,
// join both roles, alternate turns, end the session. It returns once the
// session end event was delivered or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.waitForOutbound(ctx, "agent readiness", func(evt event.Event) bool {
		return evt.Type == event.TypeParticipantReady
	}); err != nil {
		return err
	}

	start, err := s.platformEvent(event.TypeSessionStart)
	if err != nil {
		return err
	}
	s.client.Receive(start)

	for _, roleID := range []string{s.cfg.AgentRoleID, s.cfg.PartnerRoleID} {
		join, err := s.platformEvent(event.TypeParticipantJoin)
		if err != nil {
			return err
		}
		join.RoleID = roleID
		join.ParticipantID = "sim-" + roleID
		join.Location = &event.Location{Y: 64}
		s.client.Receive(join)
	}

	for turn := 1; turn <= s.cfg.Turns; turn++ {
		if err := s.playPartnerTurn(ctx, turn); err != nil {
			return err
		}
		if err := s.playAgentTurn(ctx, turn); err != nil {
			return err
		}
	}

	end, err := s.platformEvent(event.TypeSessionEnd)
	if err != nil {
		return err
	}
	s.client.Receive(end)
	log.Printf("simulator: session %s finished after %d turns", s.cfg.SessionID, s.cfg.Turns)
	return nil
}

// playPartnerTurn grants the partner the turn and scripts one chat.
func (s *Server) playPartnerTurn(ctx context.Context, turn int) error {
	grant, err := s.platformEvent(event.TypeTurnChange)
	if err != nil {
		return err
	}
	grant.NextActiveRoleID = s.cfg.PartnerRoleID
	s.client.Receive(grant)

	chat, err := s.platformEvent(event.TypeParticipantChat)
	if err != nil {
		return err
	}
	chat.RoleID = s.cfg.PartnerRoleID
	chat.Message = fmt.Sprintf("%s (turn %d)", s.cfg.PartnerChat, turn)
	s.client.Receive(chat)
	return ctx.Err()
}

// playAgentTurn hands the turn to the agent and waits for it to give the
// turn back, forcing the handover on timeout the way the platform does.
func (s *Server) playAgentTurn(ctx context.Context, turn int) error {
	grant, err := s.platformEvent(event.TypeTurnChange)
	if err != nil {
		return err
	}
	grant.PreviousActiveRoleID = s.cfg.PartnerRoleID
	grant.NextActiveRoleID = s.cfg.AgentRoleID
	s.client.Receive(grant)

	err = s.waitForOutbound(ctx, "agent turn end", func(evt event.Event) bool {
		return evt.Type == event.TypeTurnChange && evt.PreviousActiveRoleID == s.cfg.AgentRoleID
	})
	if err == nil {
		// Confirm the handover the way the platform does after processing
		// the agent's turn change command.
		confirm, buildErr := s.platformEvent(event.TypeTurnChange)
		if buildErr != nil {
			return buildErr
		}
		confirm.PreviousActiveRoleID = s.cfg.AgentRoleID
		confirm.TurnReason = event.TurnReasonParticipantCommand
		s.client.Receive(confirm)
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	log.Printf("simulator: turn %d: agent did not end its turn, forcing handover", turn)
	forced, buildErr := s.platformEvent(event.TypeTurnChange)
	if buildErr != nil {
		return buildErr
	}
	forced.PreviousActiveRoleID = s.cfg.AgentRoleID
	forced.TurnReason = event.TurnReasonTimeout
	s.client.Receive(forced)
	return nil
}

// waitForOutbound polls the loopback client's sent stream for the next event
// matching the predicate, consuming everything before it.
func (s *Server) waitForOutbound(ctx context.Context, what string, match func(event.Event) bool) error {
	timeout := s.cfg.TurnTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		sent := s.client.Sent()
		for s.seen < len(sent) {
			evt := sent[s.seen]
			s.seen++
			if match(evt) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", what)
		}
		select {
		case <-time.After(2 * time.Millisecond):
		case <-ctx.Done():
		}
	}
}

// platformEvent builds a platform-sourced event carrying the session
// identity.
func (s *Server) platformEvent(t event.Type) (event.Event, error) {
	eventID, err := id.NewID()
	if err != nil {
		return event.Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return event.Event{
		ID:                    eventID,
		Type:                  t,
		SessionID:             s.cfg.SessionID,
		TaskID:                s.cfg.TaskID,
		TournamentID:          s.cfg.TournamentID,
		GroupID:               s.cfg.GroupID,
		Source:                event.SourcePlatform,
		ProducedAt:            time.Now().UTC(),
		SubscriptionFilterKey: s.cfg.AgentServiceID,
	}, nil
}
