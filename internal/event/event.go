// Package event defines the closed set of events exchanged with the game
// platform bus, the session context used to construct outgoing events, and
// the JSON envelope codec.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/plaiground/agentkit/internal/platform/id"
)

// Type identifies the type of a platform event.
type Type string

// Platform lifecycle events.
const (
	// TypeSessionStart announces that a game session was assigned to an agent.
	TypeSessionStart Type = "platform.session_start"
	// TypeSessionEnd announces that a game session finished.
	TypeSessionEnd Type = "platform.session_end"
	// TypeParticipantJoin records a participant joining a session.
	TypeParticipantJoin Type = "platform.participant_join"
	// TypeParticipantLeave records a participant leaving a session.
	TypeParticipantLeave Type = "platform.participant_leave"
	// TypeTurnChange records a turn handover between roles.
	TypeTurnChange Type = "platform.turn_change"
	// TypeTaskCompleted records that the session task was fulfilled.
	TypeTaskCompleted Type = "platform.task_completed"
)

// Gameplay events.
const (
	// TypeParticipantMove records a participant position update.
	TypeParticipantMove Type = "participant.move"
	// TypeParticipantChat records a chat message.
	TypeParticipantChat Type = "participant.chat"
	// TypeObjectPlace records an object placed in the world.
	TypeObjectPlace Type = "world.object_place"
	// TypeObjectRemove records an object removed from the world.
	TypeObjectRemove Type = "world.object_remove"
)

// Agent events.
const (
	// TypeParticipantReady announces that an agent can accept another session.
	TypeParticipantReady Type = "agent.ready"
)

// registeredTypes is the closed set of event types this toolkit understands.
// Events of other types still decode and route; they are ignored by the
// aggregator so new platform event types do not break older agents.
var registeredTypes = map[Type]struct{}{
	TypeSessionStart:     {},
	TypeSessionEnd:       {},
	TypeParticipantJoin:  {},
	TypeParticipantLeave: {},
	TypeTurnChange:       {},
	TypeTaskCompleted:    {},
	TypeParticipantMove:  {},
	TypeParticipantChat:  {},
	TypeObjectPlace:      {},
	TypeObjectRemove:     {},
	TypeParticipantReady: {},
}

// Registered reports whether t is an event type this toolkit understands.
func Registered(t Type) bool {
	_, ok := registeredTypes[t]
	return ok
}

// Source identifies which side of the bus produced an event.
type Source string

const (
	// SourcePlatform marks events produced by the game platform.
	SourcePlatform Source = "platform"
	// SourceAgentRuntime marks events produced by an agent runtime.
	SourceAgentRuntime Source = "agent_runtime"
)

// TurnChangeReason explains why a turn changed hands.
type TurnChangeReason string

const (
	// TurnReasonParticipantCommand indicates the holder gave up the turn.
	TurnReasonParticipantCommand TurnChangeReason = "PARTICIPANT_COMMAND"
	// TurnReasonTimeout indicates the platform ended the turn forcibly.
	TurnReasonTimeout TurnChangeReason = "TIMEOUT"
)

// Event is a single immutable bus event. The Type field discriminates which
// variant payload fields are meaningful; unused fields are zero.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Type discriminates the event variant.
	Type Type `json:"eventType"`
	// SessionID identifies the game session. Empty only for readiness
	// announcements, which are routed by the matchmaking layer instead.
	SessionID string `json:"sessionId,omitempty"`
	// TaskID identifies the task played in the session.
	TaskID string `json:"taskId,omitempty"`
	// TournamentID identifies the tournament the session belongs to.
	TournamentID string `json:"tournamentId,omitempty"`
	// GroupID identifies the matchmaking group.
	GroupID string `json:"groupId,omitempty"`
	// RoleID identifies the acting role for gameplay events.
	RoleID string `json:"roleId,omitempty"`
	// Source identifies the producing side of the bus.
	Source Source `json:"source"`
	// ProducedAt is the production timestamp in UTC.
	ProducedAt time.Time `json:"producedAt"`
	// SubscriptionFilterKey routes the event to one agent's subscription.
	SubscriptionFilterKey string `json:"subscriptionFilterKey,omitempty"`

	// Variant payload fields.

	// ParticipantID is the platform player identity behind a role (join).
	ParticipantID string `json:"participantId,omitempty"`
	// Location is the acting participant's position (join, move, place, remove).
	Location *Location `json:"location,omitempty"`
	// PreviousActiveRoleID is the role that held the turn before a turn change.
	PreviousActiveRoleID string `json:"previousActiveRoleId,omitempty"`
	// NextActiveRoleID is the role granted the turn by a turn change.
	// Empty means no role holds the turn.
	NextActiveRoleID string `json:"nextActiveRoleId,omitempty"`
	// TurnReason explains a turn change.
	TurnReason TurnChangeReason `json:"turnChangeReason,omitempty"`
	// Message is the chat payload.
	Message string `json:"message,omitempty"`
	// Material identifies the object kind placed in the world.
	Material int `json:"material,omitempty"`
	// MaxSessions advertises agent capacity on readiness announcements.
	MaxSessions int `json:"maxSessions,omitempty"`
}

// Validate checks the structural invariants common to all events.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Type != TypeParticipantReady && strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("event %s requires a session id", e.Type)
	}
	return nil
}

// SessionContext bundles the identity under which a session runtime
// constructs outgoing events. It is created once at session registration and
// never mutated.
type SessionContext struct {
	TournamentID string
	TaskID       string
	SessionID    string
	GroupID      string
	RoleID       string
}

// New creates an outbound event of the given type stamped with a fresh id,
// a UTC production timestamp, the agent runtime source, and the session
// identity carried by the context.
func (c SessionContext) New(t Type) (Event, error) {
	eventID, err := id.NewID()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return Event{
		ID:           eventID,
		Type:         t,
		SessionID:    c.SessionID,
		TaskID:       c.TaskID,
		TournamentID: c.TournamentID,
		GroupID:      c.GroupID,
		RoleID:       c.RoleID,
		Source:       SourceAgentRuntime,
		ProducedAt:   time.Now().UTC(),
	}, nil
}

// NewReady creates a readiness announcement for the matchmaking queue.
// Readiness events carry no session identity.
func NewReady(agentServiceID string, maxSessions int) (Event, error) {
	eventID, err := id.NewID()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}
	return Event{
		ID:          eventID,
		Type:        TypeParticipantReady,
		Source:      SourceAgentRuntime,
		ProducedAt:  time.Now().UTC(),
		MaxSessions: maxSessions,

		SubscriptionFilterKey: agentServiceID,
	}, nil
}
