// Package game maintains the locally replicated state of one game session.
// The state is a projection: it is built exclusively by replaying bus events
// (and by the session's own action application) and makes no claim to be
// authoritative.
package game

import (
	"log"
	"strings"
	"time"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/task"
)

// Coordinate is an integer world position. Float positions truncate toward
// zero, matching how the platform keys object changes.
type Coordinate struct {
	X, Y, Z int
}

// CoordinateOf truncates a location to its integer coordinate key.
func CoordinateOf(loc event.Location) Coordinate {
	return Coordinate{X: int(loc.X), Y: int(loc.Y), Z: int(loc.Z)}
}

// Object is a world object held in the projection.
type Object struct {
	Material int
}

// ParticipantState tracks one participant's identity and last known position.
type ParticipantState struct {
	ParticipantID string
	RoleID        string
	Location      event.Location
}

// ConversationEntry is one chat line in the session transcript.
type ConversationEntry struct {
	RoleID  string
	Message string
	At      time.Time
}

// State is the mutable projection of one game session. It is owned and
// mutated by the session's own goroutine; other goroutines read it only
// through Snapshot or under the synchronous-processing contract.
type State struct {
	// Instructions is the task prompt shown to participants.
	Instructions string
	// Conversation is the append-only chat transcript.
	Conversation []ConversationEntry
	// InitialParticipants holds the seeded placements. Set once during task
	// seeding and not mutated afterwards.
	InitialParticipants map[string]ParticipantState
	// Participants maps role id to the participant's current state.
	Participants map[string]ParticipantState
	// ActiveRoleID is the role holding the turn; empty means no turn holder.
	ActiveRoleID string
	// Objects maps integer coordinates to placed world objects.
	Objects map[Coordinate]Object
}

// NewState creates an empty session projection.
func NewState() *State {
	return &State{
		InitialParticipants: make(map[string]ParticipantState),
		Participants:        make(map[string]ParticipantState),
		Objects:             make(map[Coordinate]Object),
	}
}

// ParticipantJoin records a participant entering the session at a location.
func (s *State) ParticipantJoin(participantID, roleID string, loc event.Location) {
	s.Participants[roleID] = ParticipantState{
		ParticipantID: participantID,
		RoleID:        roleID,
		Location:      loc,
	}
}

// ParticipantLeave drops a participant from the projection.
func (s *State) ParticipantLeave(roleID string) {
	delete(s.Participants, roleID)
}

// TurnChange hands the turn to roleID. Empty means no one's turn.
func (s *State) TurnChange(roleID string) {
	s.ActiveRoleID = roleID
}

// ParticipantMove updates a participant's position. Moves for unknown roles
// are dropped with a diagnostic: the projection may be transiently stale
// relative to the platform.
func (s *State) ParticipantMove(roleID string, loc event.Location) {
	participant, ok := s.Participants[roleID]
	if !ok {
		log.Printf("game: move for role %s ignored, participant not in projection", roleID)
		return
	}
	participant.Location = loc
	s.Participants[roleID] = participant
}

// Chat appends a message to the conversation transcript. The transcript is
// append-only and never truncated.
func (s *State) Chat(roleID, message string, at time.Time) {
	s.Conversation = append(s.Conversation, ConversationEntry{
		RoleID:  roleID,
		Message: message,
		At:      at,
	})
}

// PlaceObject inserts or overwrites the object at the location's coordinate.
func (s *State) PlaceObject(loc event.Location, material int) {
	s.Objects[CoordinateOf(loc)] = Object{Material: material}
}

// RemoveObject deletes the object at the location's coordinate. A remove for
// an empty coordinate logs a consistency warning: it means the projection has
// diverged from the authoritative state, which the platform tolerates.
func (s *State) RemoveObject(loc event.Location) {
	coord := CoordinateOf(loc)
	if _, ok := s.Objects[coord]; !ok {
		log.Printf("game: remove at [%d,%d,%d] ignored, no object in projection; "+
			"local and platform state may be out of sync", coord.X, coord.Y, coord.Z)
		return
	}
	delete(s.Objects, coord)
}

// ParticipantLocation returns the last known location for a role.
func (s *State) ParticipantLocation(roleID string) (event.Location, bool) {
	participant, ok := s.Participants[roleID]
	if !ok {
		return event.Location{}, false
	}
	return participant.Location, true
}

// Snapshot returns a deep value copy of the state with no references back
// into the live projection. It is the only supported way to hand state to
// another goroutine.
func (s *State) Snapshot() State {
	snapshot := State{
		Instructions:        s.Instructions,
		ActiveRoleID:        s.ActiveRoleID,
		Conversation:        make([]ConversationEntry, len(s.Conversation)),
		InitialParticipants: make(map[string]ParticipantState, len(s.InitialParticipants)),
		Participants:        make(map[string]ParticipantState, len(s.Participants)),
		Objects:             make(map[Coordinate]Object, len(s.Objects)),
	}
	copy(snapshot.Conversation, s.Conversation)
	for roleID, participant := range s.InitialParticipants {
		snapshot.InitialParticipants[roleID] = participant
	}
	for roleID, participant := range s.Participants {
		snapshot.Participants[roleID] = participant
	}
	for coord, object := range s.Objects {
		snapshot.Objects[coord] = object
	}
	return snapshot
}

// SeedTask applies a task seed to a fresh projection: instructions, initial
// participant placements, the complete world object set, and any pre-applied
// world changes. Instruction lines are mirrored into the conversation
// transcript so agents that only read chat still see the task prompt.
func (s *State) SeedTask(seed task.Seed) error {
	if seed.Initial.Instructions != "" {
		s.Instructions = seed.Initial.Instructions
		now := time.Now().UTC()
		for _, line := range strings.Split(seed.Initial.Instructions, "\n") {
			s.Chat("", line, now)
		}
	}

	for roleID, participant := range seed.Initial.ParticipantStates {
		s.InitialParticipants[roleID] = ParticipantState{
			ParticipantID: participant.ParticipantID,
			RoleID:        roleID,
			Location:      participant.Location,
		}
	}

	if err := s.applyObjectChanges(seed.WorldObjects); err != nil {
		return err
	}
	if seed.Initial.WorldState != nil {
		if err := s.applyObjectChanges(seed.Initial.WorldState.ObjectChanges); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) applyObjectChanges(changes map[string]task.ObjectDescriptor) error {
	for locationKey, object := range changes {
		loc, err := event.ParseLocationString(locationKey)
		if err != nil {
			return err
		}
		s.PlaceObject(loc, object.Type)
	}
	return nil
}

// TargetStates computes the ordered target progression for a seeded state by
// applying the seed's deltas cumulatively to snapshots. The returned states
// share no memory with the base projection.
func TargetStates(base *State, deltas []task.Delta) ([]State, error) {
	targets := make([]State, 0, len(deltas))
	latest := base.Snapshot()

	for _, delta := range deltas {
		next := latest.Snapshot()

		for roleID, participant := range delta.ParticipantChanges {
			next.Participants[roleID] = ParticipantState{
				RoleID:   roleID,
				Location: participant.Location,
			}
		}
		if delta.WorldChanges != nil {
			for locationKey, object := range delta.WorldChanges.ObjectChanges {
				loc, err := event.ParseLocationString(locationKey)
				if err != nil {
					return nil, err
				}
				next.Objects[CoordinateOf(loc)] = Object{Material: object.Type}
			}
		}

		targets = append(targets, next)
		latest = next
	}
	return targets, nil
}
