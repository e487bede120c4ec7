// Package task loads the seed documents that describe a session's task:
// the initial game state, the complete initial world objects, and the
// ordered target deltas the session is graded against.
package task

import (
	"context"

	"github.com/plaiground/agentkit/internal/event"
)

// ObjectDescriptor describes one world object in a task document.
type ObjectDescriptor struct {
	// Type identifies the object material.
	Type int `json:"type"`
}

// ParticipantSeed is a participant's initial placement in a task document.
type ParticipantSeed struct {
	ParticipantID string         `json:"participantId"`
	RoleID        string         `json:"roleId"`
	Location      event.Location `json:"location"`
}

// WorldState holds object changes keyed by "[x,y,z,pitch,yaw]" location
// strings, the representation used by task documents on the wire.
type WorldState struct {
	ObjectChanges map[string]ObjectDescriptor `json:"objectChanges"`
}

// InitialState is the first seed document: instructions plus the starting
// participant placements and any pre-applied world changes.
type InitialState struct {
	Instructions      string                     `json:"instructions"`
	ParticipantStates map[string]ParticipantSeed `json:"participantStates"`
	WorldState        *WorldState                `json:"worldState"`
}

// Delta is one step of the task's target progression.
type Delta struct {
	ParticipantChanges map[string]ParticipantSeed `json:"participantChanges"`
	WorldChanges       *WorldState                `json:"worldChanges"`
}

// Seed bundles the three task documents for one task id.
type Seed struct {
	TaskID       string
	Initial      InitialState
	WorldObjects map[string]ObjectDescriptor
	TargetDeltas []Delta
}

// Loader fetches the seed documents for a task.
type Loader interface {
	Load(ctx context.Context, taskID string) (Seed, error)
}
