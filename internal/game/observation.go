package game

// Observation is the agent-facing view of a session projection. It is a
// value type: nothing in it aliases the live state.
type Observation struct {
	Instructions string
	Conversation []ConversationEntry
	Participants map[string]ParticipantState
	ActiveRoleID string
	Objects      map[Coordinate]Object
}

// DefaultObservation flattens the public fields of a projection snapshot.
// It runs once per decision step, so it must stay cheap.
func DefaultObservation(s *State) Observation {
	snapshot := s.Snapshot()
	return Observation{
		Instructions: snapshot.Instructions,
		Conversation: snapshot.Conversation,
		Participants: snapshot.Participants,
		ActiveRoleID: snapshot.ActiveRoleID,
		Objects:      snapshot.Objects,
	}
}

// Stage transforms an observation. Stages receive the projection for
// read-only reference and must be deterministic given the same state.
type Stage func(obs Observation, s *State) Observation

// Pipeline is an ordered sequence of observation transforms. Composition
// order is the slice order; an empty pipeline yields the default
// observation unchanged.
type Pipeline []Stage

// Observe builds the default observation and runs it through each stage in
// order.
func (p Pipeline) Observe(s *State) Observation {
	obs := DefaultObservation(s)
	for _, stage := range p {
		obs = stage(obs, s)
	}
	return obs
}
