package game

import (
	"log"

	"github.com/plaiground/agentkit/internal/event"
)

// Aggregator replays bus events into a session projection. Each event maps
// to one deterministic state mutation; events of types the aggregator does
// not understand are ignored so new platform event types never break the
// replay path.
type Aggregator struct {
	state *State
}

// NewAggregator creates an aggregator that mutates the given state.
func NewAggregator(state *State) *Aggregator {
	return &Aggregator{state: state}
}

// State returns the projection this aggregator mutates.
func (a *Aggregator) State() *State {
	return a.state
}

// Apply mutates the projection according to the event variant.
func (a *Aggregator) Apply(evt event.Event) {
	switch evt.Type {
	case event.TypeParticipantJoin:
		a.state.ParticipantJoin(evt.ParticipantID, evt.RoleID, locationOrZero(evt))
	case event.TypeParticipantLeave:
		a.state.ParticipantLeave(evt.RoleID)
	case event.TypeTurnChange:
		a.state.TurnChange(evt.NextActiveRoleID)
	case event.TypeParticipantMove:
		a.state.ParticipantMove(evt.RoleID, locationOrZero(evt))
	case event.TypeParticipantChat:
		a.state.Chat(evt.RoleID, evt.Message, evt.ProducedAt)
	case event.TypeObjectPlace:
		a.state.PlaceObject(locationOrZero(evt), evt.Material)
	case event.TypeObjectRemove:
		a.state.RemoveObject(locationOrZero(evt))
	default:
		log.Printf("game: no aggregator handler for %s, ignoring event %s", evt.Type, evt.ID)
	}
}

func locationOrZero(evt event.Event) event.Location {
	if evt.Location == nil {
		log.Printf("game: %s event %s carries no location, defaulting to origin", evt.Type, evt.ID)
		return event.Location{}
	}
	return *evt.Location
}
