package session

import (
	"context"
	"fmt"
	"math"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
	"github.com/plaiground/agentkit/internal/transport"
)

// Emitter builds and sends one session's outbound events. Every
// non-positional emission is preceded in the same batch by a position
// confirmation when the role drifted beyond the configured thresholds since
// the last confirmed position, so downstream consumers always act on a fresh
// location. Bare moves are suppressed below the thresholds to bound event
// volume.
//
// An Emitter is owned by its session's goroutine; it is not safe for
// concurrent use.
type Emitter struct {
	client transport.Client
	sctx   event.SessionContext
	state  *game.State

	distanceThreshold float64
	pitchThreshold    float64
	yawThreshold      float64

	lastSent *event.Location
}

// NewEmitter builds an emitter over a session's projection.
func NewEmitter(client transport.Client, sctx event.SessionContext, state *game.State, cfg Config) *Emitter {
	return &Emitter{
		client:            client,
		sctx:              sctx,
		state:             state,
		distanceThreshold: cfg.MoveDistanceThreshold,
		pitchThreshold:    cfg.MovePitchThreshold,
		yawThreshold:      cfg.MoveYawThreshold,
	}
}

// Move emits the role's current position if it drifted beyond the thresholds
// since the last confirmed position. Sub-threshold moves send nothing.
func (e *Emitter) Move(ctx context.Context) error {
	confirmation, err := e.positionConfirmation()
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}
	return e.send(ctx, []event.Event{*confirmation})
}

// Chat emits a chat message, preceded by a position confirmation if needed.
func (e *Emitter) Chat(ctx context.Context, message string) error {
	evt, err := e.sctx.New(event.TypeParticipantChat)
	if err != nil {
		return err
	}
	evt.Message = message
	return e.sendConfirmed(ctx, evt)
}

// PlaceObject emits an object placement, preceded by a position confirmation
// if needed.
func (e *Emitter) PlaceObject(ctx context.Context, loc event.Location, material int) error {
	evt, err := e.sctx.New(event.TypeObjectPlace)
	if err != nil {
		return err
	}
	evt.Location = &loc
	evt.Material = material
	return e.sendConfirmed(ctx, evt)
}

// RemoveObject emits an object removal, preceded by a position confirmation
// if needed.
func (e *Emitter) RemoveObject(ctx context.Context, loc event.Location) error {
	evt, err := e.sctx.New(event.TypeObjectRemove)
	if err != nil {
		return err
	}
	evt.Location = &loc
	return e.sendConfirmed(ctx, evt)
}

// EndTurn emits the turn handover giving up this role's turn, preceded by a
// position confirmation if needed.
func (e *Emitter) EndTurn(ctx context.Context) error {
	evt, err := e.sctx.New(event.TypeTurnChange)
	if err != nil {
		return err
	}
	evt.PreviousActiveRoleID = e.sctx.RoleID
	evt.NextActiveRoleID = ""
	evt.TurnReason = event.TurnReasonParticipantCommand
	return e.sendConfirmed(ctx, evt)
}

// Leave emits a participant leave for this role.
func (e *Emitter) Leave(ctx context.Context) error {
	evt, err := e.sctx.New(event.TypeParticipantLeave)
	if err != nil {
		return err
	}
	return e.send(ctx, []event.Event{evt})
}

// sendConfirmed sends evt, prefixed by a position confirmation when the
// role's position drifted beyond the thresholds.
func (e *Emitter) sendConfirmed(ctx context.Context, evt event.Event) error {
	batch := make([]event.Event, 0, 2)
	confirmation, err := e.positionConfirmation()
	if err != nil {
		return err
	}
	if confirmation != nil {
		batch = append(batch, *confirmation)
	}
	batch = append(batch, evt)
	return e.send(ctx, batch)
}

// positionConfirmation builds a move event for the role's current position,
// or nil when the position has not drifted enough to warrant one.
func (e *Emitter) positionConfirmation() (*event.Event, error) {
	loc, ok := e.state.ParticipantLocation(e.sctx.RoleID)
	if !ok {
		return nil, nil
	}
	if !e.drifted(loc) {
		return nil, nil
	}
	evt, err := e.sctx.New(event.TypeParticipantMove)
	if err != nil {
		return nil, err
	}
	evt.Location = &loc
	e.lastSent = &loc
	return &evt, nil
}

// drifted reports whether loc differs from the last confirmed position by at
// least one threshold. A never-confirmed position always counts as drifted.
func (e *Emitter) drifted(loc event.Location) bool {
	if e.lastSent == nil {
		return true
	}
	last := *e.lastSent
	if math.Abs(loc.Pitch-last.Pitch) >= e.pitchThreshold {
		return true
	}
	if yawDelta(loc.Yaw, last.Yaw) >= e.yawThreshold {
		return true
	}
	dx, dy, dz := loc.X-last.X, loc.Y-last.Y, loc.Z-last.Z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) >= e.distanceThreshold
}

// yawDelta is the shorter arc between two yaw angles around the 0/360 wrap.
func yawDelta(a, b float64) float64 {
	delta := math.Mod(math.Abs(a-b), 360)
	if delta > 180 {
		delta = 360 - delta
	}
	return delta
}

func (e *Emitter) send(ctx context.Context, batch []event.Event) error {
	if err := e.client.SendEvents(ctx, batch); err != nil {
		return fmt.Errorf("send %d events for session %s: %w", len(batch), e.sctx.SessionID, err)
	}
	return nil
}
