package session

import (
	"context"
	"fmt"
	"time"

	"github.com/plaiground/agentkit/internal/agent"
	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/game"
)

// TurnState tracks where the agent is within its own turn.
type TurnState int

const (
	// TurnAboutToStart means the turn was granted but no decision step ran yet.
	TurnAboutToStart TurnState = iota
	// TurnInProgress means at least one decision step of the turn has run.
	TurnInProgress
	// TurnJustEnded means the turn completed and the next grant resets it.
	TurnJustEnded
)

func (t TurnState) String() string {
	switch t {
	case TurnAboutToStart:
		return "about_to_start"
	case TurnInProgress:
		return "in_progress"
	case TurnJustEnded:
		return "just_ended"
	}
	return fmt.Sprintf("TurnState(%d)", int(t))
}

// StepResult is the outcome of one decision step.
type StepResult struct {
	Observation game.Observation
	Reward      float64
	// Done signals the turn is over from the agent's side.
	Done bool
	Info map[string]any
}

// Actions the base environment understands. Agents return these from
// NextAction; custom environments may define their own action set.
type (
	// ChatAction sends a chat message as the session's role.
	ChatAction struct{ Message string }
	// PlaceAction places an object in the world.
	PlaceAction struct {
		Location event.Location
		Material int
	}
	// RemoveAction removes the object at a location.
	RemoveAction struct{ Location event.Location }
	// MoveAction moves the session's role to a location.
	MoveAction struct{ Location event.Location }
	// EndTurnAction gives up the turn.
	EndTurnAction struct{}
)

// Environment executes agent actions against one session's projection and
// exposes the turn lifecycle hooks the runtime drives. Implementations are
// called only from the session's own goroutine.
type Environment interface {
	// Reset prepares the environment for a new episode and returns the
	// initial observation.
	Reset() game.Observation
	// ApplyEvent replays one inbound event into the projection. An error is
	// a projection fault and terminates the session runtime.
	ApplyEvent(evt event.Event) error
	// Step executes one action, emitting any resulting outbound events, and
	// returns the refreshed observation.
	Step(ctx context.Context, action agent.Action) (StepResult, error)
	// NoOpAction returns the action used to refresh an observation without
	// acting.
	NoOpAction() agent.Action

	// TurnStarting, TurnInProgress, and TurnEnding mark the turn lifecycle.
	TurnStarting()
	TurnInProgress()
	TurnEnding()
	// EndTurn clears the active role locally and emits the outbound turn
	// change. Called only when the agent gives up the turn itself.
	EndTurn(ctx context.Context) error

	// TurnState reports where the agent is within its own turn.
	TurnState() TurnState
	// State returns the live projection.
	State() *game.State
	Close() error
}

// GameEnvironment is the default Environment: it replays events through the
// aggregator, applies the base action set to the projection, and emits the
// matching outbound events.
type GameEnvironment struct {
	sctx       event.SessionContext
	aggregator *game.Aggregator
	emitter    *Emitter
	pipeline   game.Pipeline

	turn           TurnState
	episodeStart   time.Time
	episodeTimeout time.Duration
}

// NewGameEnvironment builds the default environment over a projection. A nil
// pipeline yields the default observation.
func NewGameEnvironment(sctx event.SessionContext, state *game.State, emitter *Emitter, pipeline game.Pipeline, cfg Config) *GameEnvironment {
	return &GameEnvironment{
		sctx:           sctx,
		aggregator:     game.NewAggregator(state),
		emitter:        emitter,
		pipeline:       pipeline,
		episodeTimeout: cfg.EpisodeTimeout,
	}
}

// Reset starts a new episode.
func (e *GameEnvironment) Reset() game.Observation {
	e.turn = TurnAboutToStart
	e.episodeStart = time.Now()
	return e.observe()
}

// ApplyEvent replays one event into the projection.
func (e *GameEnvironment) ApplyEvent(evt event.Event) error {
	e.aggregator.Apply(evt)
	return nil
}

// Step executes one action against the projection and emits the matching
// outbound events.
func (e *GameEnvironment) Step(ctx context.Context, action agent.Action) (StepResult, error) {
	state := e.aggregator.State()
	done := false

	switch a := action.(type) {
	case agent.NoOp:
		// Pure observation refresh.
	case ChatAction:
		state.Chat(e.sctx.RoleID, a.Message, time.Now().UTC())
		if err := e.emitter.Chat(ctx, a.Message); err != nil {
			return StepResult{}, err
		}
	case PlaceAction:
		state.PlaceObject(a.Location, a.Material)
		if err := e.emitter.PlaceObject(ctx, a.Location, a.Material); err != nil {
			return StepResult{}, err
		}
	case RemoveAction:
		state.RemoveObject(a.Location)
		if err := e.emitter.RemoveObject(ctx, a.Location); err != nil {
			return StepResult{}, err
		}
	case MoveAction:
		state.ParticipantMove(e.sctx.RoleID, a.Location)
		if err := e.emitter.Move(ctx); err != nil {
			return StepResult{}, err
		}
	case EndTurnAction:
		done = true
	default:
		return StepResult{}, fmt.Errorf("unsupported action %T", action)
	}

	result := StepResult{Observation: e.observe(), Done: done}
	if e.TimedOut() {
		result.Done = true
		result.Info = map[string]any{"timedOut": true}
	}
	return result, nil
}

// NoOpAction returns the refresh-only action.
func (e *GameEnvironment) NoOpAction() agent.Action {
	return agent.NoOp{}
}

// TurnStarting marks a granted turn whose first decision step has not run.
func (e *GameEnvironment) TurnStarting() {
	e.turn = TurnAboutToStart
}

// TurnInProgress marks that the turn's first decision step has run.
func (e *GameEnvironment) TurnInProgress() {
	e.turn = TurnInProgress
}

// TurnEnding marks the turn as completed.
func (e *GameEnvironment) TurnEnding() {
	e.turn = TurnJustEnded
}

// EndTurn clears the active role locally and emits the outbound turn change.
func (e *GameEnvironment) EndTurn(ctx context.Context) error {
	e.aggregator.State().TurnChange("")
	return e.emitter.EndTurn(ctx)
}

// TurnState reports the current turn phase.
func (e *GameEnvironment) TurnState() TurnState {
	return e.turn
}

// State returns the live projection.
func (e *GameEnvironment) State() *game.State {
	return e.aggregator.State()
}

// TimedOut reports whether the episode exceeded its wall-clock budget.
func (e *GameEnvironment) TimedOut() bool {
	if e.episodeTimeout <= 0 || e.episodeStart.IsZero() {
		return false
	}
	return time.Since(e.episodeStart) >= e.episodeTimeout
}

// Close releases environment resources. The base environment holds none.
func (e *GameEnvironment) Close() error {
	return nil
}

func (e *GameEnvironment) observe() game.Observation {
	return e.pipeline.Observe(e.aggregator.State())
}
