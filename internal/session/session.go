// Package session runs the per-session turn engine: it owns one game
// projection and one inbound event queue, replays events, gates the agent's
// decision loop on turn state, and emits resulting actions as outbound
// events.
package session

import "time"

// Config carries per-session runtime tuning. The zero value is usable;
// DefaultConfig returns the values the platform expects.
type Config struct {
	// Synchronous makes Enqueue block until the event has been fully applied
	// and any resulting decision step has completed.
	Synchronous bool
	// SyncWaitTimeout bounds a synchronous Enqueue wait. Zero waits without
	// bound.
	SyncWaitTimeout time.Duration
	// PollInterval is how long the runtime loop sleeps when idle.
	PollInterval time.Duration
	// QueueSize is the inbound event queue capacity.
	QueueSize int

	// Move suppression thresholds. A move event is emitted only when the
	// position drifted at least this much since the last confirmed position.
	MoveDistanceThreshold float64
	MovePitchThreshold    float64
	MoveYawThreshold      float64

	// EpisodeTimeout bounds one episode's wall-clock duration. Zero disables
	// the timeout.
	EpisodeTimeout time.Duration
}

// DefaultConfig returns the session tuning used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		PollInterval:          5 * time.Millisecond,
		QueueSize:             64,
		MoveDistanceThreshold: 0.2,
		MovePitchThreshold:    5,
		MoveYawThreshold:      10,
		EpisodeTimeout:        10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}
