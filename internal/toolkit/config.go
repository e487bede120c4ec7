package toolkit

import (
	"fmt"
	"time"

	"github.com/plaiground/agentkit/internal/session"
)

// Config is the coordinator's environment-driven configuration.
type Config struct {
	// AgentServiceID is the identity this agent subscribes under; events
	// whose subscription filter key names another agent are dropped.
	AgentServiceID string `env:"AGENTKIT_AGENT_SERVICE_ID"`
	// RoleID is the logical participant identity this agent plays.
	RoleID string `env:"AGENTKIT_ROLE_ID" envDefault:"agent"`
	// MaxConcurrentSessions caps the number of sessions running at once.
	MaxConcurrentSessions int `env:"AGENTKIT_MAX_CONCURRENT_SESSIONS" envDefault:"3"`
	// AutoRejoin re-announces readiness after each session ends.
	AutoRejoin bool `env:"AGENTKIT_AUTO_REJOIN" envDefault:"true"`
	// SynchronousTurnProcessing makes event dispatch block until each event
	// is fully applied.
	SynchronousTurnProcessing bool `env:"AGENTKIT_SYNCHRONOUS_TURN_PROCESSING" envDefault:"false"`
	// SyncWaitTimeout bounds a synchronous dispatch wait. Zero waits without
	// bound.
	SyncWaitTimeout time.Duration `env:"AGENTKIT_SYNC_WAIT_TIMEOUT" envDefault:"0"`

	MoveDistanceThreshold float64 `env:"AGENTKIT_MOVE_DISTANCE_THRESHOLD" envDefault:"0.2"`
	MovePitchThreshold    float64 `env:"AGENTKIT_MOVE_PITCH_THRESHOLD" envDefault:"5"`
	MoveYawThreshold      float64 `env:"AGENTKIT_MOVE_YAW_THRESHOLD" envDefault:"10"`

	// EpisodeTimeoutSeconds bounds one episode's wall-clock duration.
	EpisodeTimeoutSeconds int `env:"AGENTKIT_EPISODE_TIMEOUT_SECONDS" envDefault:"10"`
}

// Validate checks the invariants the coordinator depends on.
func (c Config) Validate() error {
	if c.AgentServiceID == "" {
		return fmt.Errorf("agent service id is required")
	}
	if c.RoleID == "" {
		return fmt.Errorf("role id is required")
	}
	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max concurrent sessions must be at least 1, got %d", c.MaxConcurrentSessions)
	}
	return nil
}

// SessionConfig maps the coordinator configuration onto per-session tuning.
func (c Config) SessionConfig() session.Config {
	sessionCfg := session.DefaultConfig()
	sessionCfg.Synchronous = c.SynchronousTurnProcessing
	sessionCfg.SyncWaitTimeout = c.SyncWaitTimeout
	sessionCfg.MoveDistanceThreshold = c.MoveDistanceThreshold
	sessionCfg.MovePitchThreshold = c.MovePitchThreshold
	sessionCfg.MoveYawThreshold = c.MoveYawThreshold
	sessionCfg.EpisodeTimeout = time.Duration(c.EpisodeTimeoutSeconds) * time.Second
	return sessionCfg
}
