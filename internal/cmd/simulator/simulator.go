// Package simulator wires the simulator binary: a scripted platform and a
// demo agent exchanging events over the in-memory loopback bus.
package simulator

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/plaiground/agentkit/internal/agent/demo"
	platformcmd "github.com/plaiground/agentkit/internal/platform/cmd"
	"github.com/plaiground/agentkit/internal/simulator"
	"github.com/plaiground/agentkit/internal/toolkit"
	"github.com/plaiground/agentkit/internal/transport/local"
)

// Config is the simulator binary configuration.
type Config struct {
	Toolkit toolkit.Config

	// Turns is how many turns the scripted session grants the agent.
	Turns int `env:"AGENTKIT_SIM_TURNS" envDefault:"2"`
	// Greeting is the demo agent's chat line.
	Greeting string `env:"AGENTKIT_GREETING"`
}

// ParseConfig loads env defaults and command-line flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Toolkit.AgentServiceID == "" {
		cfg.Toolkit.AgentServiceID = "sim-agent"
	}
	fs.IntVar(&cfg.Turns, "turns", cfg.Turns, "number of agent turns to script")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run plays one scripted session between the demo agent and the simulated
// platform, then shuts the toolkit down.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceSimulator, func(ctx context.Context) error {
		client := local.NewClient()
		ag := demo.New(cfg.Toolkit.AgentServiceID, cfg.Greeting)
		tk, err := toolkit.New(ag, client, cfg.Toolkit)
		if err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		runErr := make(chan error, 1)
		go func() { runErr <- tk.Run(runCtx) }()

		simCfg := simulator.DefaultConfig(cfg.Toolkit.AgentServiceID)
		simCfg.AgentRoleID = cfg.Toolkit.RoleID
		if cfg.Turns > 0 {
			simCfg.Turns = cfg.Turns
		}
		if err := simulator.New(client, simCfg).Run(runCtx); err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("scripted session: %w", err)
		}

		cancel()
		if err := <-runErr; err != nil {
			return err
		}
		log.Printf("simulator: exchanged %d event batches", len(client.Batches()))
		return nil
	})
}
