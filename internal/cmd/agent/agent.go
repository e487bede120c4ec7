// Package agent wires the agent service binary: bus connection, optional
// task seeding and journaling, and the toolkit run loop.
package agent

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/plaiground/agentkit/internal/agent/demo"
	"github.com/plaiground/agentkit/internal/journal"
	platformcmd "github.com/plaiground/agentkit/internal/platform/cmd"
	"github.com/plaiground/agentkit/internal/task"
	tasksqlite "github.com/plaiground/agentkit/internal/task/sqlite"
	"github.com/plaiground/agentkit/internal/toolkit"
	"github.com/plaiground/agentkit/internal/transport"
	"github.com/plaiground/agentkit/internal/transport/ws"
)

// Config is the agent service configuration.
type Config struct {
	Toolkit toolkit.Config
	Bus     ws.Config

	// TaskDataURL enables seeding each session from remote task documents.
	TaskDataURL string `env:"AGENTKIT_TASKDATA_URL"`
	// TaskCachePath enables the SQLite seed cache.
	TaskCachePath string `env:"AGENTKIT_TASKDATA_CACHE_PATH"`
	// JournalPath enables the SQLite event journal.
	JournalPath string `env:"AGENTKIT_JOURNAL_PATH"`
	// Greeting is the demo agent's chat line.
	Greeting string `env:"AGENTKIT_GREETING"`
}

// ParseConfig loads env defaults and command-line flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Bus.BusURL, "bus-url", cfg.Bus.BusURL, "websocket bus endpoint")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "sqlite event journal path")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run connects to the bus and serves sessions until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceAgent, func(ctx context.Context) error {
		busClient, err := ws.Dial(cfg.Bus)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer func() { _ = busClient.Close() }()

		var client transport.Client = busClient
		if cfg.JournalPath != "" {
			eventJournal, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer func() { _ = eventJournal.Close() }()
			client = journal.Wrap(client, eventJournal)
			log.Printf("agent: journaling events to %s", cfg.JournalPath)
		}

		opts, cleanup, err := taskOptions(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ag := demo.New(cfg.Toolkit.AgentServiceID, cfg.Greeting)
		tk, err := toolkit.New(ag, client, cfg.Toolkit, opts...)
		if err != nil {
			return err
		}
		return tk.Run(ctx)
	})
}

// taskOptions builds the task seeding option when remote task data is
// configured, with an optional SQLite cache in front of the fetcher.
func taskOptions(cfg Config) ([]toolkit.Option, func(), error) {
	if cfg.TaskDataURL == "" {
		return nil, func() {}, nil
	}

	var loader task.Loader = &task.HTTPLoader{BaseURL: cfg.TaskDataURL}
	cleanup := func() {}
	if cfg.TaskCachePath != "" {
		store, err := tasksqlite.Open(cfg.TaskCachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open task cache: %w", err)
		}
		loader = &task.CachingLoader{Loader: loader, Cache: store}
		cleanup = func() { _ = store.Close() }
	}
	return []toolkit.Option{toolkit.WithTaskLoader(loader)}, cleanup, nil
}
