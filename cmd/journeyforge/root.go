package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/journeyforge/pkg/config"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/server"
	"github.com/entrhq/journeyforge/pkg/tools/browser"
)

// app carries state shared by every command.
type app struct {
	configPath string
	verbose    bool

	logger *logging.Logger

	// launcher and settings are replaced in tests.
	launcher browser.Launcher
	settings func() server.Settings
}

func newApp() *app {
	return &app{settings: server.CurrentSettings}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "journeyforge",
		Short:             "Record, replay and optimize browser journeys",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.journeyforge/config.json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")

	root.AddCommand(
		a.serveCommand(),
		a.runCommand(),
		a.validateCommand(),
		a.optimizeCommand(),
		a.recordCommand(),
		a.historyCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.Initialize(a.configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logger == nil {
		// NewLogger falls back to stderr, never stdout, so serve keeps a
		// clean protocol stream.
		a.logger, _ = logging.NewLogger("cli")
	}
	if a.verbose {
		a.logger.SetLevel(logging.LevelDebug)
	} else {
		a.logger.SetLevel(logging.LevelInfo)
	}
	return nil
}

// newServer builds a server from the current settings after applying
// adjust.
func (a *app) newServer(ctx context.Context, adjust func(*server.Settings)) (*server.Server, error) {
	settings := a.settings()
	if adjust != nil {
		adjust(&settings)
	}
	return server.New(ctx, server.Options{
		Settings: settings,
		Version:  version,
		Logger:   a.logger,
		Launcher: a.launcher,
	})
}
