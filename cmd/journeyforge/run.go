package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/server"
	"github.com/entrhq/journeyforge/pkg/store"
)

// errFailed is returned when a command completed but its verdict is
// negative; the details were already printed.
var errFailed = errors.New("failed")

type runFlags struct {
	parallel int
	baseURL  string
	headed   bool
}

func (a *app) runCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <file|dir>...",
		Short: "Run journey files in a browser and print a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 1, "journeys to run at once")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "resolve relative navigate values against this URL")
	cmd.Flags().BoolVar(&flags.headed, "headed", false, "show the browser window")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, flags runFlags) error {
	defs, err := loadDefinitions(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	invalid := 0
	for _, def := range defs {
		if res := journey.ValidateDefinition(def); !res.IsValid {
			printValidation(out, def.Name, res)
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid journeys", invalid)
	}

	ctx := cmd.Context()
	s, err := a.newServer(ctx, func(settings *server.Settings) {
		if flags.headed {
			settings.Browser.Headless = false
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warnf("shutdown: %v", err)
		}
	}()

	sessionOpts := s.SessionDefaults()
	factory := func(ctx context.Context) (page.Controller, func(), error) {
		return s.Sessions.TemporaryPage(ctx, sessionOpts)
	}
	maxDuration := s.Settings().Journey.MaxDuration
	results, runErr := journey.RunSuite(ctx, factory, defs, journey.SuiteOptions{
		Parallel:  flags.parallel,
		Simulator: s.SimulatorOptions(),
		Prepare: func(_ *journey.Definition, opts *journey.Options) {
			opts.BaseURL = flags.baseURL
			opts.MaxDuration = maxDuration
		},
	})

	for _, r := range results {
		if r.Result == nil {
			continue
		}
		if err := s.History.Record(context.WithoutCancel(ctx), r.Result); err != nil {
			a.logger.Warnf("failed to record run of %s: %v", r.Name, err)
		}
	}

	failed := printSuite(out, results)
	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return errFailed
	}
	return nil
}

// loadDefinitions reads every path, expanding directories to the journey
// files directly inside them.
func loadDefinitions(paths []string) ([]*journey.Definition, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && store.IsDefinitionFile(e.Name()) {
				found = append(found, filepath.Join(path, e.Name()))
			}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no journey files in %s", path)
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	defs := make([]*journey.Definition, 0, len(files))
	for _, file := range files {
		def, err := store.LoadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
