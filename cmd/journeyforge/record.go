package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/journeyforge/pkg/server"
)

const recordSession = "record"

type recordFlags struct {
	name        string
	description string
	exclude     []string
}

func (a *app) recordCommand() *cobra.Command {
	var flags recordFlags
	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record interactions in a browser window until Ctrl+C",
		Long: "Record opens a visible browser at url and records clicks, typing and\n" +
			"navigation. Press Ctrl+C to stop; the journey is saved to the journey store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "journey name (required)")
	cmd.Flags().StringVar(&flags.description, "description", "", "journey description")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "action patterns to leave out, e.g. scroll or click:#ads*")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) record(cmd *cobra.Command, url string, flags recordFlags) error {
	ctx := cmd.Context()
	s, err := a.newServer(ctx, func(settings *server.Settings) {
		settings.Browser.Headless = false
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warnf("shutdown: %v", err)
		}
	}()

	opts := s.SessionDefaults()
	opts.Headless = false
	session, err := s.Sessions.StartSession(ctx, recordSession, opts)
	if err != nil {
		return err
	}
	if err := session.Page.Navigate(ctx, url, s.Settings().Journey.NavigateTimeout); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	recOpts := s.RecorderDefaults()
	recOpts.JourneyName = flags.name
	recOpts.Description = flags.description
	recOpts.ExcludeActions = append(recOpts.ExcludeActions, flags.exclude...)
	if _, err := s.Recorders.StartRecording(ctx, recordSession, session.Page, recOpts); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", passStyle.Render("recording"), mutedStyle.Render(url+"  press Ctrl+C to stop"))
	<-ctx.Done()

	def, err := s.Recorders.StopRecording(context.WithoutCancel(ctx), recordSession)
	if err != nil {
		return err
	}
	if len(def.Steps) == 0 {
		return errors.New("nothing was recorded")
	}
	path, err := s.Journeys.Save(def)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s  %s\n", mark(true), titleStyle.Render(def.Name),
		mutedStyle.Render(fmt.Sprintf("%d steps saved to %s", len(def.Steps), path)))
	return nil
}
