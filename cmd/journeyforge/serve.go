package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the journey tools over MCP on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.newServer(ctx, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(); err != nil {
					a.logger.Warnf("shutdown: %v", err)
				}
			}()

			a.logger.Infof("serving %d tools over stdio", len(s.Tools.List()))
			err = s.ServeMCP(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
