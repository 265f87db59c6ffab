package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/store"
)

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Check journey files for errors and warnings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(args)
			if err != nil {
				return err
			}
			invalid := 0
			for _, def := range defs {
				res := journey.ValidateDefinition(def)
				printValidation(cmd.OutOrStdout(), def.Name, res)
				if !res.IsValid {
					invalid++
				}
			}
			if invalid > 0 {
				return errFailed
			}
			return nil
		},
	}
}

func (a *app) optimizeCommand() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "optimize <file>",
		Short: "Give every step without a timeout its default timeout",
		Long:  "Optimize sets a default timeout on steps without one and keeps explicit\ntimeouts. The result is printed unless --write is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			def, err := store.LoadFile(path)
			if err != nil {
				return err
			}
			if res := journey.ValidateDefinition(def); !res.IsValid {
				printValidation(cmd.OutOrStdout(), def.Name, res)
				return errFailed
			}

			timeout := a.settings().Journey.DefaultStepTimeout
			optimized := journey.OptimizeDefinition(def, journey.WithDefaultStepTimeout(timeout))
			if !write {
				data, err := store.Encode(optimized, filepath.Ext(path))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			if err := store.WriteFile(path, optimized); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", mark(true), titleStyle.Render(optimized.Name),
				mutedStyle.Render("written to "+path))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}
