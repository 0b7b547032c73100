package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woxQAQ/wasm-analyzer/internal/bundle"
)

func newInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install PACKAGE_DIR ENGINES_DIR",
		Short: "Copy a built engine package into an engines directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := bundle.Install(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s into %s\n", m.Name, m.Version, m.Dir())
			return nil
		},
	}
}
