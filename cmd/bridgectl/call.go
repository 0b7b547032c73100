package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCallCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call OPERATION [ARG...]",
		Short: "Invoke one engine operation and print its result",
		Example: `  bridgectl call update query.sql 'SELECT 1'
  bridgectl call hover query.sql '{"line":0,"character":7}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			s, err := connect(ctx, root.target, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.client.WaitReady(ctx); err != nil {
				return err
			}

			result, err := s.client.Call(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), indent(result))
			return nil
		},
	}
}
