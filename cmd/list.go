// File: cmd/list.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/middleman/internal/pattern"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every pattern in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			patterns, err := pattern.Dir(cfg.Patterns.Dir).Load()
			if err != nil {
				return fmt.Errorf("failed to load patterns: %w", err)
			}
			for _, name := range pattern.Names(patterns) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
