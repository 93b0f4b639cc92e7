// File: cmd/inspect.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/middleman/internal/browser"
	"github.com/xkilldash9x/middleman/internal/observability"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <id> [url]",
		Short: "Reopen a saved session profile in a visible browser",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			target := ""
			if len(args) > 1 && args[1] != "" {
				target = args[1]
				if !strings.HasPrefix(target, "http") {
					target = "https://" + target
				}
			}

			manager, err := browser.NewManager(observability.GetLogger(), cfg.Browser, cfg.Network)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inspecting %s. Close the browser or press Ctrl+C to finish.\n", args[0])
			defer shutdownBrowsers(cmd.Context(), manager)
			return manager.Inspect(cmd.Context(), args[0], target)
		},
	}
}
