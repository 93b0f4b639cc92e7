// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/autofill"
	"github.com/xkilldash9x/middleman/internal/browser"
	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/distill"
	"github.com/xkilldash9x/middleman/internal/flow"
	"github.com/xkilldash9x/middleman/internal/observability"
	"github.com/xkilldash9x/middleman/internal/pattern"
	"github.com/xkilldash9x/middleman/internal/prompt"
	"github.com/xkilldash9x/middleman/internal/session"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <location>",
		Short: "Drive a site unattended until it yields data",
		Long: `Opens location in a fresh browser profile and repeatedly distills, fills and
clicks until a terminal pattern is reached. Field values come from the
environment and the configured env file; anything missing is asked for on
the terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnattended(cmd.Context(), configFrom(cmd), cmd.OutOrStdout(), args[0])
		},
	}
}

func runUnattended(ctx context.Context, cfg *config.Config, out io.Writer, location string) error {
	logger := observability.GetLogger()

	env, err := autofill.NewEnvSource(cfg.Fields.EnvFile)
	if err != nil {
		return err
	}
	manager, err := browser.NewManager(logger, cfg.Browser, cfg.Network)
	if err != nil {
		return err
	}
	defer shutdownBrowsers(ctx, manager)

	console := prompt.Stdio()
	engine := flow.NewEngine(logger, cfg.Session, session.NewRegistry(logger), manager, pattern.Dir(cfg.Patterns.Dir),
		flow.WithEnv(env),
		flow.WithPrompter(console, out),
		flow.WithPauser(console),
		flow.WithMatcher(distill.NewMatcher(logger, cfg.Debug)),
	)

	outcome, err := engine.Run(ctx, location)
	if errors.Is(err, flow.ErrTimeout) {
		fmt.Fprintln(out, "Timeout reached before the site yielded data.")
		return err
	}
	if err != nil {
		return err
	}

	logger.Info("Session finished.", zap.String("session_id", outcome.SessionID), zap.Int("records", len(outcome.Records)))
	if outcome.Converted() {
		return printRecords(out, outcome.Records)
	}
	fmt.Fprintf(out, "\n%s\n\n", outcome.Body)
	return nil
}
