// File: cmd/serve.go
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/browser"
	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/distill"
	"github.com/xkilldash9x/middleman/internal/flow"
	"github.com/xkilldash9x/middleman/internal/observability"
	"github.com/xkilldash9x/middleman/internal/pattern"
	"github.com/xkilldash9x/middleman/internal/server"
	"github.com/xkilldash9x/middleman/internal/session"
)

const browserShutdownTimeout = 15 * time.Second

// runServe is swapped out by tests that exercise dispatch only.
var runServe = serve

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Serve the externally driven flow over HTTP",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFrom(cmd))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()

	manager, err := browser.NewManager(logger, cfg.Browser, cfg.Network)
	if err != nil {
		return err
	}
	registry := session.NewRegistry(logger)
	engine := flow.NewEngine(logger, cfg.Session, registry, manager, pattern.Dir(cfg.Patterns.Dir),
		flow.WithMatcher(distill.NewMatcher(logger, cfg.Debug)),
	)

	logger.Info("Listening.", zap.String("address", cfg.Server.Addr()))
	err = server.NewServer(logger, cfg.Server, cfg.Session.IdleTimeout, engine, registry).Run(ctx)

	shutdownBrowsers(ctx, manager)
	return err
}

// shutdownBrowsers waits a bounded time for every browser to exit, even
// after ctx has been canceled.
func shutdownBrowsers(ctx context.Context, manager *browser.Manager) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), browserShutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		observability.GetLogger().Warn("Browser shutdown incomplete.", zap.Error(err))
	}
}
