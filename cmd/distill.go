// File: cmd/distill.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/browser"
	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/convert"
	"github.com/xkilldash9x/middleman/internal/distill"
	"github.com/xkilldash9x/middleman/internal/observability"
	"github.com/xkilldash9x/middleman/internal/pattern"
	"github.com/xkilldash9x/middleman/internal/prompt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newDistillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distill <url|file> [hostname]",
		Short: "Run a single distillation pass against a page",
		Long: `Opens the page in a throwaway browser profile, prints the best matching
pattern with its live values substituted and, when that pattern is terminal,
the converted records. Local files are loaded through file:// and matched
against the given hostname.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hostname := ""
			if len(args) > 1 {
				hostname = args[1]
			}
			return runDistill(cmd.Context(), configFrom(cmd), cmd.OutOrStdout(), args[0], hostname)
		},
	}
}

// distillTarget maps the command argument to a navigable URL and the
// hostname patterns are matched against.
func distillTarget(location, hostname string) (string, string, error) {
	if strings.HasPrefix(location, "http") {
		u, err := url.Parse(location)
		if err != nil {
			return "", "", fmt.Errorf("invalid location %q: %w", location, err)
		}
		return location, u.Hostname(), nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", location, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", "", fmt.Errorf("cannot distill %s: %w", location, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), hostname, nil
}

func runDistill(ctx context.Context, cfg *config.Config, out io.Writer, location, hostname string) error {
	logger := observability.GetLogger()

	target, hostname, err := distillTarget(location, hostname)
	if err != nil {
		return err
	}
	patterns, err := pattern.Dir(cfg.Patterns.Dir).Load()
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}
	fmt.Fprintf(out, "Distilling %s\n", location)

	// A one-shot pass never needs its profile again.
	profiles, err := os.MkdirTemp("", "middleman-distill-*")
	if err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profiles)

	browserCfg := cfg.Browser
	browserCfg.ProfileDir = profiles
	manager, err := browser.NewManager(logger, browserCfg, cfg.Network)
	if err != nil {
		return err
	}
	defer shutdownBrowsers(ctx, manager)

	tab, err := manager.Open(ctx, "distill")
	if err != nil {
		return err
	}
	defer tab.Close(context.WithoutCancel(ctx))

	console := prompt.Stdio()
	pauseIf(ctx, cfg, console)
	if err := tab.Navigate(ctx, target); err != nil {
		return err
	}

	match, err := distill.NewMatcher(logger, cfg.Debug).Distill(ctx, hostname, tab, patterns)
	switch {
	case errors.Is(err, distill.ErrNoMatch):
		fmt.Fprintln(out, "No matched pattern found")
	case err != nil:
		return err
	default:
		if err := printSnapshot(out, logger, match); err != nil {
			return err
		}
	}

	pauseIf(ctx, cfg, console)
	return nil
}

func printSnapshot(out io.Writer, logger *zap.Logger, match *distill.Match) error {
	fmt.Fprintf(out, "\n%s\n\n", match.Snapshot.Markup)
	if !match.Snapshot.IsTerminal() {
		return nil
	}
	fmt.Fprintln(out, "Finished!")
	doc, err := match.Snapshot.Document()
	if err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	records, ok := convert.NewConverter(logger).Convert(doc)
	if !ok || len(records) == 0 {
		return nil
	}
	return printRecords(out, records)
}

func printRecords(out io.Writer, records []convert.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n\n", data)
	return nil
}

func pauseIf(ctx context.Context, cfg *config.Config, console *prompt.Console) {
	if !cfg.Session.Pause {
		return
	}
	if err := console.Pause(ctx); err != nil {
		observability.GetLogger().Debug("Pause interrupted.", zap.Error(err))
	}
}
