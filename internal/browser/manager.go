// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/session"
)

// Manager launches one browser process per session, each with its own
// persistent profile directory.
type Manager struct {
	logger   *zap.Logger
	cfg      config.BrowserConfig
	network  config.NetworkConfig
	denylist []string

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

var _ session.Opener = (*Manager)(nil)

// NewManager creates a Manager and loads the request denylist.
func NewManager(logger *zap.Logger, cfg config.BrowserConfig, netCfg config.NetworkConfig) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		network: netCfg,
	}

	denylist, err := LoadDenylist(cfg.DenylistFile)
	if err != nil {
		return nil, err
	}
	if denylist == nil && cfg.DenylistFile != "" {
		m.logger.Warn("Denylist not found, no URLs will be blocked.", zap.String("path", cfg.DenylistFile))
	}
	m.denylist = denylist
	m.logger.Debug("Browser manager created.", zap.Int("denylist_entries", len(denylist)))
	return m, nil
}

// ProfileDir is the user data directory for profileID.
func (m *Manager) ProfileDir(profileID string) string {
	return filepath.Join(m.cfg.ProfileDir, profileID)
}

// Open launches a browser for profileID using the configured headless mode.
func (m *Manager) Open(ctx context.Context, profileID string) (session.Context, error) {
	return m.open(ctx, profileID, m.cfg.Headless)
}

// Inspect reopens the saved profile profileID in a visible browser,
// optionally navigating to url, and blocks until ctx is done or the browser
// goes away.
func (m *Manager) Inspect(ctx context.Context, profileID, url string) error {
	if _, err := os.Stat(m.ProfileDir(profileID)); err != nil {
		return fmt.Errorf("no saved profile for %s: %w", profileID, err)
	}

	s, err := m.open(ctx, profileID, false)
	if err != nil {
		return err
	}
	defer s.Close(Detach(ctx))

	if url != "" {
		if err := s.Navigate(ctx, url); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	return nil
}

func (m *Manager) open(ctx context.Context, profileID string, headless bool) (*Session, error) {
	dir := m.ProfileDir(profileID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	logger := m.logger.With(zap.String("session_id", profileID))
	opts := append(m.buildAllocatorOptions(headless), chromedp.UserDataDir(dir))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), opts...)
	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	b := &blocker{logger: logger, types: m.cfg.BlockResourceTypes, denylist: m.denylist}
	enable := b.attach(tabCtx)

	// The first Run launches the process; its context must not carry a
	// deadline or the browser dies with it.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx, enable) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	m.wg.Add(1)
	s := &Session{
		id:           profileID,
		logger:       logger,
		ctx:          tabCtx,
		navTimeout:   m.network.NavigationTimeout,
		actTimeout:   m.network.ActionTimeout,
		postLoadWait: m.network.PostLoadWait,
		release: func() {
			tabCancel()
			allocCancel()
			m.wg.Done()
		},
	}
	logger.Info("Browser launched.", zap.String("profile_dir", dir), zap.Bool("headless", headless))
	return s, nil
}

// buildAllocatorOptions assembles the launch flags for a browser process.
func (m *Manager) buildAllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(m.cfg, headless, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}

type flag struct {
	name  string
	value interface{}
}

// launchFlags lists flags applied over the chromedp defaults. Later flags win.
func launchFlags(cfg config.BrowserConfig, headless bool, goos string) []flag {
	flags := []flag{
		// A false value removes the default flag.
		{"enable-automation", false},
		{"headless", headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", headless},
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flag{name, parts[1]})
		} else {
			flags = append(flags, flag{name, true})
		}
	}

	// Required inside containers.
	if goos == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true},
			flag{"disable-setuid-sandbox", true},
		)
	}
	return flags
}

// Shutdown waits for every open session to close, up to the deadline of ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open sessions to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browsers have closed.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded with browsers still open.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
