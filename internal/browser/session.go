// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/page"
	"github.com/xkilldash9x/middleman/internal/selector"
	"github.com/xkilldash9x/middleman/internal/session"
)

// Session is a live page in its own browser process.
type Session struct {
	id     string
	logger *zap.Logger
	// ctx is the chromedp tab context. Every action derives from it.
	ctx context.Context

	navTimeout   time.Duration
	actTimeout   time.Duration
	postLoadWait time.Duration

	release   func()
	closeOnce sync.Once
	closeErr  error
}

var _ session.Context = (*Session)(nil)

// run executes actions on the tab, canceled by either the tab or ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	nctx, cancel := withTimeout(ctx, s.navTimeout)
	defer cancel()

	s.logger.Info("Navigating.", zap.String("url", url))
	if err := s.run(nctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if s.postLoadWait > 0 {
		if err := s.run(ctx, chromedp.Sleep(s.postLoadWait)); err != nil {
			return err
		}
	}
	return nil
}

// Locate returns every element matching sel, inside the first iframe
// matching frame when frame is set.
func (s *Session) Locate(ctx context.Context, sel, frame string) ([]page.Element, error) {
	actx, cancel := withTimeout(ctx, s.actTimeout)
	defer cancel()

	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if selector.IsXPath(sel) {
		opts = []chromedp.QueryOption{chromedp.BySearch, chromedp.AtLeast(0)}
	}

	if frame != "" {
		var frames []*cdp.Node
		if err := s.run(actx, chromedp.Nodes(frame, &frames, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
			return nil, fmt.Errorf("frame %q: %w", frame, err)
		}
		if len(frames) == 0 {
			return nil, nil
		}
		opts = append(opts, chromedp.FromNode(frames[0]))
	}

	var nodes []*cdp.Node
	if err := s.run(actx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}

	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{s: s, node: n})
	}
	return out, nil
}

// Close shuts the browser down. Only the first call does any work.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()

		select {
		case s.closeErr = <-done:
		case <-ctx.Done():
			s.closeErr = ctx.Err()
		}
		s.release()
		s.logger.Info("Browser closed.")
	})
	return s.closeErr
}
