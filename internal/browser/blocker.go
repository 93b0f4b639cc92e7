// internal/browser/blocker.go
package browser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LoadDenylist reads URL fragments, one per line. A missing file is not an
// error and yields an empty list.
func LoadDenylist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open denylist: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read denylist: %w", err)
	}
	return out, nil
}

// blocker fails requests for blocked resource types and denylisted URLs.
type blocker struct {
	logger   *zap.Logger
	types    []string
	denylist []string
}

func (b *blocker) shouldDeny(resourceType, url string) bool {
	for _, t := range b.types {
		if strings.EqualFold(t, resourceType) {
			return true
		}
	}
	for _, entry := range b.denylist {
		if strings.Contains(url, entry) {
			return true
		}
	}
	return false
}

// attach registers the interception listener on a tab context that has not
// run yet. The returned action enables interception and must be run first.
func (b *blocker) attach(tabCtx context.Context) chromedp.Action {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*fetch.EventRequestPaused); ok {
			// Handlers must not block the event loop.
			go b.handle(tabCtx, e)
		}
	})
	return fetch.Enable()
}

func (b *blocker) handle(tabCtx context.Context, e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(tabCtx, c.Target)

	var err error
	if b.shouldDeny(string(e.ResourceType), e.Request.URL) {
		b.logger.Debug("Request denied.", zap.String("url", e.Request.URL), zap.String("type", string(e.ResourceType)))
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(execCtx)
	}
	if err != nil && tabCtx.Err() == nil {
		b.logger.Debug("Failed to settle intercepted request.", zap.String("url", e.Request.URL), zap.Error(err))
	}
}
