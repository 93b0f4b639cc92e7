// internal/browser/live_test.go
package browser

import (
	"context"
	"net/url"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/middleman/internal/config"
)

// openLive launches a headless browser on markup, skipping the test when no
// Chrome binary is installed.
func openLive(t *testing.T, markup string) *Session {
	t.Helper()
	if testing.Short() {
		t.Skip("launches a browser")
	}
	found := false
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no Chrome binary on PATH")
	}

	m, err := NewManager(zaptest.NewLogger(t), config.BrowserConfig{Headless: true, ProfileDir: t.TempDir()},
		config.NetworkConfig{NavigationTimeout: 30 * time.Second, ActionTimeout: 10 * time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	s, err := m.open(ctx, "live", true)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close(context.Background())
		_ = m.Shutdown(context.Background())
	})

	require.NoError(t, s.Navigate(ctx, "data:text/html,"+url.PathEscape(markup)))
	return s
}

func TestElementLive(t *testing.T) {
	s := openLive(t, `<html><body>
		<p id="shown"> Hello <b>there</b> </p>
		<p id="hidden" style="display:none">gone</p>
		<input id="q" type="text" value="seed">
		<input id="tos" type="checkbox">
	</body></html>`)
	ctx := context.Background()

	locate := func(sel string) *element {
		t.Helper()
		els, err := s.Locate(ctx, sel, "")
		require.NoError(t, err)
		require.Len(t, els, 1)
		return els[0].(*element)
	}

	shown := locate("#shown")
	visible, err := shown.Visible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	text, err := shown.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, " Hello there ", text)

	inner, err := shown.InnerHTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, inner, "<b>there</b>")

	visible, err = locate("#hidden").Visible(ctx)
	require.NoError(t, err)
	assert.False(t, visible)

	q := locate("#q")
	assert.Equal(t, "input", q.TagName())
	value, err := q.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seed", value)

	tos := locate("#tos")
	require.NoError(t, tos.Check(ctx))
	var checked bool
	require.NoError(t, tos.call(ctx, jsChecked, &checked))
	assert.True(t, checked)
}
