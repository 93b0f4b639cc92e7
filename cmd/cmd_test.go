// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/middleman/internal/convert"
	"github.com/xkilldash9x/middleman/internal/distill"
	"github.com/xkilldash9x/middleman/internal/document"
	"github.com/xkilldash9x/middleman/internal/snapshot"
)

func TestListCmd(t *testing.T) {
	resetForTest(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shop"), 0o755))
	for _, name := range []string{"b.html", "a.html", "shop/cart.html", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`<html><body></body></html>`), 0o600))
	}
	t.Setenv("MIDDLEMAN_PATTERNS_DIR", dir)

	out, err := executeCommand(t, NewRootCommand(), "list")
	require.NoError(t, err)
	assert.Equal(t, "a.html\nb.html\nshop/cart.html\n", out)
}

func TestListCmd_MissingDir(t *testing.T) {
	resetForTest(t)
	t.Setenv("MIDDLEMAN_PATTERNS_DIR", filepath.Join(t.TempDir(), "nowhere"))

	_, err := executeCommand(t, NewRootCommand(), "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load patterns")
}

func TestDistillTarget(t *testing.T) {
	t.Run("url", func(t *testing.T) {
		target, host, err := distillTarget("https://www.example.com/a?b=1", "ignored")
		require.NoError(t, err)
		assert.Equal(t, "https://www.example.com/a?b=1", target)
		assert.Equal(t, "www.example.com", host)
	})

	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "page.html")
		require.NoError(t, os.WriteFile(path, []byte(`<html></html>`), 0o600))

		target, host, err := distillTarget(path, "example.com")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(target, "file://"), target)
		assert.True(t, strings.HasSuffix(target, "/page.html"), target)
		assert.Equal(t, "example.com", host)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := distillTarget(filepath.Join(t.TempDir(), "gone.html"), "")
		assert.Error(t, err)
	})
}

func TestPrintSnapshot(t *testing.T) {
	parse := func(t *testing.T, markup string) *snapshot.Snapshot {
		doc, err := document.Parse(markup)
		require.NoError(t, err)
		snap, err := snapshot.New("p.html", 0, doc)
		require.NoError(t, err)
		return snap
	}

	t.Run("terminal with records", func(t *testing.T) {
		snap := parse(t, `<html><body gg-stop><ul><li><span>a</span></li><li><span>b</span></li></ul>
			<script type="application/json">{"rows": "li", "columns": [{"name": "v", "selector": "span"}]}</script></body></html>`)
		var out bytes.Buffer
		require.NoError(t, printSnapshot(&out, zaptest.NewLogger(t), &distill.Match{Snapshot: snap}))
		assert.Contains(t, out.String(), "Finished!")
		assert.Contains(t, out.String(), `"v": "a"`)
	})

	t.Run("not terminal", func(t *testing.T) {
		snap := parse(t, `<html><body><input name="q"></body></html>`)
		var out bytes.Buffer
		require.NoError(t, printSnapshot(&out, zaptest.NewLogger(t), &distill.Match{Snapshot: snap}))
		assert.Contains(t, out.String(), `name="q"`)
		assert.NotContains(t, out.String(), "Finished!")
	})
}

func TestPrintRecords(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRecords(&out, []convert.Record{{"title": "Dune", "rank": "1"}}))
	assert.Contains(t, out.String(), "\"rank\": \"1\",\n    \"title\": \"Dune\"")
}
