// internal/snapshot/snapshot_test.go
package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/middleman/internal/document"
)

func build(t *testing.T, markup string) *Snapshot {
	t.Helper()
	doc, err := document.Parse(markup)
	require.NoError(t, err)
	snap, err := New("test.html", 1, doc)
	require.NoError(t, err)
	return snap
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, build(t, `<html><body><div><span gg-stop>done</span></div></body></html>`).IsTerminal())
	assert.True(t, build(t, `<html><body gg-stop=""></body></html>`).IsTerminal())
	assert.False(t, build(t, `<html><body><span class="gg-stop">no</span></body></html>`).IsTerminal())
}

func TestEqual(t *testing.T) {
	a := build(t, `<html><body><p>x</p></body></html>`)
	b := build(t, `<html><body><p>x</p></body></html>`)
	c := build(t, `<html><body><p>y</p></body></html>`)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	var none *Snapshot
	assert.True(t, none.Equal(nil))
}

func TestTitle(t *testing.T) {
	doc, err := build(t, `<html><head><title>Orders</title></head><body></body></html>`).Document()
	require.NoError(t, err)
	assert.Equal(t, "Orders", Title(doc))

	doc, err = build(t, `<html><body></body></html>`).Document()
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, Title(doc))
}

func TestDocumentIsAFreshCopy(t *testing.T) {
	s := build(t, `<html><body><input name="q"></body></html>`)
	doc, err := s.Document()
	require.NoError(t, err)
	doc.First("input").SetAttr("value", "changed")

	assert.NotContains(t, s.Markup, "changed")
	assert.Contains(t, s.WithMarkup(doc.String()).Markup, `value="changed"`)
	assert.Equal(t, "test.html", s.WithMarkup("").Name)
	assert.Equal(t, `<body><input name="q"/></body>`, s.Body())
}
