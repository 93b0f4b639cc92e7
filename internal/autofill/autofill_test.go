// internal/autofill/autofill_test.go
package autofill

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/middleman/internal/document"
	"github.com/xkilldash9x/middleman/internal/mocks"
	"github.com/xkilldash9x/middleman/internal/page/pagetest"
)

const liveForm = `<html><body>
  <input id="email" type="email">
  <input id="pw" type="password">
  <input id="tos" type="checkbox">
  <input id="plan-basic" type="radio" name="plan">
  <input id="plan-pro" type="radio" name="plan">
</body></html>`

const distilledForm = `<html gg-domain="example"><body>
  <input type="email" name="email" gg-match="#email" placeholder="Your email">
  <input type="password" name="password" gg-match="#pw">
  <input type="checkbox" name="tos" gg-match="#tos" checked>
  <label for="basic"> Basic plan </label>
  <input type="radio" name="plan" id="basic" gg-match="#plan-basic">
  <input type="radio" name="plan" id="pro" gg-match="#plan-pro">
  <input type="hidden" name="csrf" value="x">
  <input type="text" name="nosel">
</body></html>`

func parse(t *testing.T, markup string) *document.Document {
	t.Helper()
	doc, err := document.Parse(markup)
	require.NoError(t, err)
	return doc
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestDescribe(t *testing.T) {
	fields, problems := Describe(parse(t, distilledForm))

	require.Len(t, fields, 5)
	kinds := []Kind{KindEmail, KindPassword, KindCheckbox, KindRadio, KindRadio}
	for i, f := range fields {
		assert.Equal(t, kinds[i], f.Kind)
	}
	assert.Equal(t, "Your email", fields[0].Placeholder)
	assert.True(t, fields[2].Checked)
	assert.Equal(t, "basic", fields[3].ID)
	assert.Equal(t, []string{"input of type text has no selector"}, problems)
}

func TestFieldKey(t *testing.T) {
	assert.Equal(t, "EXAMPLE_EMAIL", Field{Kind: KindEmail, Name: "email"}.Key("example"))
	assert.Equal(t, "USERNAME", Field{Kind: KindText, Name: "username"}.Key(""))
	assert.Equal(t, "SHOP_TEL", Field{Kind: KindTel}.Key("shop"))
	assert.Equal(t, "iframe.auth", Field{Selector: "iframe.auth #pw"}.Frame())
}

func TestResolveUnattended(t *testing.T) {
	ctx := context.Background()
	live := pagetest.New(liveForm)
	doc := parse(t, distilledForm)

	prompter := new(mocks.MockPrompter)
	prompter.On("Masked", "Please enter password").Return("s3cret", nil).Once()
	prompter.On("Text", "Your choice (1-2)").Return("9", nil).Once()
	prompter.On("Text", "Your choice (1-2)").Return("two", nil).Once()
	prompter.On("Text", "Your choice (1-2)").Return("2", nil).Once()

	var out bytes.Buffer
	settles := 0
	r := NewResolver(zaptest.NewLogger(t),
		WithEnv(StaticSource{"EXAMPLE_EMAIL": "ada@example.com"}),
		WithPrompter(prompter, &out),
		WithSettleDelay(250*time.Millisecond),
		WithSleep(func(_ context.Context, d time.Duration) error {
			assert.Equal(t, 250*time.Millisecond, d)
			settles++
			return nil
		}),
	)

	res, err := r.Resolve(ctx, live, doc, nil)
	require.NoError(t, err)
	prompter.AssertExpectations(t)

	assert.Equal(t, 5, res.Fields)
	assert.Equal(t, 5, res.Resolved)
	assert.True(t, res.Complete())
	assert.Empty(t, res.Unresolved)
	assert.Equal(t, 4, settles)

	assert.Equal(t, []pagetest.Action{
		{Kind: "fill", Selector: "#email", Value: "ada@example.com"},
		{Kind: "fill", Selector: "#pw", Value: "s3cret"},
		{Kind: "check", Selector: "#tos"},
		{Kind: "check", Selector: "#plan-pro"},
	}, live.Actions())

	assert.Contains(t, out.String(), " 1. Basic plan\n 2. pro\n")

	updated := parse(t, res.Markup)
	assert.Equal(t, "ada@example.com", updated.First("input[name=email]").AttrOr("value", ""))
	assert.True(t, updated.First("#pro").Has("checked"))
	assert.False(t, updated.First("#basic").Has("checked"))
}

func TestResolvePrefersConfiguredValues(t *testing.T) {
	live := pagetest.New(`<html><body><input id="user" type="text"></body></html>`)
	doc := parse(t, `<html><body><input type="text" name="user" gg-match="#user"></body></html>`)

	prompter := new(mocks.MockPrompter)
	r := NewResolver(zaptest.NewLogger(t),
		WithEnv(StaticSource{"USER": "ada"}),
		WithPrompter(prompter, io.Discard),
		WithSleep(noSleep),
	)

	res, err := r.Resolve(context.Background(), live, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	prompter.AssertNotCalled(t, "Text", mock.Anything)
	assert.Equal(t, "ada", live.ActionsOf("fill")[0].Value)
}

func TestResolveSuppliedValues(t *testing.T) {
	ctx := context.Background()

	t.Run("partial input leaves fields unresolved", func(t *testing.T) {
		live := pagetest.New(liveForm)
		supplied := Values{"email": "bob@example.com", "plan": "basic"}
		r := NewResolver(zaptest.NewLogger(t), WithSleep(noSleep))

		res, err := r.Resolve(ctx, live, parse(t, distilledForm), supplied)
		require.NoError(t, err)

		assert.Equal(t, 5, res.Fields)
		assert.Equal(t, 4, res.Resolved)
		assert.False(t, res.Complete())
		assert.Equal(t, []string{"password"}, res.Unresolved)

		_, stillThere := supplied["email"]
		assert.False(t, stillThere, "textual values are consumed")
		assert.Equal(t, "basic", supplied["plan"])

		assert.Equal(t, []pagetest.Action{
			{Kind: "fill", Selector: "#email", Value: "bob@example.com"},
			{Kind: "check", Selector: "#plan-basic"},
		}, live.Actions(), "an absent checkbox value leaves it unchecked")

		updated := parse(t, res.Markup)
		assert.False(t, updated.First("input[name=tos]").Has("checked"))
		assert.True(t, updated.First("#basic").Has("checked"))
	})

	t.Run("complete input", func(t *testing.T) {
		live := pagetest.New(liveForm)
		supplied := Values{"email": "bob@example.com", "password": "pw", "tos": "on", "plan": "pro"}
		r := NewResolver(zaptest.NewLogger(t), WithSleep(noSleep))

		res, err := r.Resolve(ctx, live, parse(t, distilledForm), supplied)
		require.NoError(t, err)
		assert.True(t, res.Complete())
		assert.Len(t, live.ActionsOf("check"), 2)
	})

	t.Run("unknown radio id", func(t *testing.T) {
		live := pagetest.New(liveForm)
		r := NewResolver(zaptest.NewLogger(t), WithSleep(noSleep))
		res, err := r.Resolve(ctx, live, parse(t, distilledForm), Values{"plan": "enterprise"})
		require.NoError(t, err)
		assert.Contains(t, res.Unresolved, "plan")
		assert.Empty(t, live.ActionsOf("check"))
	})
}

func TestResolveRadioGroupsOnce(t *testing.T) {
	live := pagetest.New(`<html><body>
		<input id="a1" type="radio" name="a"><input id="a2" type="radio" name="a">
		<input id="b1" type="radio" name="b"><input id="a3" type="radio" name="a">
	</body></html>`)
	doc := parse(t, `<html><body>
		<input type="radio" name="a" id="x1" gg-match="#a1">
		<input type="radio" name="a" id="x2" gg-match="#a2">
		<input type="radio" name="b" id="y1" gg-match="#b1">
		<input type="radio" name="a" id="x3" gg-match="#a3">
	</body></html>`)

	prompter := new(mocks.MockPrompter)
	prompter.On("Text", "Your choice (1-3)").Return("3", nil).Once()
	prompter.On("Text", "Your choice (1-1)").Return("1", nil).Once()

	r := NewResolver(zaptest.NewLogger(t), WithPrompter(prompter, io.Discard), WithSleep(noSleep))
	res, err := r.Resolve(context.Background(), live, doc, nil)
	require.NoError(t, err)
	prompter.AssertExpectations(t)

	assert.Equal(t, 4, res.Fields)
	assert.Equal(t, 4, res.Resolved)
	assert.Equal(t, []pagetest.Action{
		{Kind: "check", Selector: "#a3"},
		{Kind: "check", Selector: "#b1"},
	}, live.Actions())
}

func TestResolveSoftFailures(t *testing.T) {
	t.Run("field missing on the live page", func(t *testing.T) {
		live := pagetest.New(`<html><body></body></html>`)
		doc := parse(t, `<html><body><input type="text" name="user" gg-match="#user"></body></html>`)
		r := NewResolver(zaptest.NewLogger(t), WithEnv(StaticSource{"USER": "ada"}), WithSleep(noSleep))

		res, err := r.Resolve(context.Background(), live, doc, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"user"}, res.Unresolved)
		assert.NotContains(t, res.Markup, `value="ada"`)
	})

	t.Run("prompt failure aborts", func(t *testing.T) {
		live := pagetest.New(liveForm)
		prompter := new(mocks.MockPrompter)
		prompter.On("Text", "Your email").Return("", io.EOF)
		r := NewResolver(zaptest.NewLogger(t), WithPrompter(prompter, io.Discard), WithSleep(noSleep))

		_, err := r.Resolve(context.Background(), live, parse(t, distilledForm), nil)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := NewResolver(zaptest.NewLogger(t), WithSleep(noSleep))
		_, err := r.Resolve(ctx, pagetest.New(liveForm), parse(t, distilledForm), Values{"email": "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEnvSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXAMPLE_EMAIL=file@example.com\nEXAMPLE_TEL=123\n"), 0o600))

	t.Setenv("EXAMPLE_TEL", "999")
	src, err := NewEnvSource(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	v, ok := src.Lookup("EXAMPLE_EMAIL")
	assert.True(t, ok)
	assert.Equal(t, "file@example.com", v)

	v, ok = src.Lookup("EXAMPLE_TEL")
	assert.True(t, ok)
	assert.Equal(t, "999", v, "the process environment wins over the file")

	_, ok = src.Lookup("MIDDLEMAN_TEST_ABSENT_KEY")
	assert.False(t, ok)

	missing, err := NewEnvSource(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 0, missing.Len())
}
