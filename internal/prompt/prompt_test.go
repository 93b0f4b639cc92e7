// internal/prompt/prompt_test.go
package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("  alice \nsecond\n"), &out)

	first, err := c.Text(context.Background(), "Username")
	require.NoError(t, err)
	second, err := c.Text(context.Background(), "Again")
	require.NoError(t, err)

	assert.Equal(t, "alice", first)
	assert.Equal(t, "second", second, "buffered input survives between questions")
	assert.Equal(t, "Username: Again: ", out.String())
}

func TestTextLastLineWithoutNewline(t *testing.T) {
	c := NewConsole(strings.NewReader("bob"), io.Discard)
	answer, err := c.Text(context.Background(), "Name")
	require.NoError(t, err)
	assert.Equal(t, "bob", answer)

	_, err = c.Text(context.Background(), "Name")
	assert.ErrorIs(t, err, io.EOF)
}

func TestMasked(t *testing.T) {
	t.Run("falls back to a plain line off a terminal", func(t *testing.T) {
		c := NewConsole(strings.NewReader("hunter2\n"), io.Discard)
		answer, err := c.Masked(context.Background(), "Password")
		require.NoError(t, err)
		assert.Equal(t, "hunter2", answer)
	})

	t.Run("reads without echo on a terminal", func(t *testing.T) {
		var out bytes.Buffer
		c := NewConsole(strings.NewReader(""), &out)
		c.fd = 7
		c.isTerm = func(fd int) bool { return fd == 7 }
		c.readPw = func(int) ([]byte, error) { return []byte("s3cret"), nil }

		answer, err := c.Masked(context.Background(), "Password")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", answer)
		assert.Equal(t, "Password: \n", out.String())
	})

	t.Run("terminal read failure", func(t *testing.T) {
		c := NewConsole(strings.NewReader(""), io.Discard)
		c.fd = 7
		c.isTerm = func(int) bool { return true }
		boom := errors.New("tty gone")
		c.readPw = func(int) ([]byte, error) { return nil, boom }

		_, err := c.Masked(context.Background(), "Password")
		assert.ErrorIs(t, err, boom)
	})
}

func TestPause(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("\n"), &out)
	require.NoError(t, c.Pause(context.Background()))
	assert.Equal(t, "Press Enter to continue...", out.String())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsole(strings.NewReader("ignored\n"), io.Discard)
	_, err := c.Text(ctx, "Name")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelWhileWaiting(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsole(r, io.Discard)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Text(ctx, "Name")
		errc <- err
	}()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
