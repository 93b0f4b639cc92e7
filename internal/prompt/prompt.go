// internal/prompt/prompt.go
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Console asks questions on a terminal. All reads share one buffered
// reader so typed-ahead input is never lost between questions.
type Console struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
	fd     int
	isTerm func(fd int) bool
	readPw func(fd int) ([]byte, error)
}

// NewConsole creates a Console reading from in and writing to out. Masked
// input is only used when in is a terminal.
func NewConsole(in io.Reader, out io.Writer) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok {
		fd = int(f.Fd())
	}
	return &Console{
		reader: bufio.NewReader(in),
		out:    out,
		fd:     fd,
		isTerm: term.IsTerminal,
		readPw: term.ReadPassword,
	}
}

// Stdio is a Console on the process standard streams.
func Stdio() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// Text asks question and returns the trimmed answer.
func (c *Console) Text(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s: ", question)
	return c.readLine(ctx)
}

// Masked asks question without echoing the answer.
func (c *Console) Masked(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s: ", question)

	if c.fd < 0 || !c.isTerm(c.fd) {
		return c.readLine(ctx)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := c.readPw(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("failed to read masked input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Pause waits for Enter.
func (c *Console) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "Press Enter to continue...")
	_, err := c.readLine(ctx)
	return err
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := c.reader.ReadString('\n')
		done <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		// The pending read is abandoned; stdin stays blocked until the process exits.
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			return "", fmt.Errorf("failed to read input: %w", r.err)
		}
		return strings.TrimSpace(r.line), nil
	}
}
