// internal/session/registry_test.go
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/middleman/internal/page/pagetest"
)

type fakeContext struct {
	*pagetest.Page
	mu     sync.Mutex
	closes int
	err    error
}

func (f *fakeContext) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.err
}

func (f *fakeContext) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeOpener struct {
	mu       sync.Mutex
	profiles []string
	opened   []*fakeContext
	err      error
	gate     chan struct{}
}

func (o *fakeOpener) Open(ctx context.Context, profileID string) (Context, error) {
	if o.gate != nil {
		<-o.gate
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.profiles = append(o.profiles, profileID)
	if o.err != nil {
		return nil, o.err
	}
	c := &fakeContext{Page: pagetest.New("<html><body></body></html>")}
	o.opened = append(o.opened, c)
	return c, nil
}

func TestGenerateID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := generateID()
		require.NoError(t, err)
		require.Len(t, id, IDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q in %s", r, id)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190, "ids should rarely collide")
}

func TestCreate(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	opener := &fakeOpener{}

	h, err := r.Create(context.Background(), opener, "example.com", "https://example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{h.ID}, opener.profiles, "the session id doubles as profile id")
	assert.Equal(t, "example.com", h.Hostname)
	assert.NotNil(t, h.Page)
	assert.False(t, h.LastActive().IsZero())

	got, ok := r.Lookup(h.ID)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())
}

func TestCreateRetriesCollidingIDs(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	ids := []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	r.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	first, err := r.Create(context.Background(), &fakeOpener{}, "h", "l", nil)
	require.NoError(t, err)
	second, err := r.Create(context.Background(), &fakeOpener{}, "h", "l", nil)
	require.NoError(t, err)

	assert.Equal(t, "aaaaaa", first.ID)
	assert.Equal(t, "bbbbbb", second.ID)
}

func TestCreateFailure(t *testing.T) {
	t.Run("open error removes the reservation", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		boom := errors.New("no browser")

		h, err := r.Create(context.Background(), &fakeOpener{err: boom}, "h", "l", nil)
		assert.Nil(t, h)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("id generation error", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		boom := errors.New("entropy")
		r.newID = func() (string, error) { return "", boom }

		_, err := r.Create(context.Background(), &fakeOpener{}, "h", "l", nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("id space exhausted", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		r.newID = func() (string, error) { return "same", nil }
		_, err := r.Create(context.Background(), &fakeOpener{}, "h", "l", nil)
		require.NoError(t, err)

		_, err = r.Create(context.Background(), &fakeOpener{}, "h", "l", nil)
		assert.ErrorContains(t, err, "unique session id")
	})
}

func TestLockWaitsForOpen(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	opener := &fakeOpener{gate: make(chan struct{})}
	r.newID = func() (string, error) { return "abc234", nil }

	created := make(chan *Handle)
	go func() {
		h, _ := r.Create(context.Background(), opener, "h", "l", nil)
		created <- h
	}()

	require.Eventually(t, func() bool {
		_, ok := r.Lookup("abc234")
		return ok
	}, time.Second, time.Millisecond)
	h, _ := r.Lookup("abc234")

	locked := make(chan struct{})
	go func() {
		h.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		t.Fatal("handle locked before its context was open")
	case <-time.After(20 * time.Millisecond):
	}

	close(opener.gate)
	<-created
	<-locked
	assert.NotNil(t, h.Page)
	h.Unlock()
}

func TestRelease(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	opener := &fakeOpener{}
	h, err := r.Create(context.Background(), opener, "h", "l", nil)
	require.NoError(t, err)

	require.NoError(t, r.Release(context.Background(), h))
	require.NoError(t, r.Release(context.Background(), h))

	_, ok := r.Lookup(h.ID)
	assert.False(t, ok)
	assert.True(t, h.Closed())
	assert.Equal(t, 1, opener.opened[0].Closes(), "close runs exactly once")
}

func TestReleaseReportsCloseError(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	opener := &fakeOpener{}
	h, err := r.Create(context.Background(), opener, "h", "l", nil)
	require.NoError(t, err)
	boom := errors.New("already gone")
	opener.opened[0].err = boom

	assert.ErrorIs(t, r.Release(context.Background(), h), boom)
	assert.Equal(t, 0, r.Len())
}

func TestReap(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	r.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		clock = clock.Add(d)
		clockMu.Unlock()
	}

	opener := &fakeOpener{}
	idle, err := r.Create(context.Background(), opener, "h", "l", nil)
	require.NoError(t, err)
	busy, err := r.Create(context.Background(), opener, "h", "l", nil)
	require.NoError(t, err)

	advance(10 * time.Minute)
	fresh, err := r.Create(context.Background(), opener, "h", "l", nil)
	require.NoError(t, err)

	busy.Lock()
	// Lock touches the handle, so rewind it to look idle while a round is in flight.
	busy.activeMu.Lock()
	busy.lastActive = clock.Add(-time.Hour)
	busy.activeMu.Unlock()

	assert.Equal(t, 1, r.Reap(context.Background(), 5*time.Minute))
	busy.Unlock()

	_, ok := r.Lookup(idle.ID)
	assert.False(t, ok, "idle session is reaped")
	assert.True(t, idle.Closed())
	_, ok = r.Lookup(busy.ID)
	assert.True(t, ok, "a session inside a round is never reaped")
	_, ok = r.Lookup(fresh.ID)
	assert.True(t, ok)
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	opener := &fakeOpener{}
	for i := 0; i < 3; i++ {
		_, err := r.Create(context.Background(), opener, "h", "l", nil)
		require.NoError(t, err)
	}

	r.CloseAll(context.Background())
	assert.Equal(t, 0, r.Len())
	for _, c := range opener.opened {
		assert.Equal(t, 1, c.Closes())
	}
}
