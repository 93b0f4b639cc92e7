// internal/session/registry.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/page"
	"github.com/xkilldash9x/middleman/internal/pattern"
)

// Alphabet is the friendly character set used for session ids.
const Alphabet = "23456789abcdefghijkmnpqrstuvwxyz"

// IDLength is the number of characters in a session id.
const IDLength = 6

const maxIDAttempts = 32

// Context is an isolated browsing context bound to one session.
type Context interface {
	page.Page
	Close(ctx context.Context) error
}

// Opener creates isolated browsing contexts. profileID names the
// persistent profile directory of the context.
type Opener interface {
	Open(ctx context.Context, profileID string) (Context, error)
}

// Handle is one live session. Rounds on a handle are serialized by Lock.
type Handle struct {
	ID       string
	Hostname string
	Location string
	Patterns []pattern.Pattern
	Page     Context

	mu         sync.Mutex
	activeMu   sync.Mutex
	lastActive time.Time
	closeOnce  sync.Once
	closeErr   error
	closed     bool
	now        func() time.Time
}

// Lock acquires exclusive use of the handle and marks it active.
func (h *Handle) Lock() {
	h.mu.Lock()
	h.touch()
}

// Unlock releases the handle and marks it active.
func (h *Handle) Unlock() {
	h.touch()
	h.mu.Unlock()
}

func (h *Handle) touch() {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	if h.now != nil {
		h.lastActive = h.now()
	} else {
		h.lastActive = time.Now()
	}
}

// LastActive returns when the handle was last locked or unlocked.
func (h *Handle) LastActive() time.Time {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	return h.lastActive
}

// Closed reports whether Close has run.
func (h *Handle) Closed() bool {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	return h.closed
}

// Close releases the browsing context. Only the first call does any work.
func (h *Handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.activeMu.Lock()
		h.closed = true
		h.activeMu.Unlock()
		if h.Page != nil {
			h.closeErr = h.Page.Close(ctx)
		}
	})
	return h.closeErr
}

// Registry maps session ids to live handles.
type Registry struct {
	logger  *zap.Logger
	mu      sync.Mutex
	handles map[string]*Handle
	now     func() time.Time
	newID   func() (string, error)
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger.Named("sessions"),
		handles: make(map[string]*Handle),
		now:     time.Now,
		newID:   generateID,
	}
}

func generateID() (string, error) {
	return gonanoid.Generate(Alphabet, IDLength)
}

// Create registers a new session and opens its browsing context with the
// session id as profile id. Lookups of the id block until the context is open.
func (r *Registry) Create(ctx context.Context, opener Opener, hostname, location string, patterns []pattern.Pattern) (*Handle, error) {
	h := &Handle{Hostname: hostname, Location: location, Patterns: patterns, now: r.now}
	h.mu.Lock()

	if err := r.reserve(h); err != nil {
		h.mu.Unlock()
		return nil, err
	}

	pctx, err := opener.Open(ctx, h.ID)
	if err != nil {
		r.Remove(h.ID)
		h.closeOnce.Do(func() {
			h.activeMu.Lock()
			h.closed = true
			h.activeMu.Unlock()
		})
		h.mu.Unlock()
		return nil, fmt.Errorf("failed to open browsing context for session %s: %w", h.ID, err)
	}
	h.Page = pctx
	h.touch()
	h.mu.Unlock()

	r.logger.Info("Session created.", zap.String("session_id", h.ID), zap.String("hostname", hostname))
	return h, nil
}

func (r *Registry) reserve(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < maxIDAttempts; i++ {
		id, err := r.newID()
		if err != nil {
			return fmt.Errorf("failed to generate session id: %w", err)
		}
		if _, taken := r.handles[id]; taken {
			continue
		}
		h.ID = id
		r.handles[id] = h
		return nil
	}
	return fmt.Errorf("failed to generate a unique session id after %d attempts", maxIDAttempts)
}

// Lookup returns the handle for id.
func (r *Registry) Lookup(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Remove drops id from the registry. It does not close the handle.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Release closes the handle and removes it.
func (r *Registry) Release(ctx context.Context, h *Handle) error {
	r.mu.Lock()
	registered := r.handles[h.ID] == h
	if registered {
		delete(r.handles, h.ID)
	}
	r.mu.Unlock()

	err := h.Close(ctx)
	if err != nil {
		r.logger.Warn("Error closing session.", zap.String("session_id", h.ID), zap.Error(err))
	}
	if registered {
		r.logger.Info("Session released.", zap.String("session_id", h.ID))
	}
	return err
}

// Len is the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Reap releases every idle session not inside a round. It returns how many were released.
func (r *Registry) Reap(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Handle
	for id, h := range r.handles {
		if !h.LastActive().Before(cutoff) {
			continue
		}
		if !h.mu.TryLock() {
			continue
		}
		delete(r.handles, id)
		idle = append(idle, h)
	}
	r.mu.Unlock()

	for _, h := range idle {
		r.logger.Info("Reaping idle session.", zap.String("session_id", h.ID), zap.Time("last_active", h.LastActive()))
		if err := h.Close(ctx); err != nil {
			r.logger.Warn("Error closing idle session.", zap.String("session_id", h.ID), zap.Error(err))
		}
		h.mu.Unlock()
	}
	return len(idle)
}

// CloseAll releases every registered session.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		all = append(all, h)
	}
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range all {
		if err := h.Close(ctx); err != nil {
			r.logger.Warn("Error closing session during shutdown.", zap.String("session_id", h.ID), zap.Error(err))
		}
	}
}
