// internal/flow/flow.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/autoclick"
	"github.com/xkilldash9x/middleman/internal/autofill"
	"github.com/xkilldash9x/middleman/internal/config"
	"github.com/xkilldash9x/middleman/internal/convert"
	"github.com/xkilldash9x/middleman/internal/distill"
	"github.com/xkilldash9x/middleman/internal/observability"
	"github.com/xkilldash9x/middleman/internal/pattern"
	"github.com/xkilldash9x/middleman/internal/session"
	"github.com/xkilldash9x/middleman/internal/snapshot"
)

var (
	// ErrTimeout means the iteration budget ran out before a terminal snapshot.
	ErrTimeout = errors.New("timeout reached")
	// ErrUnknownSession means no live session has the requested id.
	ErrUnknownSession = errors.New("invalid session id")
	// ErrMissingLocation means a session was started without a location.
	ErrMissingLocation = errors.New("location is required")
)

const releaseTimeout = 10 * time.Second

// State is where a round left its session.
type State string

const (
	StateTerminal      State = "terminal"
	StateAwaitingInput State = "awaiting_input"
)

// Outcome is what a round hands back to its caller.
type Outcome struct {
	State     State
	SessionID string
	Snapshot  *snapshot.Snapshot
	Title     string
	// Body is the serialized snapshot body, set unless Records is.
	Body string
	// Records holds the conversion result of a terminal snapshot.
	Records []convert.Record
	// Unresolved names the fields still waiting for input.
	Unresolved []string
}

// Converted reports whether the outcome carries records instead of markup.
func (o *Outcome) Converted() bool {
	return len(o.Records) > 0
}

// Pauser waits for the operator.
type Pauser interface {
	Pause(ctx context.Context) error
}

// Engine runs the session state machine.
type Engine struct {
	logger    *zap.Logger
	cfg       config.SessionConfig
	registry  *session.Registry
	opener    session.Opener
	patterns  pattern.Source
	matcher   *distill.Matcher
	trigger   *autoclick.Trigger
	converter *convert.Converter
	env       autofill.ValueSource
	prompter  autofill.Prompter
	pauser    Pauser
	out       io.Writer
	sleep     func(context.Context, time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnv sets where unattended rounds look up field values.
func WithEnv(env autofill.ValueSource) Option { return func(e *Engine) { e.env = env } }

// WithPrompter lets unattended rounds ask for missing values. Radio choices are listed on out.
func WithPrompter(p autofill.Prompter, out io.Writer) Option {
	return func(e *Engine) {
		e.prompter = p
		e.out = out
	}
}

// WithPauser waits for the operator after launch and before close when
// pausing is configured.
func WithPauser(p Pauser) Option { return func(e *Engine) { e.pauser = p } }

// WithMatcher replaces the default Matcher.
func WithMatcher(m *distill.Matcher) Option { return func(e *Engine) { e.matcher = m } }

// WithTrigger replaces the default click Trigger.
func WithTrigger(t *autoclick.Trigger) Option { return func(e *Engine) { e.trigger = t } }

// WithSleep replaces every wait of the engine, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine creates an Engine. Patterns are reloaded from source for every new session.
func NewEngine(logger *zap.Logger, cfg config.SessionConfig, registry *session.Registry, opener session.Opener, source pattern.Source, opts ...Option) *Engine {
	logger = logger.Named("flow")
	e := &Engine{
		logger:    logger,
		cfg:       cfg,
		registry:  registry,
		opener:    opener,
		patterns:  source,
		matcher:   distill.NewMatcher(logger, false),
		trigger:   autoclick.NewTrigger(logger, cfg.ClickBudget, cfg.ClickStep),
		converter: convert.NewConverter(logger),
		out:       io.Discard,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// normalizeLocation defaults a bare location to https and extracts its hostname.
func normalizeLocation(location string) (string, string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", "", ErrMissingLocation
	}
	if !strings.HasPrefix(location, "http") && !strings.HasPrefix(location, "file:") {
		location = "https://" + location
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid location %q: %w", location, err)
	}
	return location, u.Hostname(), nil
}

// Start opens a session for location and navigates to it.
func (e *Engine) Start(ctx context.Context, location string) (*session.Handle, error) {
	location, hostname, err := normalizeLocation(location)
	if err != nil {
		return nil, err
	}

	patterns, err := e.patterns.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	h, err := e.registry.Create(ctx, e.opener, hostname, location, patterns)
	if err != nil {
		return nil, err
	}

	h.Lock()
	err = h.Page.Navigate(ctx, location)
	h.Unlock()
	if err != nil {
		e.release(ctx, h)
		return nil, err
	}

	observability.ForSession(e.logger, h.ID, h.Hostname).Info("Session started.",
		observability.Location(location), zap.Int("patterns", len(patterns)))
	return h, nil
}

// Round runs one externally driven round on session id. Fields are only
// resolved from supplied; the round returns as soon as input is missing.
func (e *Engine) Round(ctx context.Context, id string, supplied map[string]string) (*Outcome, error) {
	h, ok := e.registry.Lookup(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	h.Lock()
	defer h.Unlock()
	if h.Closed() {
		return nil, ErrUnknownSession
	}

	values := make(autofill.Values, len(supplied))
	for k, v := range supplied {
		values[k] = v
	}

	resolver := autofill.NewResolver(e.logger,
		autofill.WithSettleDelay(e.cfg.SettleDelay),
		autofill.WithSleep(e.sleep),
	)
	out, err := e.loop(ctx, h, resolver, values, true)
	if errors.Is(err, ErrTimeout) || (err == nil && out.State == StateTerminal) {
		e.release(ctx, h)
	}
	return out, err
}

// Run drives a session for location until it terminates, resolving fields
// from the environment or the prompter. The session is always released.
func (e *Engine) Run(ctx context.Context, location string) (*Outcome, error) {
	h, err := e.Start(ctx, location)
	if err != nil {
		return nil, err
	}
	defer e.release(ctx, h)
	e.pause(ctx)

	opts := []autofill.Option{
		autofill.WithEnv(e.env),
		autofill.WithSettleDelay(e.cfg.SettleDelay),
		autofill.WithSleep(e.sleep),
	}
	if e.prompter != nil {
		opts = append(opts, autofill.WithPrompter(e.prompter, e.out))
	}
	resolver := autofill.NewResolver(e.logger, opts...)

	h.Lock()
	out, err := e.loop(ctx, h, resolver, autofill.Values{}, false)
	h.Unlock()

	e.pause(ctx)
	return out, err
}

func (e *Engine) pause(ctx context.Context) {
	if !e.cfg.Pause || e.pauser == nil {
		return
	}
	if err := e.pauser.Pause(ctx); err != nil {
		e.logger.Debug("Pause interrupted.", zap.Error(err))
	}
}

// loop runs iterations until a terminal snapshot, missing input in the
// external flow, or the budget runs out. The caller holds the handle lock
// and releases the session when the loop ends it.
func (e *Engine) loop(ctx context.Context, h *session.Handle, resolver *autofill.Resolver, values autofill.Values, external bool) (*Outcome, error) {
	logger := observability.ForSession(e.logger, h.ID, h.Hostname)
	var previous *snapshot.Snapshot

	for i := 1; i <= e.cfg.Iterations(); i++ {
		if err := e.sleep(ctx, e.cfg.Tick); err != nil {
			return nil, err
		}
		rlog := observability.ForRound(logger, i)

		match, err := e.matcher.Distill(ctx, h.Hostname, h.Page, h.Patterns)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, distill.ErrNoMatch) {
				rlog.Warn("Distillation failed.", zap.Error(err))
			} else {
				rlog.Debug("No match this round.")
			}
			continue
		}

		snap := match.Snapshot
		if snap.Equal(previous) {
			rlog.Debug("Snapshot unchanged.", observability.Pattern(snap.Name))
			continue
		}
		previous = snap

		doc, err := snap.Document()
		if err != nil {
			rlog.Warn("Could not parse snapshot.", zap.Error(err))
			continue
		}

		if snapshot.IsTerminal(doc) {
			rlog.Info("Terminal snapshot reached.", observability.Pattern(snap.Name))
			out := &Outcome{
				State:     StateTerminal,
				SessionID: h.ID,
				Snapshot:  snap,
				Title:     snapshot.Title(doc),
			}
			if records, ok := e.converter.Convert(doc); ok && len(records) > 0 {
				out.Records = records
			} else {
				out.Body = doc.Body()
			}
			return out, nil
		}

		res, err := resolver.Resolve(ctx, h.Page, doc, values)
		if err != nil {
			return nil, err
		}
		// A page still processing its submit distills to the filled form.
		previous = snap.WithMarkup(res.Markup)
		targets := autoclick.Targets(doc)
		rlog.Debug("Fields resolved.",
			zap.Int("fields", res.Fields), zap.Int("resolved", res.Resolved), zap.Int("targets", len(targets)))

		if (res.Fields > 0 && res.Complete()) || (res.Fields == 0 && len(targets) > 0) {
			if err := e.trigger.Trigger(ctx, h.Page, doc); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				rlog.Warn("Some actions failed.", zap.Error(err))
			}
			continue
		}

		if external && res.Fields > 0 {
			rlog.Info("Waiting for input.", zap.Strings("unresolved", res.Unresolved))
			return &Outcome{
				State:      StateAwaitingInput,
				SessionID:  h.ID,
				Snapshot:   snap.WithMarkup(res.Markup),
				Title:      snapshot.Title(doc),
				Body:       doc.Body(),
				Unresolved: res.Unresolved,
			}, nil
		}
	}

	logger.Warn("Iteration budget exhausted.", zap.Int("iterations", e.cfg.Iterations()))
	return nil, ErrTimeout
}

// release closes the session even when ctx is already done.
func (e *Engine) release(ctx context.Context, h *session.Handle) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	_ = e.registry.Release(rctx, h)
}
