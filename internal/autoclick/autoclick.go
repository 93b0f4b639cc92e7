// internal/autoclick/autoclick.go
package autoclick

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/document"
	"github.com/xkilldash9x/middleman/internal/page"
)

// ErrBudgetExhausted is returned once every retry of a click has timed out.
var ErrBudgetExhausted = errors.New("click budget exhausted")

// Target groups, clicked in this order.
const (
	actionSelector = "[" + document.AttrAutoclick + "]:not(button)"
	submitSelector = "button[" + document.AttrAutoclick + "], button[type=submit]"
)

// DefaultPollInterval is how often an attempt re-locates its target.
const DefaultPollInterval = 100 * time.Millisecond

// Trigger clicks the live counterparts of a snapshot's action elements.
type Trigger struct {
	logger *zap.Logger
	budget time.Duration
	step   time.Duration
	poll   time.Duration
}

// NewTrigger creates a Trigger. Each click first gets budget to find a
// visible target; every timed out attempt retries with step less.
func NewTrigger(logger *zap.Logger, budget, step time.Duration) *Trigger {
	return &Trigger{
		logger: logger.Named("autoclick"),
		budget: budget,
		step:   step,
		poll:   DefaultPollInterval,
	}
}

// WithPollInterval returns a copy polling at d.
func (t *Trigger) WithPollInterval(d time.Duration) *Trigger {
	c := *t
	c.poll = d
	return &c
}

// Targets returns the raw directives of every action element in doc:
// auto-click elements that are not buttons first, then buttons.
func Targets(doc *document.Document) []string {
	var out []string
	for _, group := range []string{actionSelector, submitSelector} {
		for _, el := range doc.MustFind(group) {
			if raw := strings.TrimSpace(el.AttrOr(document.AttrMatch, "")); raw != "" {
				out = append(out, raw)
			}
		}
	}
	return out
}

// Trigger clicks every target of doc in order. Failures of individual
// clicks are joined; cancellation stops immediately.
func (t *Trigger) Trigger(ctx context.Context, p page.Page, doc *document.Document) error {
	var errs []error
	for _, raw := range Targets(doc) {
		t.logger.Info("Clicking.", zap.String("selector", raw))
		if err := t.Click(ctx, p, raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("Click failed.", zap.String("selector", raw), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Click attempts to click the first visible element for raw. A timeout
// class failure is retried with a smaller budget until none is left; any
// other failure is returned at once.
func (t *Trigger) Click(ctx context.Context, p page.Page, raw string) error {
	budget := t.budget
	for attempt := 1; ; attempt++ {
		err := t.attempt(ctx, p, raw, budget)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTimeout(err) {
			return err
		}
		budget -= t.step
		if budget <= 0 {
			return fmt.Errorf("%w: %q after %d attempts: %w", ErrBudgetExhausted, raw, attempt, err)
		}
		t.logger.Debug("Retrying click.", zap.String("selector", raw), zap.Int("attempt", attempt+1), zap.Duration("budget", budget))
	}
}

// attempt polls for a visible target until the budget runs out.
func (t *Trigger) attempt(ctx context.Context, p page.Page, raw string, budget time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for {
		el, err := page.Resolve(actx, p, raw)
		if err == nil {
			return el.Click(actx)
		}
		if !errors.Is(err, page.ErrNoVisibleElement) {
			return err
		}

		timer := time.NewTimer(t.poll)
		select {
		case <-actx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, page.ErrNoVisibleElement) || errors.Is(err, context.DeadlineExceeded)
}
