// internal/distill/distill.go
package distill

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/document"
	"github.com/xkilldash9x/middleman/internal/page"
	"github.com/xkilldash9x/middleman/internal/pattern"
	"github.com/xkilldash9x/middleman/internal/snapshot"
)

// ErrNoMatch means no pattern qualified this round. Callers retry on the next tick.
var ErrNoMatch = errors.New("no pattern matched")

// Match is the winning pattern of a distillation pass.
type Match struct {
	Snapshot *snapshot.Snapshot
	// Live holds one element per required target, in target order.
	Live []page.Element
	// Resolved counts every target that resolved, optional ones included.
	Resolved int
}

// Matcher picks the best fitting pattern for the live page.
type Matcher struct {
	logger *zap.Logger
	debug  bool
}

// NewMatcher creates a Matcher. With debug set every skipped pattern and
// unresolved target is logged.
func NewMatcher(logger *zap.Logger, debug bool) *Matcher {
	return &Matcher{logger: logger.Named("distill"), debug: debug}
}

type target struct {
	el       *document.Element
	raw      string
	html     bool
	optional bool
}

type candidate struct {
	name     string
	priority int
	snap     *snapshot.Snapshot
	live     []page.Element
	resolved int
}

// Distill evaluates every pattern against p in order and returns the
// qualifying one with the lowest priority. Ties go to the earlier pattern.
func (m *Matcher) Distill(ctx context.Context, hostname string, p page.Page, patterns []pattern.Pattern) (*Match, error) {
	var qualified []*candidate

	for _, pat := range patterns {
		priority := pat.Doc.Priority()
		if domain, ok := pat.Doc.Domain(); ok && !domainMatches(domain, hostname) {
			if m.debug {
				m.logger.Debug("Skipping pattern due to mismatched domain.",
					zap.String("pattern", pat.Name), zap.String("domain", domain), zap.String("hostname", hostname))
			}
			continue
		}

		m.logger.Debug("Checking pattern.", zap.String("pattern", pat.Name), zap.Int("priority", priority))
		c, ok, err := m.evaluate(ctx, p, pat, priority)
		if err != nil {
			return nil, err
		}
		if ok {
			qualified = append(qualified, c)
		}
	}

	if len(qualified) == 0 {
		if m.debug {
			m.logger.Debug("No matches found.")
		}
		return nil, ErrNoMatch
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].priority < qualified[j].priority
	})
	if m.debug {
		for _, c := range qualified {
			m.logger.Debug("Qualified pattern.", zap.String("pattern", c.name), zap.Int("priority", c.priority))
		}
	}

	best := qualified[0]
	m.logger.Info("Best match.", zap.String("pattern", best.name), zap.Int("priority", best.priority))
	return &Match{
		Snapshot: best.snap,
		Live:     best.live,
		Resolved: best.resolved,
	}, nil
}

// evaluate resolves all targets of a fresh copy of the pattern. Resolution
// continues past a failed required target so the debug output is complete.
func (m *Matcher) evaluate(ctx context.Context, p page.Page, pat pattern.Pattern, priority int) (*candidate, bool, error) {
	doc := pat.Doc.Clone()
	c := &candidate{name: pat.Name, priority: priority}
	found := true

	for _, t := range collectTargets(doc) {
		if t.raw == "" {
			continue
		}

		live, err := page.Resolve(ctx, p, t.raw)
		if err == nil {
			err = substitute(ctx, t, live)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			if !t.optional {
				found = false
			}
			if m.debug {
				m.logger.Debug("Selector has no match.",
					zap.String("pattern", pat.Name), zap.String("selector", t.raw),
					zap.Bool("optional", t.optional), zap.Error(err))
			}
			continue
		}

		c.resolved++
		if !t.optional {
			c.live = append(c.live, live)
		}
	}

	if !found || c.resolved == 0 {
		return c, false, nil
	}

	snap, err := snapshot.New(pat.Name, priority, doc)
	if err != nil {
		m.logger.Debug("Pattern does not render after substitution.", zap.String("pattern", pat.Name), zap.Error(err))
		return c, false, nil
	}
	c.snap = snap
	return c, true, nil
}

// collectTargets returns match targets first, then match-html targets, each
// in document order. An element carrying both directives is a match-html target.
func collectTargets(doc *document.Document) []target {
	var targets []target
	for _, el := range doc.MustFind("[" + document.AttrMatch + "]:not([" + document.AttrMatchHTML + "])") {
		targets = append(targets, target{
			el:       el,
			raw:      strings.TrimSpace(el.AttrOr(document.AttrMatch, "")),
			optional: el.Has(document.AttrOptional),
		})
	}
	for _, el := range doc.MustFind("[" + document.AttrMatchHTML + "]") {
		targets = append(targets, target{
			el:       el,
			raw:      strings.TrimSpace(el.AttrOr(document.AttrMatchHTML, "")),
			html:     true,
			optional: el.Has(document.AttrOptional),
		})
	}
	return targets
}

func substitute(ctx context.Context, t target, live page.Element) error {
	if t.html {
		inner, err := live.InnerHTML(ctx)
		if err != nil {
			return err
		}
		t.el.SetInnerHTML(inner)
		return nil
	}

	text, err := live.Text(ctx)
	if err != nil {
		return err
	}
	// Whitespace-only text still clears the placeholder.
	if text != "" {
		t.el.SetText(strings.TrimSpace(text))
	}
	switch live.TagName() {
	case "input", "textarea", "select":
		value, err := live.Value(ctx)
		if err != nil {
			return err
		}
		t.el.SetAttr("value", value)
	}
	return nil
}

// domainMatches applies the case-insensitive substring filter. An empty or
// loopback hostname bypasses it.
func domainMatches(domain, hostname string) bool {
	if hostname == "" || isLoopback(hostname) {
		return true
	}
	return strings.Contains(strings.ToLower(hostname), strings.ToLower(domain))
}

func isLoopback(hostname string) bool {
	h := strings.ToLower(strings.Trim(hostname, "[]"))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
