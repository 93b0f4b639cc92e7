// internal/page/pagetest/pagetest.go

// Package pagetest provides an in-memory page.Page for tests. Visibility
// follows the hidden attribute, input type=hidden and inline display:none
// on the element or any ancestor.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/xkilldash9x/middleman/internal/page"
	"github.com/xkilldash9x/middleman/internal/selector"
)

// Action records one mutation performed through the fake.
type Action struct {
	Kind     string // "fill", "check" or "click"
	Selector string
	Frame    string
	Value    string
}

// Page is a fake live page.
type Page struct {
	mu        sync.Mutex
	doc       *goquery.Document
	frames    map[string]*goquery.Document
	pages     map[string]string
	hooks     map[string]func(*Page)
	locateErr map[string]error
	clickErr  map[string]error
	locates   map[string]int
	actions   []Action
	visited   []string
}

var _ page.Page = (*Page)(nil)

// New builds a fake whose main document is markup.
func New(markup string) *Page {
	p := &Page{
		frames:    make(map[string]*goquery.Document),
		pages:     make(map[string]string),
		hooks:     make(map[string]func(*Page)),
		locateErr: make(map[string]error),
		clickErr:  make(map[string]error),
		locates:   make(map[string]int),
	}
	p.doc = mustDoc(markup)
	return p
}

func mustDoc(markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("pagetest: bad markup: %v", err))
	}
	return doc
}

// SetHTML replaces the main document, as a navigation would.
func (p *Page) SetHTML(markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = mustDoc(markup)
}

// HTML serializes the current main document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, _ := p.doc.Html()
	return s
}

// SetFrame registers the document reachable through the frame selector.
func (p *Page) SetFrame(frame, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[frame] = mustDoc(markup)
}

// AddPage makes Navigate(url) load markup.
func (p *Page) AddPage(url, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[url] = markup
}

// OnClick runs fn after an element located with sel is clicked.
func (p *Page) OnClick(sel string, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[sel] = fn
}

// FailLocate makes every Locate of sel return err.
func (p *Page) FailLocate(sel string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locateErr[sel] = err
}

// FailClick makes clicks on elements located with sel return err.
func (p *Page) FailClick(sel string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickErr[sel] = err
}

// Actions returns a copy of the recorded mutations.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

// ActionsOf filters the recorded mutations by kind.
func (p *Page) ActionsOf(kind string) []Action {
	var out []Action
	for _, a := range p.Actions() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// LocateCount is how many times sel was located.
func (p *Page) LocateCount(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locates[sel]
}

// Visited lists navigated URLs in order.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Navigate implements page.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	if markup, ok := p.pages[url]; ok {
		p.doc = mustDoc(markup)
	}
	return nil
}

// Locate implements page.Page.
func (p *Page) Locate(ctx context.Context, sel, frame string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.locates[sel]++
	if err, ok := p.locateErr[sel]; ok {
		return nil, err
	}
	if selector.IsXPath(sel) {
		return nil, fmt.Errorf("pagetest: xpath %q not supported", sel)
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, err
	}

	doc := p.doc
	if frame != "" {
		var ok bool
		if doc, ok = p.frames[frame]; !ok {
			return nil, nil
		}
	}

	var out []page.Element
	doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{page: p, sel: sel, frame: frame, s: s})
	})
	return out, nil
}

type element struct {
	page  *Page
	sel   string
	frame string
	s     *goquery.Selection
}

func (e *element) TagName() string {
	return goquery.NodeName(e.s)
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	if goquery.NodeName(e.s) == "input" && strings.EqualFold(e.s.AttrOr("type", ""), "hidden") {
		return false, nil
	}
	for cur := e.s; cur.Length() > 0; cur = cur.Parent() {
		if _, hidden := cur.Attr("hidden"); hidden {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(cur.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.s.Text(), nil
}

func (e *element) InnerHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.s.Html()
}

func (e *element) Value(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if goquery.NodeName(e.s) == "textarea" {
		return e.s.AttrOr("value", e.s.Text()), nil
	}
	return e.s.AttrOr("value", ""), nil
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.s.SetAttr("value", value)
	e.page.actions = append(e.page.actions, Action{Kind: "fill", Selector: e.sel, Frame: e.frame, Value: value})
	return nil
}

func (e *element) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.setChecked(true)
	e.page.actions = append(e.page.actions, Action{Kind: "check", Selector: e.sel, Frame: e.frame})
	return nil
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	if err, ok := e.page.clickErr[e.sel]; ok {
		e.page.mu.Unlock()
		return err
	}
	switch strings.ToLower(e.s.AttrOr("type", "")) {
	case "checkbox":
		_, checked := e.s.Attr("checked")
		e.setChecked(!checked)
	case "radio":
		e.setChecked(true)
	}
	e.page.actions = append(e.page.actions, Action{Kind: "click", Selector: e.sel, Frame: e.frame})
	hook := e.page.hooks[e.sel]
	e.page.mu.Unlock()

	if hook != nil {
		hook(e.page)
	}
	return nil
}

// setChecked must be called with the page lock held.
func (e *element) setChecked(on bool) {
	if !on {
		e.s.RemoveAttr("checked")
		return
	}
	if strings.EqualFold(e.s.AttrOr("type", ""), "radio") {
		if name, ok := e.s.Attr("name"); ok {
			root := e.s.Closest("html")
			root.Find("input[type=radio]").Each(func(_ int, r *goquery.Selection) {
				if r.AttrOr("name", "") == name {
					r.RemoveAttr("checked")
				}
			})
		}
	}
	e.s.SetAttr("checked", "checked")
}
