// internal/document/document.go
package document

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Directive attributes recognized on pattern elements.
const (
	AttrPriority  = "gg-priority"
	AttrDomain    = "gg-domain"
	AttrMatch     = "gg-match"
	AttrMatchHTML = "gg-match-html"
	AttrOptional  = "gg-optional"
	AttrAutoclick = "gg-autoclick"
	AttrStop      = "gg-stop"
)

// DefaultPriority is used when the root carries no parseable priority.
const DefaultPriority = -1

// Document is a parsed HTML tree with typed accessors for the directive attributes.
type Document struct {
	root *html.Node
	doc  *goquery.Document
}

// Parse builds a Document from markup.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return fromNode(root), nil
}

func fromNode(root *html.Node) *Document {
	return &Document{root: root, doc: goquery.NewDocumentFromNode(root)}
}

// Clone returns a deep copy that shares no nodes with d.
func (d *Document) Clone() *Document {
	return fromNode(cloneNode(d.root))
}

func cloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneNode(child))
	}
	return c
}

// Render serializes the whole tree. It fails when the tree cannot be
// written as HTML, such as a void element holding children.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// String is Render for logs and tests; an unrenderable tree yields "".
func (d *Document) String() string {
	s, _ := d.Render()
	return s
}

// Find returns every element matching the CSS selector, in document order.
func (d *Document) Find(sel string) ([]*Element, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return wrap(d.doc.FindMatcher(m)), nil
}

// MustFind is Find for selectors known at compile time.
func (d *Document) MustFind(sel string) []*Element {
	return wrap(d.doc.FindMatcher(cascadia.MustCompile(sel)))
}

// First returns the first element matching sel, or nil.
func (d *Document) First(sel string) *Element {
	els, err := d.Find(sel)
	if err != nil || len(els) == 0 {
		return nil
	}
	return els[0]
}

// Root returns the <html> element.
func (d *Document) Root() *Element {
	return d.First("html")
}

// Priority reads the root priority. Leading '=' and spaces are ignored.
func (d *Document) Priority() int {
	root := d.Root()
	if root == nil {
		return DefaultPriority
	}
	raw, ok := root.Attr(AttrPriority)
	if !ok {
		return DefaultPriority
	}
	p, err := strconv.Atoi(strings.TrimSpace(strings.TrimLeft(raw, "= ")))
	if err != nil {
		return DefaultPriority
	}
	return p
}

// Domain reads the root domain filter.
func (d *Document) Domain() (string, bool) {
	root := d.Root()
	if root == nil {
		return "", false
	}
	domain, ok := root.Attr(AttrDomain)
	if !ok || domain == "" {
		return "", false
	}
	return domain, true
}

// Title returns the text of <title>, if any.
func (d *Document) Title() (string, bool) {
	t := d.First("title")
	if t == nil {
		return "", false
	}
	return t.Text(), true
}

// Body returns the serialized <body> element.
func (d *Document) Body() string {
	b := d.First("body")
	if b == nil {
		return ""
	}
	return b.OuterHTML()
}

// Element wraps a single node of a Document.
type Element struct {
	sel *goquery.Selection
}

func wrap(s *goquery.Selection) []*Element {
	out := make([]*Element, 0, s.Length())
	s.Each(func(_ int, item *goquery.Selection) {
		out = append(out, &Element{sel: item})
	})
	return out
}

// Tag returns the lower-case tag name.
func (e *Element) Tag() string {
	return goquery.NodeName(e.sel)
}

// Attr returns the attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// AttrOr returns the attribute value or fallback when absent.
func (e *Element) AttrOr(name, fallback string) string {
	return e.sel.AttrOr(name, fallback)
}

// Has reports whether the attribute is present, empty or not.
func (e *Element) Has(name string) bool {
	_, ok := e.sel.Attr(name)
	return ok
}

// SetAttr sets or replaces the attribute.
func (e *Element) SetAttr(name, value string) {
	e.sel.SetAttr(name, value)
}

// RemoveAttr drops the attribute.
func (e *Element) RemoveAttr(name string) {
	e.sel.RemoveAttr(name)
}

// Text returns the concatenated text of the element and its descendants.
func (e *Element) Text() string {
	return e.sel.Text()
}

// StrippedText joins every descendant text fragment with surrounding
// whitespace removed. Script and style contents are skipped.
func (e *Element) StrippedText() string {
	var b strings.Builder
	for _, n := range e.sel.Nodes {
		collectStripped(n, &b)
	}
	return b.String()
}

func collectStripped(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(n.Data))
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectStripped(c, b)
	}
}

// voidElements cannot have children.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "keygen": true, "link": true, "meta": true, "param": true, "source": true,
	"track": true, "wbr": true,
}

// IsVoid reports whether the element is a void element such as input or img.
func (e *Element) IsVoid() bool {
	return voidElements[e.Tag()]
}

// SetText replaces all children with a single text node. Void elements are
// left untouched.
func (e *Element) SetText(text string) {
	if e.IsVoid() {
		return
	}
	e.sel.SetText(text)
}

// SetInnerHTML replaces all children with the parsed markup. Void elements
// are left untouched.
func (e *Element) SetInnerHTML(markup string) {
	if e.IsVoid() {
		return
	}
	e.sel.SetHtml(markup)
}

// OuterHTML serializes the element itself.
func (e *Element) OuterHTML() string {
	s, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return s
}

// Find returns descendants of e matching sel.
func (e *Element) Find(sel string) ([]*Element, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return wrap(e.sel.FindMatcher(m)), nil
}

// Same reports whether both wrappers point at the same node.
func (e *Element) Same(other *Element) bool {
	if e == nil || other == nil || len(e.sel.Nodes) == 0 || len(other.sel.Nodes) == 0 {
		return false
	}
	return e.sel.Nodes[0] == other.sel.Nodes[0]
}
