// internal/snapshot/snapshot.go
package snapshot

import (
	"github.com/xkilldash9x/middleman/internal/document"
)

// DefaultTitle is used when a snapshot has no <title>.
const DefaultTitle = "MIDDLEMAN"

// Snapshot is the serialized, value substituted document of the winning
// pattern for one round. It is never mutated; consumers parse their own copy.
type Snapshot struct {
	Name     string
	Priority int
	Markup   string
}

// New builds a snapshot from the distilled document.
func New(name string, priority int, doc *document.Document) (*Snapshot, error) {
	markup, err := doc.Render()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Name: name, Priority: priority, Markup: markup}, nil
}

// Equal reports whether both snapshots carry the same markup.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Markup == other.Markup
}

// Document parses a fresh, mutable copy of the markup.
func (s *Snapshot) Document() (*document.Document, error) {
	return document.Parse(s.Markup)
}

// WithMarkup returns a copy carrying different markup, as after field resolution.
func (s *Snapshot) WithMarkup(markup string) *Snapshot {
	return &Snapshot{Name: s.Name, Priority: s.Priority, Markup: markup}
}

// IsTerminal reports whether any element carries the stop marker.
func IsTerminal(doc *document.Document) bool {
	return len(doc.MustFind("[" + document.AttrStop + "]")) > 0
}

// IsTerminal parses the markup and checks for the stop marker.
func (s *Snapshot) IsTerminal() bool {
	doc, err := s.Document()
	if err != nil {
		return false
	}
	return IsTerminal(doc)
}

// Title returns the <title> text or DefaultTitle.
func Title(doc *document.Document) string {
	if t, ok := doc.Title(); ok && t != "" {
		return t
	}
	return DefaultTitle
}

// Body returns the serialized <body> of the snapshot.
func (s *Snapshot) Body() string {
	doc, err := s.Document()
	if err != nil {
		return ""
	}
	return doc.Body()
}
