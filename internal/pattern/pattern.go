// internal/pattern/pattern.go
package pattern

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/xkilldash9x/middleman/internal/document"
)

// Pattern is one recognition document loaded from the library.
type Pattern struct {
	// Name is the slash separated path relative to the library root.
	Name string
	Doc  *document.Document
}

// Source yields the pattern set used for a session.
type Source interface {
	Load() ([]Pattern, error)
}

// Load reads every *.html file under fsys. Files are returned in lexical
// path order, which is also the tie-break order for equal priorities.
func Load(fsys fs.FS) ([]Pattern, error) {
	var patterns []Pattern
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".html") {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read pattern %s: %w", p, err)
		}
		doc, err := document.Parse(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse pattern %s: %w", p, err)
		}
		patterns = append(patterns, Pattern{Name: p, Doc: doc})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patterns, nil
}

// Dir is a Source reading a directory on disk each time it is loaded,
// so edits to the library are picked up by the next session.
type Dir string

// Load implements Source.
func (d Dir) Load() ([]Pattern, error) {
	info, err := os.Stat(string(d))
	if err != nil {
		return nil, fmt.Errorf("pattern directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pattern path %s is not a directory", d)
	}
	return Load(os.DirFS(string(d)))
}

// Names lists pattern names in load order.
func Names(patterns []Pattern) []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	return names
}
