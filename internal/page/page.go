// internal/page/page.go
package page

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/middleman/internal/selector"
)

// ErrNoVisibleElement is returned when a selector matches nothing currently visible.
var ErrNoVisibleElement = errors.New("no visible element")

// Element is a handle to a node of the live page.
type Element interface {
	TagName() string
	Visible(ctx context.Context) (bool, error)
	// Text is the rendered text content, untrimmed.
	Text(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	// Value is the current form value for inputs, textareas and selects.
	Value(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	// Fill clears the field and types value into it.
	Fill(ctx context.Context, value string) error
	// Check makes a checkbox or radio checked, leaving it alone if it already is.
	Check(ctx context.Context) error
}

// Page is the live page automation capability a session drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Locate returns every element matching sel, optionally scoped to the
	// first iframe matching frame. A selector starting with "//" is XPath.
	Locate(ctx context.Context, sel, frame string) ([]Element, error)
}

// Resolve parses a raw directive, locates its candidates and returns the
// first visible one.
func Resolve(ctx context.Context, p Page, raw string) (Element, error) {
	sel, frame := selector.Parse(raw)
	if sel == "" {
		return nil, fmt.Errorf("empty selector")
	}
	els, err := p.Locate(ctx, sel, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to locate %q: %w", raw, err)
	}
	for _, el := range els {
		visible, err := el.Visible(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if visible {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w for %q", ErrNoVisibleElement, raw)
}

// Fill resolves raw and types value into it.
func Fill(ctx context.Context, p Page, raw, value string) error {
	el, err := Resolve(ctx, p, raw)
	if err != nil {
		return err
	}
	return el.Fill(ctx, value)
}

// Check resolves raw and checks it.
func Check(ctx context.Context, p Page, raw string) error {
	el, err := Resolve(ctx, p, raw)
	if err != nil {
		return err
	}
	return el.Check(ctx)
}
