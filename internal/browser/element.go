// internal/browser/element.go
package browser

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/middleman/internal/page"
)

const (
	jsVisible = `function() {
	const style = window.getComputedStyle(this);
	if (style.visibility === 'hidden' || style.display === 'none') return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`
	jsText      = `function() { return this.textContent || ''; }`
	jsInnerHTML = `function() { return this.innerHTML || ''; }`
	jsValue     = `function() { return this.value === undefined || this.value === null ? '' : String(this.value); }`
	jsChecked   = `function() { return this.checked === true; }`
)

// element is a node of a Session's page.
type element struct {
	s    *Session
	node *cdp.Node
}

var _ page.Element = (*element)(nil)

func (e *element) TagName() string {
	return strings.ToLower(e.node.NodeName)
}

// call runs fn with this bound to the node and decodes its return value into res.
func (e *element) call(ctx context.Context, fn string, res interface{}) error {
	actx, cancel := withTimeout(ctx, e.s.actTimeout)
	defer cancel()
	return e.s.run(actx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(fn, res,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return p.WithObjectID(obj.ObjectID)
			},
		).Do(ctx)
	}))
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.call(ctx, jsVisible, &visible)
	return visible, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, jsText, &text)
	return text, err
}

func (e *element) InnerHTML(ctx context.Context) (string, error) {
	var html string
	err := e.call(ctx, jsInnerHTML, &html)
	return html, err
}

func (e *element) Value(ctx context.Context) (string, error) {
	var value string
	err := e.call(ctx, jsValue, &value)
	return value, err
}

func (e *element) Click(ctx context.Context) error {
	actx, cancel := withTimeout(ctx, e.s.actTimeout)
	defer cancel()
	return e.s.run(actx, chromedp.MouseClickNode(e.node))
}

func (e *element) Fill(ctx context.Context, value string) error {
	actx, cancel := withTimeout(ctx, e.s.actTimeout)
	defer cancel()
	ids := []cdp.NodeID{e.node.NodeID}
	return e.s.run(actx,
		chromedp.Clear(ids, chromedp.ByNodeID),
		chromedp.SendKeys(ids, value, chromedp.ByNodeID),
	)
}

func (e *element) Check(ctx context.Context) error {
	var checked bool
	if err := e.call(ctx, jsChecked, &checked); err != nil {
		return err
	}
	if checked {
		return nil
	}
	return e.Click(ctx)
}
