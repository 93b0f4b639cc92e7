// internal/autofill/autofill.go
package autofill

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/document"
	"github.com/xkilldash9x/middleman/internal/page"
	"github.com/xkilldash9x/middleman/internal/selector"
)

// Kind is a recognized input type.
type Kind string

const (
	KindText     Kind = "text"
	KindEmail    Kind = "email"
	KindTel      Kind = "tel"
	KindPassword Kind = "password"
	KindCheckbox Kind = "checkbox"
	KindRadio    Kind = "radio"
)

func (k Kind) textual() bool {
	switch k {
	case KindText, KindEmail, KindTel, KindPassword:
		return true
	}
	return false
}

// Field describes one input of a distilled snapshot.
type Field struct {
	Kind        Kind
	Name        string
	ID          string
	Selector    string // raw directive, possibly frame scoped
	Placeholder string
	Checked     bool

	el *document.Element
}

// Frame returns the frame scope of the field's directive, if any.
func (f Field) Frame() string {
	_, frame := selector.Parse(f.Selector)
	return frame
}

// Key returns the configuration key for a textual field.
func (f Field) Key(domain string) string {
	field := f.Name
	if field == "" {
		field = string(f.Kind)
	}
	if domain != "" {
		field = domain + "_" + field
	}
	return strings.ToUpper(field)
}

// Describe returns the recognized fields of doc in document order. Inputs
// lacking a match selector are reported in problems and left out.
func Describe(doc *document.Document) (fields []Field, problems []string) {
	for _, el := range doc.MustFind("input[type]") {
		kind := Kind(strings.ToLower(el.AttrOr("type", "")))
		switch kind {
		case KindText, KindEmail, KindTel, KindPassword, KindCheckbox, KindRadio:
		default:
			continue
		}

		f := Field{
			Kind:        kind,
			Name:        el.AttrOr("name", ""),
			ID:          el.AttrOr("id", ""),
			Selector:    strings.TrimSpace(el.AttrOr(document.AttrMatch, "")),
			Placeholder: el.AttrOr("placeholder", ""),
			Checked:     el.Has("checked"),
			el:          el,
		}
		if f.Name == "" {
			problems = append(problems, fmt.Sprintf("input of type %s has no name", kind))
		}
		if sel, _ := selector.Parse(f.Selector); sel == "" {
			problems = append(problems, fmt.Sprintf("input of type %s has no selector", kind))
			continue
		}
		fields = append(fields, f)
	}
	return fields, problems
}

// Prompter asks the operator for a value.
type Prompter interface {
	Text(ctx context.Context, question string) (string, error)
	Masked(ctx context.Context, question string) (string, error)
}

// ValueSource looks up configured field values by key.
type ValueSource interface {
	Lookup(key string) (string, bool)
}

// Values are caller supplied field values keyed by input name. Textual
// values are consumed once applied.
type Values map[string]string

// Result summarizes one resolution pass.
type Result struct {
	// Markup is the snapshot with resolved values recorded on its elements.
	Markup     string
	Fields     int
	Resolved   int
	Unresolved []string
}

// Complete reports whether every discovered field was resolved.
func (r Result) Complete() bool {
	return r.Resolved == r.Fields
}

// Resolver applies field values to the live page. Without a Prompter it
// relies on supplied values and the ValueSource only.
type Resolver struct {
	logger   *zap.Logger
	env      ValueSource
	prompter Prompter
	out      io.Writer
	settle   time.Duration
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEnv sets the configured value lookup.
func WithEnv(env ValueSource) Option { return func(r *Resolver) { r.env = env } }

// WithPrompter enables interactive resolution; radio choices are listed on out.
func WithPrompter(p Prompter, out io.Writer) Option {
	return func(r *Resolver) {
		r.prompter = p
		r.out = out
	}
}

// WithSettleDelay sets the pause after each applied value.
func WithSettleDelay(d time.Duration) Option { return func(r *Resolver) { r.settle = d } }

// WithSleep replaces the settle wait, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = fn }
}

// NewResolver creates a Resolver.
func NewResolver(logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		logger: logger.Named("autofill"),
		out:    io.Discard,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolve walks the fields of doc and applies values to p. doc is updated
// in place. Per field failures are reported in the result; only
// cancellation and prompt failures abort the pass.
func (r *Resolver) Resolve(ctx context.Context, p page.Page, doc *document.Document, supplied Values) (Result, error) {
	fields, problems := Describe(doc)
	for _, msg := range problems {
		r.logger.Warn("Malformed field.", zap.String("problem", msg))
	}

	domain, _ := doc.Domain()
	res := Result{Fields: len(fields)}
	groups := make(map[string]bool)

	for i, f := range fields {
		var resolved int
		var err error
		switch {
		case f.Kind.textual():
			resolved, err = r.text(ctx, p, domain, f, supplied)
		case f.Kind == KindCheckbox:
			resolved, err = r.checkbox(ctx, p, f, supplied)
		case f.Kind == KindRadio:
			if f.Name == "" {
				r.logger.Warn("Radio button without a name.", zap.String("id", f.ID))
				break
			}
			if groups[f.Name] {
				continue
			}
			groups[f.Name] = true
			resolved, err = r.radio(ctx, p, doc, fields[i:], f.Name, supplied)
		}
		if err != nil {
			return Result{}, err
		}
		if resolved == 0 {
			res.Unresolved = append(res.Unresolved, label(f))
		}
		res.Resolved += resolved
	}

	markup, err := doc.Render()
	if err != nil {
		return Result{}, err
	}
	res.Markup = markup
	return res, nil
}

func label(f Field) string {
	if f.Name != "" {
		return f.Name
	}
	if f.ID != "" {
		return f.ID
	}
	return string(f.Kind)
}

// text resolves a textual field: supplied value, then configured value, then prompt.
func (r *Resolver) text(ctx context.Context, p page.Page, domain string, f Field, supplied Values) (int, error) {
	key := f.Key(domain)
	value, ok := "", false

	if f.Name != "" {
		if v := supplied[f.Name]; v != "" {
			value, ok = v, true
			delete(supplied, f.Name)
			r.logger.Info("Using supplied value.", zap.String("field", f.Name))
		}
	}
	if !ok && r.env != nil {
		if v, found := r.env.Lookup(key); found && v != "" {
			value, ok = v, true
			r.logger.Info("Using configured value.", zap.String("key", key), zap.String("field", label(f)))
		}
	}
	if !ok && r.prompter != nil {
		question := f.Placeholder
		if question == "" {
			question = "Please enter " + label(f)
		}
		var err error
		if f.Kind == KindPassword {
			value, err = r.prompter.Masked(ctx, question)
		} else {
			value, err = r.prompter.Text(ctx, question)
		}
		if err != nil {
			return 0, fmt.Errorf("prompt for %s failed: %w", label(f), err)
		}
		ok = true
	}
	if !ok {
		r.logger.Info("No value available for field.", zap.String("field", label(f)))
		return 0, nil
	}

	if err := page.Fill(ctx, p, f.Selector, value); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.logger.Warn("Could not fill field.", zap.String("field", label(f)), zap.Error(err))
		return 0, nil
	}
	f.el.SetAttr("value", value)
	return 1, r.sleep(ctx, r.settle)
}

// checkbox always resolves. Interactively the pattern's checked flag decides;
// otherwise a non-empty supplied value for the name does.
func (r *Resolver) checkbox(ctx context.Context, p page.Page, f Field, supplied Values) (int, error) {
	want := supplied[f.Name] != "" && f.Name != ""
	if r.prompter != nil {
		want = want || f.Checked
	} else if f.Name == "" {
		r.logger.Warn("Checkbox without a name.", zap.String("selector", f.Selector))
		return 0, nil
	}
	r.logger.Debug("Checkbox status.", zap.String("field", label(f)), zap.Bool("checked", want))
	if !want {
		f.el.RemoveAttr("checked")
		return 1, nil
	}

	if err := page.Check(ctx, p, f.Selector); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.logger.Warn("Could not check checkbox.", zap.String("field", label(f)), zap.Error(err))
		return 0, nil
	}
	f.el.SetAttr("checked", "checked")
	return 1, r.sleep(ctx, r.settle)
}

type choice struct {
	field Field
	label string
}

// radio resolves one group and returns how many of its inputs count as resolved.
func (r *Resolver) radio(ctx context.Context, p page.Page, doc *document.Document, rest []Field, name string, supplied Values) (int, error) {
	var choices []choice
	for _, f := range rest {
		if f.Kind != KindRadio || f.Name != name {
			continue
		}
		text := f.ID
		if f.ID != "" {
			if l := doc.First(fmt.Sprintf("label[for=%q]", f.ID)); l != nil {
				if t := strings.TrimSpace(l.Text()); t != "" {
					text = t
				}
			}
		}
		choices = append(choices, choice{field: f, label: text})
	}

	picked := -1
	if id := supplied[name]; id != "" {
		for i, c := range choices {
			if c.field.ID == id {
				picked = i
				break
			}
		}
		if picked < 0 {
			r.logger.Warn("No radio button with the supplied id.", zap.String("group", name), zap.String("id", id))
			return 0, nil
		}
	} else if r.prompter != nil {
		var err error
		if picked, err = r.ask(ctx, choices); err != nil {
			return 0, err
		}
	} else {
		r.logger.Info("No value available for radio group.", zap.String("group", name))
		return 0, nil
	}

	chosen := choices[picked]
	r.logger.Info("Choosing radio option.", zap.String("group", name), zap.String("label", chosen.label))
	if err := page.Check(ctx, p, chosen.field.Selector); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.logger.Warn("Could not select radio option.", zap.String("group", name), zap.Error(err))
		return 0, nil
	}
	for _, c := range choices {
		c.field.el.RemoveAttr("checked")
	}
	chosen.field.el.SetAttr("checked", "checked")
	return len(choices), r.sleep(ctx, r.settle)
}

// ask lists the choices and reads a 1-based selection until it is in range.
func (r *Resolver) ask(ctx context.Context, choices []choice) (int, error) {
	fmt.Fprintln(r.out)
	for i, c := range choices {
		fmt.Fprintf(r.out, " %d. %s\n", i+1, c.label)
	}
	for {
		answer, err := r.prompter.Text(ctx, fmt.Sprintf("Your choice (1-%d)", len(choices)))
		if err != nil {
			return 0, fmt.Errorf("radio prompt failed: %w", err)
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(answer))
		if convErr == nil && n >= 1 && n <= len(choices) {
			return n - 1, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
}
