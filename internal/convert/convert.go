// internal/convert/convert.go
package convert

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/middleman/internal/document"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// payloadSelector finds the embedded extraction rule.
const payloadSelector = `script[type="application/json"]`

// KindList makes a column collect every match instead of the first.
const KindList = "list"

// Spec is the row/column extraction rule embedded in a terminal snapshot.
type Spec struct {
	Rows    string   `json:"rows"`
	Columns []Column `json:"columns"`
}

// Column extracts one named value from each row.
type Column struct {
	Name      string `json:"name"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// Record is one converted row. Values are string, or []string for list columns.
type Record map[string]any

// Converter compiles embedded extraction rules into records.
type Converter struct {
	logger *zap.Logger
}

// NewConverter creates a Converter.
func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{logger: logger.Named("convert")}
}

// Convert looks for an extraction rule in doc and applies it to doc itself.
// ok is false when there is no rule or the rule is malformed; the cause of
// a malformed rule is logged, never returned.
func (c *Converter) Convert(doc *document.Document) (records []Record, ok bool) {
	payload := doc.First(payloadSelector)
	if payload == nil {
		return nil, false
	}
	c.logger.Info("Found a data converter.")

	records, err := Apply(doc, payload.Text())
	if err != nil {
		c.logger.Error("Conversion error.", zap.Error(err))
		return nil, false
	}
	c.logger.Info("Conversion done.", zap.Int("entries", len(records)))
	return records, true
}

// ParseSpec decodes an extraction rule.
func ParseSpec(raw string) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &spec); err != nil {
		return nil, fmt.Errorf("malformed conversion payload: %w", err)
	}
	return &spec, nil
}

// Apply decodes raw and extracts records from doc.
func Apply(doc *document.Document, raw string) ([]Record, error) {
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, err
	}

	rows, err := doc.Find(spec.Rows)
	if err != nil {
		return nil, fmt.Errorf("invalid rows selector: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{}
		for _, col := range spec.Columns {
			if col.Name == "" || col.Selector == "" {
				continue
			}
			items, err := row.Find(col.Selector)
			if err != nil {
				return nil, fmt.Errorf("invalid selector for column %s: %w", col.Name, err)
			}

			if col.Kind == KindList {
				values := make([]string, 0, len(items))
				for _, item := range items {
					values = append(values, extract(item, col.Attribute))
				}
				rec[col.Name] = values
				continue
			}
			if len(items) > 0 {
				rec[col.Name] = extract(items[0], col.Attribute)
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

func extract(el *document.Element, attribute string) string {
	if attribute == "" {
		return el.StrippedText()
	}
	v, _ := el.Attr(attribute)
	return strings.TrimSpace(v)
}
