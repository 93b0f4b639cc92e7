// internal/selector/selector.go
package selector

import (
	"regexp"
	"strings"
)

// framePattern recognizes "<iframe-token> <remainder>". The iframe token may
// carry attribute brackets (which can contain spaces) or be a bare tag/class token.
var framePattern = regexp.MustCompile(`^(iframe(?:[^\s\[]*\[[^\]]+\][^\s]*|[^\s]*))\s+(.+)$`)

// Parse splits a raw directive into the element selector and an optional
// frame scope. When raw carries no frame token, frame is empty.
func Parse(raw string) (sel, frame string) {
	raw = strings.TrimSpace(raw)
	m := framePattern.FindStringSubmatch(raw)
	if m == nil {
		return raw, ""
	}
	return strings.TrimSpace(m[2]), m[1]
}

// IsXPath reports whether sel should be evaluated as an XPath expression.
func IsXPath(sel string) bool {
	return strings.HasPrefix(sel, "//")
}
