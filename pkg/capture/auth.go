package capture

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaskAuthHeader redacts the credentials of an Authorization header value.
//
// The scheme, meaning everything before the first whitespace, is kept together
// with that whitespace character, and the rest becomes RedactionMarker:
//
//	"Bearer abc123"    → "Bearer ***"
//	"opaque-no-scheme" → "***"
//
// An empty value is returned unchanged. When enabled is false the value is
// returned unchanged.
func MaskAuthHeader(value string, enabled bool) string {
	if !enabled || value == "" {
		return value
	}

	idx := strings.IndexFunc(value, unicode.IsSpace)
	if idx <= 0 {
		return RedactionMarker
	}

	_, size := utf8.DecodeRuneInString(value[idx:])
	return value[:idx+size] + RedactionMarker
}
