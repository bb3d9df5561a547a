package capture

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Transformer turns raw body bytes into a JSON value. A Transformer may be
// supplied by the application; it runs inside a recover boundary and its
// result is normalized before masking.
type Transformer func(raw []byte) (any, error)

// DefaultTransformer decodes raw as UTF-8 JSON. Invalid UTF-8 sequences are
// replaced with U+FFFD before parsing. Numbers are kept as json.Number and
// objects as *Object.
func DefaultTransformer(raw []byte) (any, error) {
	if !utf8.Valid(raw) {
		raw = []byte(strings.ToValidUTF8(string(raw), "\uFFFD"))
	}
	return DecodeJSON(raw)
}

// Transform runs fn on raw and normalizes its result. Any error, panic or
// unencodable result is returned as a *TransformError.
func Transform(raw []byte, fn Transformer) (any, error) {
	return transform("", raw, fn, true)
}

func transform(dir Direction, raw []byte, fn Transformer, normalize bool) (v any, err error) {
	if fn == nil {
		fn = DefaultTransformer
		normalize = false
	}

	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = NewTransformError(dir, true, fmt.Errorf("%v", r))
		}
	}()

	out, err := fn(raw)
	if err != nil {
		return nil, NewTransformError(dir, false, err)
	}
	if !normalize {
		return out, nil
	}

	normalized, err := Normalize(out)
	if err != nil {
		return nil, NewTransformError(dir, false, fmt.Errorf("result is not JSON-encodable: %w", err))
	}
	return normalized, nil
}
