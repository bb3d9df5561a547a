package logging

import (
	"context"
	"log/slog"
	"regexp"

	"mercator-hq/tap/pkg/capture"
)

var bearerToken = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// Redactor masks sensitive log attributes.
type Redactor struct {
	masker *capture.KeyMasker
}

// NewRedactor returns a redactor hiding the given keys, or the default
// hidden keys when keys is empty.
func NewRedactor(keys []string) *Redactor {
	if len(keys) == 0 {
		keys = capture.DefaultHiddenKeys()
	}
	keys = append(append([]string{}, keys...), capture.DefaultSensitiveHeaders()...)
	return &Redactor{masker: capture.NewKeyMasker(keys)}
}

// RedactString replaces bearer tokens in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	return bearerToken.ReplaceAllString(value, "Bearer "+capture.RedactionMarker)
}

// RedactAttr masks a hidden key's value and scrubs string values. Groups
// are redacted recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r.masker.IsHidden(a.Key) {
		return slog.String(a.Key, capture.RedactionMarker)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		attrs := v.Group()
		redacted := make([]any, len(attrs))
		for i, ga := range attrs {
			redacted[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, redacted...)
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// RedactingHandler is a slog.Handler that redacts attributes before passing
// records to the next handler.
type RedactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, redactor: redactor}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.RedactString(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactor.RedactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
