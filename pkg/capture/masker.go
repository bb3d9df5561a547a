package capture

import (
	"sort"
	"strings"
)

// RedactionMarker replaces every masked value.
const RedactionMarker = "***"

// DefaultHiddenKeys returns the keys masked when none are configured.
func DefaultHiddenKeys() []string {
	return []string{
		"password",
		"pwd",
		"secret",
		"password_confirmation",
		"passwordConfirmation",
		"cc",
		"card_number",
		"cardNumber",
		"ccv",
		"ssn",
		"credit_score",
		"creditScore",
		"authorization",
	}
}

// KeyMasker replaces the values of hidden keys anywhere in a decoded body.
// Keys match case-insensitively and exactly. A KeyMasker is safe for
// concurrent use.
type KeyMasker struct {
	keys map[string]struct{}
}

// NewKeyMasker returns a masker for the given keys. Blank keys are ignored.
func NewKeyMasker(keys []string) *KeyMasker {
	m := &KeyMasker{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		m.keys[k] = struct{}{}
	}
	return m
}

// IsHidden reports whether key is one of the hidden keys.
func (m *KeyMasker) IsHidden(key string) bool {
	if m == nil || len(m.keys) == 0 {
		return false
	}
	_, ok := m.keys[strings.ToLower(key)]
	return ok
}

// Keys returns the lower-cased hidden keys in sorted order.
func (m *KeyMasker) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mask returns a copy of v in which every mapping entry under a hidden key
// holds RedactionMarker, whatever its original type. Sequences are walked
// element by element and leaves are returned as is. v is never modified.
//
// map[string]any values are returned as *Object with sorted keys so that the
// output is deterministic.
func (m *KeyMasker) Mask(v any) any {
	if m == nil || len(m.keys) == 0 {
		return v
	}
	return m.mask(v)
}

func (m *KeyMasker) mask(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return t
		}
		out := &Object{members: make([]Member, 0, len(t.members))}
		for _, member := range t.members {
			out.members = append(out.members, m.maskMember(member.Key, member.Value))
		}
		return out

	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := &Object{members: make([]Member, 0, len(t))}
		for _, k := range keys {
			out.members = append(out.members, m.maskMember(k, t[k]))
		}
		return out

	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = m.mask(elem)
		}
		return out

	default:
		return v
	}
}

func (m *KeyMasker) maskMember(key string, value any) Member {
	if m.IsHidden(key) {
		return Member{Key: key, Value: RedactionMarker}
	}
	return Member{Key: key, Value: m.mask(value)}
}
