package capture

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func mustEncode(t *testing.T, v any) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestKeyMasker_Mask(t *testing.T) {
	tests := []struct {
		name  string
		keys  []string
		input string
		want  string
	}{
		{
			name:  "nested password",
			keys:  []string{"password"},
			input: `{"user":"a","password":"x","meta":{"password":"y"}}`,
			want:  `{"user":"a","password":"***","meta":{"password":"***"}}`,
		},
		{
			name:  "case-insensitive match",
			keys:  []string{"Password"},
			input: `{"PASSWORD":"x","passWord":"y","password_hint":"z"}`,
			want:  `{"PASSWORD":"***","passWord":"***","password_hint":"z"}`,
		},
		{
			name:  "masks non-string values",
			keys:  []string{"card"},
			input: `{"card":{"number":"4111","cvv":123},"ids":[1,2]}`,
			want:  `{"card":"***","ids":[1,2]}`,
		},
		{
			name:  "walks arrays of objects",
			keys:  []string{"ssn"},
			input: `[{"ssn":"1"},{"name":"b","nested":[{"ssn":2}]}]`,
			want:  `[{"ssn":"***"},{"name":"b","nested":[{"ssn":"***"}]}]`,
		},
		{
			name:  "leaves pass through",
			keys:  []string{"secret"},
			input: `"secret"`,
			want:  `"secret"`,
		},
		{
			name:  "empty key set",
			keys:  nil,
			input: `{"password":"x"}`,
			want:  `{"password":"x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewKeyMasker(tt.keys)
			got := m.Mask(mustDecode(t, tt.input))
			assert.Equal(t, tt.want, mustEncode(t, got))
		})
	}
}

func TestKeyMasker_DoesNotMutateInput(t *testing.T) {
	input := mustDecode(t, `{"password":"x","list":[{"password":"y"}]}`)
	before := mustEncode(t, input)

	_ = NewKeyMasker([]string{"password"}).Mask(input)

	assert.Equal(t, before, mustEncode(t, input))
}

func TestKeyMasker_Idempotent(t *testing.T) {
	m := NewKeyMasker(DefaultHiddenKeys())
	inputs := []string{
		`{"password":"x","cardNumber":4111,"profile":{"ssn":"1","pwd":["a"]}}`,
		`[{"secret":{"secret":"x"}},null,1,"s"]`,
		`{"cc":null,"credit_score":[]}`,
	}

	for _, input := range inputs {
		once := m.Mask(mustDecode(t, input))
		twice := m.Mask(once)
		assert.Equal(t, mustEncode(t, once), mustEncode(t, twice))
	}
}

func TestKeyMasker_NoHiddenValueSurvives(t *testing.T) {
	keys := []string{"password", "token"}
	m := NewKeyMasker(keys)

	// Build a deeply nested document with hidden keys at every level.
	var b strings.Builder
	const depth = 50
	for i := 0; i < depth; i++ {
		b.WriteString(`{"token":"leak","data":[{"Password":{"x":1}},`)
	}
	b.WriteString(`"leaf"`)
	for i := 0; i < depth; i++ {
		b.WriteString(`]}`)
	}

	masked := m.Mask(mustDecode(t, b.String()))
	assertNoHiddenValues(t, m, masked)
	assert.NotContains(t, mustEncode(t, masked), "leak")
}

func assertNoHiddenValues(t *testing.T, m *KeyMasker, v any) {
	t.Helper()
	switch val := v.(type) {
	case *Object:
		for _, member := range val.Members() {
			if m.IsHidden(member.Key) {
				assert.Equal(t, RedactionMarker, member.Value, "key %q not masked", member.Key)
				continue
			}
			assertNoHiddenValues(t, m, member.Value)
		}
	case []any:
		for _, elem := range val {
			assertNoHiddenValues(t, m, elem)
		}
	}
}

func TestKeyMasker_GoMapsAreSorted(t *testing.T) {
	m := NewKeyMasker([]string{"secret"})
	input := map[string]any{
		"b":      1,
		"a":      []any{map[string]any{"secret": "x", "z": true}},
		"secret": "y",
	}

	got := m.Mask(input)
	assert.Equal(t, `{"a":[{"secret":"***","z":true}],"b":1,"secret":"***"}`, mustEncode(t, got))
	assert.Equal(t, "y", input["secret"])
}

func TestKeyMasker_Keys(t *testing.T) {
	m := NewKeyMasker([]string{"B", " a ", "", "b"})
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.True(t, m.IsHidden("A"))
	assert.False(t, m.IsHidden(""))

	var nilMasker *KeyMasker
	assert.False(t, nilMasker.IsHidden("a"))
	assert.Equal(t, "x", nilMasker.Mask("x"))
}
