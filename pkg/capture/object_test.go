package capture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON_PreservesOrder(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"zeta":1,"alpha":{"y":true,"x":null},"mid":[1.5,"s"]}`))
	require.NoError(t, err)

	obj, ok := v.(*Object)
	require.True(t, ok, "expected *Object, got %T", v)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	zeta, _ := obj.Get("zeta")
	assert.Equal(t, json.Number("1"), zeta)

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":{"y":true,"x":null},"mid":[1.5,"s"]}`, string(out))
}

func TestDecodeJSON_Scalars(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{`"text"`, "text"},
		{`42`, json.Number("42")},
		{`true`, true},
		{`null`, nil},
		{`[]`, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DecodeJSON([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`{"a":}`,
		`{} {}`,
		`[1,2`,
		`plain text`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := DecodeJSON([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestObject_DuplicateKeysKeepFirstPosition(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, string(out))
}

func TestObject_UnmarshalJSON(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":2}`), &obj))
	assert.Equal(t, []string{"b", "a"}, obj.Keys())

	var notObj Object
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &notObj))
}

func TestNormalize(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	v, err := Normalize(payload{Name: "x", Count: 3})
	require.NoError(t, err)

	obj, ok := v.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "count"}, obj.Keys())

	_, err = Normalize(make(chan int))
	assert.Error(t, err)

	_, err = Normalize(map[string]any{"f": func() {}})
	assert.Error(t, err)
}
