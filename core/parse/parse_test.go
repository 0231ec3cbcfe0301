package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestParseStringAs_String(t *testing.T) {
	got, err := ParseStringAs[string]("  keep me as is\n")
	require.NoError(t, err)
	assert.Equal(t, "  keep me as is\n", got)

	got, err = ParseStringAs[string](`{"type": "string", "value": "hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestParseStringAs_Scalars(t *testing.T) {
	b, err := ParseStringAs[bool](" true ")
	require.NoError(t, err)
	assert.True(t, b)

	n, err := ParseStringAs[int]("```\n42\n```")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	i8, err := ParseStringAs[int8](`"-7"`)
	require.NoError(t, err)
	assert.Equal(t, int8(-7), i8)

	u, err := ParseStringAs[uint16]("65535")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), u)

	f, err := ParseStringAs[float64]("3.25")
	require.NoError(t, err)
	assert.InDelta(t, 3.25, f, 1e-9)

	_, err = ParseStringAs[int]("forty-two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse: content as int")

	_, err = ParseStringAs[int8]("300")
	require.Error(t, err)

	_, err = ParseStringAs[uint]("-1")
	require.Error(t, err)
}

func TestParseStringAs_SchemaWrappedScalars(t *testing.T) {
	n, err := ParseStringAs[int](`{"type": "integer", "value": 42}`)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := ParseStringAs[bool](`{"type": "boolean", "value": false}`)
	require.NoError(t, err)
	assert.False(t, b)

	f, err := ParseStringAs[float32](`{"type": "number", "value": "1.5"}`)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-6)

	_, err = ParseStringAs[int](`{"type": "integer", "value": 1, "extra": true}`)
	require.Error(t, err)
}

func TestParseStringAs_Structured(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  person
	}{
		{"plain", `{"name":"John","age":30}`, person{"John", 30}},
		{"whitespace", "\n\t {\"name\":\"Ann\",\"age\":5}  ", person{"Ann", 5}},
		{"code fence", "```json\n{\"name\":\"Bo\",\"age\":7}\n```", person{"Bo", 7}},
		{"fence without tag", "```\n{\"name\":\"Cy\",\"age\":8}\n```", person{"Cy", 8}},
		{"prose around", `Sure! The answer is {"name":"Di","age":40}. Anything else?`, person{"Di", 40}},
		{"fence inside prose", "Here you go:\n```json\n{\"name\":\"Ed\",\"age\":2}\n```\nEnjoy.", person{"Ed", 2}},
		{"first of many", `{"name":"A","age":1} or {"name":"B","age":2}`, person{"A", 1}},
		{"array to struct", `[{"name":"First","age":1},{"name":"Second","age":2}]`, person{"First", 1}},
		{"trailing comma", `{"name":"Fay","age":3,}`, person{"Fay", 3}},
		{"single quotes", `{'name': 'Gus', 'age': 4}`, person{"Gus", 4}},
		{"truncated", `{"name":"Hal","age":60`, person{"Hal", 60}},
		{"line comment", "{\n  // the person\n  \"name\": \"Ivy\",\n  \"age\": 9\n}", person{"Ivy", 9}},
		{"schema wrapped", `{"name":{"type":"string","value":"Jo"},"age":{"type":"integer","value":11}}`, person{"Jo", 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringAs[person](tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStringAs_StructPointer(t *testing.T) {
	got, err := ParseStringAs[*person](`[{"name":"Ptr","age":1}]`)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ptr", got.Name)
}

func TestParseStringAs_PythonConstants(t *testing.T) {
	type flags struct {
		Enabled bool `json:"enabled"`
		Hidden  bool `json:"hidden"`
		Parent  *int `json:"parent"`
	}
	got, err := ParseStringAs[flags](`{"enabled": True, "hidden": False, "parent": None}`)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.False(t, got.Hidden)
	assert.Nil(t, got.Parent)
}

func TestParseStringAs_Slices(t *testing.T) {
	nums, err := ParseStringAs[[]int]("The values are [1, 2, 3].")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, nums)

	people, err := ParseStringAs[[]person](`{"name":"Solo","age":1}`)
	require.NoError(t, err)
	assert.Equal(t, []person{{"Solo", 1}}, people)

	wrapped, err := ParseStringAs[[]string](`{"type":"array","value":["a","b"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, wrapped)
}

// A malformed outer value must be repaired, not replaced by one of its
// nested objects.
func TestParseStringAs_RepairsOuterValueFirst(t *testing.T) {
	type inlineCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	got, err := ParseStringAs[[]inlineCall](`[{"name":"weather","arguments":{"city":"Rome"},}]`)
	require.NoError(t, err)
	assert.Equal(t, []inlineCall{{Name: "weather", Arguments: map[string]any{"city": "Rome"}}}, got)

	p, err := ParseStringAs[person](`{"name":"Kim","meta":{"age":3},"age":50,}`)
	require.NoError(t, err)
	assert.Equal(t, person{"Kim", 50}, p)
}

func TestParseStringAs_Maps(t *testing.T) {
	got, err := ParseStringAs[map[string]int](`{"a": 1, "b": 2}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)

	got, err = ParseStringAs[map[string]int](`{"a": {"type": "integer", "value": 1}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got)
}

// A struct that really has type and value fields must not be unwrapped.
func TestParseStringAs_LegitimateTypeValueFields(t *testing.T) {
	type field struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}
	got, err := ParseStringAs[field](`{"type": "integer", "value": 42}`)
	require.NoError(t, err)
	assert.Equal(t, "integer", got.Type)
	assert.Equal(t, float64(42), got.Value)
}

func TestParseStringAs_Unrecoverable(t *testing.T) {
	_, err := ParseStringAs[person]("no structured data here")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse: decode")
}

func TestExtractJSONCandidates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"none", "just words", []string{}},
		{"single", `text {"a":1} text`, []string{`{"a":1}`}},
		{"array", `x [1,2] y`, []string{`[1,2]`}},
		{"nested outer first", `{"outer":{"inner":"value"}}`, []string{`{"outer":{"inner":"value"}}`, `{"inner":"value"}`}},
		{"multiple", `{"a":1} and {"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"escaped quotes", `{"text":"He said \"hi\""}`, []string{`{"text":"He said \"hi\""}`}},
		{"brackets in strings", `{"s":"a } b"}`, []string{`{"s":"a } b"}`}},
		{"incomplete", `{"a": 1`, []string{}},
		{"mismatched", `{"a": [1}`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONCandidates(tt.input))
		})
	}
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "plain", stripFence("plain"))
	assert.Equal(t, "{}\n", stripFence("```json\n{}\n```"))
	assert.Equal(t, "{}", stripFence("```\n{}"))
}
