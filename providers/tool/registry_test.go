package tool

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
)

const weatherSchema = `{
	"type": "object",
	"properties": {"city": {"type": "string"}, "days": {"type": "integer", "minimum": 1}},
	"required": ["city"],
	"additionalProperties": false
}`

func weatherDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "weather",
		Description: "Returns the forecast",
		InputSchema: json.RawMessage(weatherSchema),
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(weatherDescriptor(), weatherDescriptor())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrInvalidArgument))
}

func TestNewRegistry_RejectsInvalidSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"not json", `{"type":`},
		{"bad type", `{"type": 12}`},
		{"dangling ref", `{"$ref": "#/$defs/missing"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(&Descriptor{Name: "x", InputSchema: json.RawMessage(tt.schema)})
			require.Error(t, err)
			assert.Equal(t, ai.KindInvalidArgument, ai.KindOf(err))
		})
	}
}

func TestNewRegistry_RejectsNameless(t *testing.T) {
	_, err := NewRegistry(&Descriptor{})
	assert.Equal(t, ai.KindInvalidArgument, ai.KindOf(err))

	_, err = NewRegistry(nil)
	assert.Equal(t, ai.KindInvalidArgument, ai.KindOf(err))
}

func TestRegistry_LookupAndNames(t *testing.T) {
	r, err := NewRegistry(
		&Descriptor{Name: "zeta"},
		weatherDescriptor(),
		&Descriptor{Name: "alpha"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "weather", "zeta"}, r.Names())
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Has("weather"))
	assert.False(t, r.Has("Weather"), "names are case-sensitive")

	d, ok := r.Lookup("weather")
	require.True(t, ok)
	assert.Equal(t, "Returns the forecast", d.Description)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_Definitions(t *testing.T) {
	r := MustRegistry(weatherDescriptor(), &Descriptor{Name: "anything"})

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "anything", defs[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(defs[0].InputSchema))
	assert.Equal(t, "weather", defs[1].Name)
	assert.JSONEq(t, weatherSchema, string(defs[1].InputSchema))
}

func TestRegistry_ValidateInput(t *testing.T) {
	r := MustRegistry(weatherDescriptor(), &Descriptor{Name: "free"})

	tests := []struct {
		name  string
		tool  string
		input string
		kind  ai.ErrorKind
	}{
		{name: "valid", tool: "weather", input: `{"city":"SF"}`},
		{name: "valid with days", tool: "weather", input: `{"city":"SF","days":3}`},
		{name: "missing required", tool: "weather", input: `{}`, kind: ai.KindInvalidToolInput},
		{name: "wrong type", tool: "weather", input: `{"city":1}`, kind: ai.KindInvalidToolInput},
		{name: "below minimum", tool: "weather", input: `{"city":"SF","days":0}`, kind: ai.KindInvalidToolInput},
		{name: "extra property", tool: "weather", input: `{"city":"SF","x":1}`, kind: ai.KindInvalidToolInput},
		{name: "malformed json", tool: "weather", input: `{"city":`, kind: ai.KindInvalidToolInput},
		{name: "empty input on schemaless tool", tool: "free", input: ``},
		{name: "unknown tool", tool: "nope", input: `{}`, kind: ai.KindNoSuchTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateInput(tt.tool, json.RawMessage(tt.input))
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, ai.KindOf(err))
		})
	}
}

func TestRegistry_MergeAndClone(t *testing.T) {
	a := MustRegistry(&Descriptor{Name: "a"})
	b := MustRegistry(&Descriptor{Name: "b"})

	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, merged.Names())
	assert.Equal(t, []string{"a"}, a.Names(), "merge leaves the receiver untouched")

	_, err = merged.Merge(a)
	assert.Equal(t, ai.KindInvalidArgument, ai.KindOf(err))

	clone := a.Clone()
	assert.Equal(t, a.Names(), clone.Names())

	var empty *Registry
	assert.Empty(t, empty.Names())
	assert.False(t, empty.Has("a"))
	assert.Equal(t, ai.KindNoSuchTool, ai.KindOf(empty.ValidateInput("a", nil)))
}
