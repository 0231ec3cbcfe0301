package calculator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/tool"
)

func TestCalc(t *testing.T) {
	tests := []struct {
		op   string
		a, b float64
		want float64
	}{
		{"add", 2, 3, 5},
		{"+", -2, 3, 1},
		{"sub", 2, 3, -1},
		{"mul", 2.5, 4, 10},
		{"div", 10, 4, 2.5},
		{"mod", 10, 4, 2},
		{"pow", 2, 10, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			out, err := Calc(context.Background(), Input{A: tt.a, B: tt.b, Op: tt.op})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Result, 1e-9)
		})
	}
}

func TestCalc_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		kind ai.ErrorKind
	}{
		{"division by zero", Input{A: 1, B: 0, Op: "div"}, ai.KindInvalidToolInput},
		{"modulo by zero", Input{A: 1, B: 0, Op: "mod"}, ai.KindInvalidToolInput},
		{"unknown op", Input{A: 1, B: 2, Op: "sqrt"}, ai.KindInvalidToolInput},
		{"overflow", Input{A: 10, B: 400, Op: "pow"}, ai.KindToolExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calc(context.Background(), tt.in)
			assert.Equal(t, tt.kind, ai.KindOf(err))
		})
	}
}

func TestNew(t *testing.T) {
	d := New()
	assert.Equal(t, Name, d.Name)
	assert.NotEmpty(t, d.Description)

	r, err := tool.NewRegistry(d)
	require.NoError(t, err)
	assert.NoError(t, r.ValidateInput(Name, json.RawMessage(`{"a":1,"b":2,"op":"add"}`)))
	assert.Error(t, r.ValidateInput(Name, json.RawMessage(`{"a":1,"b":2,"op":"sqrt"}`)), "op is an enum")
	assert.Error(t, r.ValidateInput(Name, json.RawMessage(`{"a":1,"op":"add"}`)))

	result := tool.Execute(context.Background(), d, ai.ToolCallPart{
		ToolCallID: "c1",
		ToolName:   Name,
		Input:      json.RawMessage(`{"a":6,"b":7,"op":"mul"}`),
	}, tool.CallContext{}, nil)
	assert.JSONEq(t, `{"result":42}`, string(result.Output.Value))

	result = tool.Execute(context.Background(), d, ai.ToolCallPart{
		ToolCallID: "c2",
		ToolName:   Name,
		Input:      json.RawMessage(`{"a":6,"b":0,"op":"div"}`),
	}, tool.CallContext{}, nil)
	payload, ok := result.Output.ErrorPayload()
	require.True(t, ok)
	assert.Equal(t, ai.KindInvalidToolInput, payload.Code)
	assert.Equal(t, "division by zero", payload.Message)
}

func TestNew_OverridesDescription(t *testing.T) {
	d := New(tool.WithDescription("math"), tool.WithApproval(tool.Always()))
	assert.Equal(t, "math", d.Description)
}
