package tool

import (
	"context"
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"

	"github.com/leofalp/llmkit/providers/ai"
)

// RepairFunc is given a tool call whose input failed parsing or validation,
// along with the failure. It returns a replacement call, or nil to keep the
// call invalid. The agent validates the replacement again.
type RepairFunc func(ctx context.Context, call ai.ToolCallPart, cause error) (*ai.ToolCallPart, error)

// JSONRepair is a RepairFunc that fixes common syntax damage in model
// output (single quotes, unquoted keys, trailing commas, missing brackets).
// It does not attempt to satisfy the schema.
func JSONRepair(_ context.Context, call ai.ToolCallPart, _ error) (*ai.ToolCallPart, error) {
	if json.Valid(call.Input) {
		return nil, nil
	}
	repaired, err := jsonrepair.JSONRepair(string(call.Input))
	if err != nil {
		return nil, nil
	}
	if !json.Valid([]byte(repaired)) {
		return nil, nil
	}
	call.Input = json.RawMessage(repaired)
	call.Invalid = false
	call.Error = ""
	return &call, nil
}

var _ RepairFunc = JSONRepair
