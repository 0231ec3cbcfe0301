package aitest

import (
	"fmt"

	"github.com/leofalp/llmkit/providers/ai"
)

// TextTurn streams text in a single block and finishes with Stop. Multiple
// chunks become separate deltas.
func TextTurn(chunks ...string) Turn {
	parts := []ai.StreamPart{ai.StreamStartEvent(nil), ai.TextStart("txt-0")}
	for _, chunk := range chunks {
		parts = append(parts, ai.TextDelta("txt-0", chunk))
	}
	parts = append(parts,
		ai.TextEnd("txt-0"),
		ai.FinishEvent(ai.FinishStop, DefaultUsage, nil),
	)
	return Turn{Parts: parts}
}

// ReasoningTurn streams a reasoning block followed by a text block.
func ReasoningTurn(reasoning, text string) Turn {
	return Turn{Parts: []ai.StreamPart{
		ai.StreamStartEvent(nil),
		ai.ReasoningStart("rsn-0"),
		ai.ReasoningDelta("rsn-0", reasoning),
		ai.ReasoningEnd("rsn-0"),
		ai.TextStart("txt-0"),
		ai.TextDelta("txt-0", text),
		ai.TextEnd("txt-0"),
		ai.FinishEvent(ai.FinishStop, DefaultUsage, nil),
	}}
}

// ToolCallTurn emits whole tool calls and finishes with ToolCalls.
func ToolCallTurn(calls ...ai.ToolCallPart) Turn {
	parts := []ai.StreamPart{ai.StreamStartEvent(nil)}
	for _, call := range calls {
		part := ai.ToolCallEvent(call.ToolCallID, call.ToolName, call.Input)
		part.ProviderExecuted = call.ProviderExecuted
		part.Dynamic = call.Dynamic
		parts = append(parts, part)
	}
	parts = append(parts, ai.FinishEvent(ai.FinishToolCalls, DefaultUsage, nil))
	return Turn{Parts: parts}
}

// StreamedToolCallTurn emits one tool call as input fragments, the way
// providers stream arguments.
func StreamedToolCallTurn(id, toolName string, fragments ...string) Turn {
	parts := []ai.StreamPart{ai.StreamStartEvent(nil), ai.ToolInputStart(id, toolName)}
	for _, fragment := range fragments {
		parts = append(parts, ai.ToolInputDelta(id, fragment))
	}
	parts = append(parts,
		ai.ToolInputEnd(id),
		ai.FinishEvent(ai.FinishToolCalls, DefaultUsage, nil),
	)
	return Turn{Parts: parts}
}

// PartsTurn wraps arbitrary parts.
func PartsTurn(parts ...ai.StreamPart) Turn {
	return Turn{Parts: parts}
}

// ErrorTurn fails the call with err.
func ErrorTurn(err error) Turn {
	return Turn{Err: err}
}

// BlockingTurn emits parts and then waits for cancellation.
func BlockingTurn(parts ...ai.StreamPart) Turn {
	return Turn{Parts: parts, Block: true}
}

// Call is a shorthand for a tool call part with a JSON input literal.
func Call(id, toolName, input string) ai.ToolCallPart {
	if input == "" {
		input = "{}"
	}
	return ai.ToolCallPart{ToolCallID: id, ToolName: toolName, Input: []byte(input)}
}

// Text returns the concatenated text of parts, for assertions.
func Text(parts []ai.StreamPart) string {
	var out string
	for _, part := range parts {
		if part.Type == ai.StreamPartTextDelta {
			out += part.Delta
		}
	}
	return out
}

// Describe renders part types for failure messages.
func Describe(parts []ai.StreamPart) string {
	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = fmt.Sprintf("%s(%s)", part.Type, part.ID)
	}
	return fmt.Sprint(out)
}
