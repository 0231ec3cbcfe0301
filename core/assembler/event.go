package assembler

import (
	"encoding/json"

	"github.com/leofalp/llmkit/providers/ai"
)

// EventType discriminates assembler events.
type EventType string

const (
	EventTextDelta        EventType = "text-delta"
	EventReasoningDelta   EventType = "reasoning-delta"
	EventToolInputStart   EventType = "tool-input-start"
	EventToolInputPartial EventType = "tool-input-partial"
	// EventPart carries a completed content part.
	EventPart             EventType = "part"
	EventFinish           EventType = "finish"
	EventWarning          EventType = "warning"
	EventError            EventType = "error"
	EventRaw              EventType = "raw"
	EventResponseMetadata EventType = "response-metadata"
	// EventDone ends an Assemble sequence and carries the Output.
	EventDone EventType = "done"
)

// Event is a progress notification produced while a stream is assembled.
type Event struct {
	Type EventType
	// ID is the block id for deltas and tool-input events.
	ID       string
	Delta    string
	ToolName string
	// Partial is the best-effort decoded tool input so far.
	Partial any
	Part    ai.Part

	FinishReason     ai.FinishReason
	Usage            ai.Usage
	ProviderMetadata ai.ProviderMetadata

	Warning  *ai.Warning
	Err      error
	Raw      json.RawMessage
	Response *ai.ResponseMetadata
	Output   *Output
}

// PartialInput is passed to the WithPartialInput callback whenever the
// decoded value of a streaming tool input changes.
type PartialInput struct {
	ToolCallID string
	ToolName   string
	Value      any
}

// Output is the assembled result of one model call.
type Output struct {
	// Content holds parts in block close order.
	Content          []ai.Part
	FinishReason     ai.FinishReason
	Usage            ai.Usage
	ProviderMetadata ai.ProviderMetadata
	Warnings         []ai.Warning
	Response         ai.ResponseMetadata
	Sources          []ai.Source
	// Err is set when the stream carried an error part.
	Err error
}
