package ai

import (
	"encoding/json"
	"time"
)

// StreamPartType discriminates the stream part union emitted by adapters.
type StreamPartType string

const (
	StreamPartStreamStart      StreamPartType = "stream-start"
	StreamPartResponseMetadata StreamPartType = "response-metadata"
	StreamPartTextStart        StreamPartType = "text-start"
	StreamPartTextDelta        StreamPartType = "text-delta"
	StreamPartTextEnd          StreamPartType = "text-end"
	StreamPartReasoningStart   StreamPartType = "reasoning-start"
	StreamPartReasoningDelta   StreamPartType = "reasoning-delta"
	StreamPartReasoningEnd     StreamPartType = "reasoning-end"
	StreamPartToolInputStart   StreamPartType = "tool-input-start"
	StreamPartToolInputDelta   StreamPartType = "tool-input-delta"
	StreamPartToolInputEnd     StreamPartType = "tool-input-end"
	StreamPartToolCall         StreamPartType = "tool-call"
	StreamPartToolResult       StreamPartType = "tool-result"
	StreamPartFile             StreamPartType = "file"
	StreamPartSource           StreamPartType = "source"
	StreamPartFinish           StreamPartType = "finish"
	StreamPartError            StreamPartType = "error"
	StreamPartRaw              StreamPartType = "raw"
)

// Source is a citation emitted by providers with retrieval features.
type Source struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ResponseMetadata identifies a provider response.
type ResponseMetadata struct {
	ID        string            `json:"id,omitempty"`
	ModelID   string            `json:"model_id,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitzero"`
	Headers   map[string]string `json:"headers,omitempty"`
	// Body is a snapshot of the response body kept for replay.
	Body json.RawMessage `json:"body,omitempty"`
}

// RequestMetadata records what was sent to the provider.
type RequestMetadata struct {
	Body json.RawMessage `json:"body,omitempty"`
}

// StreamPart is one event of an adapter stream. Type selects which fields
// are meaningful:
//
//	text-*                  ID, Delta
//	reasoning-start/delta   ID, Delta
//	reasoning-end           ID, Signature
//	tool-input-start        ID, ToolName
//	tool-input-delta        ID, Delta
//	tool-input-end          ID
//	tool-call               ID, ToolName, Input, ProviderExecuted, Dynamic
//	tool-result             ID, ToolName, Output
//	file                    File
//	source                  Source
//	finish                  FinishReason, Usage, ProviderMetadata
//	error                   Err
//	raw                     Raw
//	stream-start            Warnings
//	response-metadata       Response
type StreamPart struct {
	Type             StreamPartType
	ID               string
	Delta            string
	Signature        string
	ToolName         string
	Input            json.RawMessage
	ProviderExecuted bool
	Dynamic          bool
	Output           ToolOutput
	File             *FilePart
	Source           *Source
	FinishReason     FinishReason
	Usage            Usage
	ProviderMetadata ProviderMetadata
	Err              error
	Raw              json.RawMessage
	Warnings         []Warning
	Response         *ResponseMetadata
}

func TextStart(id string) StreamPart { return StreamPart{Type: StreamPartTextStart, ID: id} }
func TextDelta(id, text string) StreamPart {
	return StreamPart{Type: StreamPartTextDelta, ID: id, Delta: text}
}
func TextEnd(id string) StreamPart { return StreamPart{Type: StreamPartTextEnd, ID: id} }

func ReasoningStart(id string) StreamPart { return StreamPart{Type: StreamPartReasoningStart, ID: id} }
func ReasoningDelta(id, text string) StreamPart {
	return StreamPart{Type: StreamPartReasoningDelta, ID: id, Delta: text}
}
func ReasoningEnd(id string) StreamPart { return StreamPart{Type: StreamPartReasoningEnd, ID: id} }

// SignedReasoningEnd closes a reasoning block whose provider returned a
// signature that must be replayed with the reasoning text.
func SignedReasoningEnd(id, signature string) StreamPart {
	return StreamPart{Type: StreamPartReasoningEnd, ID: id, Signature: signature}
}

func ToolInputStart(id, toolName string) StreamPart {
	return StreamPart{Type: StreamPartToolInputStart, ID: id, ToolName: toolName}
}
func ToolInputDelta(id, fragment string) StreamPart {
	return StreamPart{Type: StreamPartToolInputDelta, ID: id, Delta: fragment}
}
func ToolInputEnd(id string) StreamPart { return StreamPart{Type: StreamPartToolInputEnd, ID: id} }

// ToolCallEvent emits a whole tool call.
func ToolCallEvent(id, toolName string, input json.RawMessage) StreamPart {
	return StreamPart{Type: StreamPartToolCall, ID: id, ToolName: toolName, Input: input}
}

// ToolResultEvent emits the result of a provider executed tool.
func ToolResultEvent(id, toolName string, output ToolOutput) StreamPart {
	return StreamPart{Type: StreamPartToolResult, ID: id, ToolName: toolName, Output: output}
}

func FileEvent(file FilePart) StreamPart { return StreamPart{Type: StreamPartFile, File: &file} }

func SourceEvent(source Source) StreamPart { return StreamPart{Type: StreamPartSource, Source: &source} }

func FinishEvent(reason FinishReason, usage Usage, metadata ProviderMetadata) StreamPart {
	return StreamPart{Type: StreamPartFinish, FinishReason: reason, Usage: usage, ProviderMetadata: metadata}
}

func ErrorEvent(err error) StreamPart { return StreamPart{Type: StreamPartError, Err: err} }

func RawEvent(raw json.RawMessage) StreamPart { return StreamPart{Type: StreamPartRaw, Raw: raw} }

func StreamStartEvent(warnings []Warning) StreamPart {
	return StreamPart{Type: StreamPartStreamStart, Warnings: warnings}
}

func ResponseMetadataEvent(meta ResponseMetadata) StreamPart {
	return StreamPart{Type: StreamPartResponseMetadata, Response: &meta}
}

// blockFamily groups start/delta/end types of the same block kind.
func (t StreamPartType) blockFamily() (family string, phase string) {
	switch t {
	case StreamPartTextStart:
		return "text", "start"
	case StreamPartTextDelta:
		return "text", "delta"
	case StreamPartTextEnd:
		return "text", "end"
	case StreamPartReasoningStart:
		return "reasoning", "start"
	case StreamPartReasoningDelta:
		return "reasoning", "delta"
	case StreamPartReasoningEnd:
		return "reasoning", "end"
	case StreamPartToolInputStart:
		return "tool-input", "start"
	case StreamPartToolInputDelta:
		return "tool-input", "delta"
	case StreamPartToolInputEnd:
		return "tool-input", "end"
	}
	return "", ""
}

// CheckStreamInvariants verifies the structural rules every adapter stream
// must obey: each Start has exactly one End with the same id before Finish,
// deltas occur only inside their block, block ids are unique, exactly one
// Finish occurs and nothing but Raw follows it.
func CheckStreamInvariants(parts []StreamPart) error {
	open := map[string]string{}
	used := map[string]bool{}
	finished := false

	for i, p := range parts {
		if finished && p.Type != StreamPartRaw {
			return NewError(KindInvalidStreamPart, "part %d (%s) follows finish", i, p.Type)
		}
		family, phase := p.Type.blockFamily()
		key := family + "/" + p.ID
		switch phase {
		case "start":
			if used[key] {
				return NewError(KindInvalidStreamPart, "part %d: %s block id %q reused", i, family, p.ID)
			}
			used[key] = true
			open[key] = family
		case "delta":
			if _, ok := open[key]; !ok {
				return NewError(KindInvalidStreamPart, "part %d: %s delta for unopened id %q", i, family, p.ID)
			}
		case "end":
			if _, ok := open[key]; !ok {
				return NewError(KindInvalidStreamPart, "part %d: %s end for unopened id %q", i, family, p.ID)
			}
			delete(open, key)
		}

		if p.Type == StreamPartFinish {
			if len(open) > 0 {
				return NewError(KindInvalidStreamPart, "finish with %d open blocks", len(open))
			}
			finished = true
		}
	}
	if !finished {
		return NewError(KindTruncatedStream, "stream has no finish part")
	}
	return nil
}
