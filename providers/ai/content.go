package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartType discriminates the content part union. It is serialized as the
// "type" field of every part.
type PartType string

const (
	PartTypeText             PartType = "text"
	PartTypeReasoning        PartType = "reasoning"
	PartTypeFile             PartType = "file"
	PartTypeImage            PartType = "image"
	PartTypeToolCall         PartType = "tool-call"
	PartTypeToolResult       PartType = "tool-result"
	PartTypeApprovalRequest  PartType = "tool-approval-request"
	PartTypeApprovalResponse PartType = "tool-approval-response"
)

// Part is one element of a message payload. The set of implementations is
// closed: TextPart, ReasoningPart, FilePart, ImagePart, ToolCallPart,
// ToolResultPart, ApprovalRequestPart and ApprovalResponsePart.
type Part interface {
	PartType() PartType
	isPart()
}

// TextPart is plain text.
type TextPart struct {
	Text string `json:"text"`
}

// ReasoningPart carries model chain-of-thought separately from final text.
// Signature is an opaque provider token needed to replay thinking blocks.
type ReasoningPart struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// FileData holds file content either as raw bytes or as a base64 string.
// The two forms are kept as given; nothing converts one into the other.
type FileData struct {
	Bytes  []byte `json:"bytes,omitempty"`
	Base64 string `json:"base64,omitempty"`
	URL    string `json:"url,omitempty"`
}

// FileBytes returns FileData backed by raw bytes.
func FileBytes(data []byte) FileData { return FileData{Bytes: data} }

// FileBase64 returns FileData backed by a base64 string.
func FileBase64(data string) FileData { return FileData{Base64: data} }

// FileURL returns FileData referencing a remote URL.
func FileURL(url string) FileData { return FileData{URL: url} }

// IsZero reports whether no content is set.
func (d FileData) IsZero() bool {
	return len(d.Bytes) == 0 && d.Base64 == "" && d.URL == ""
}

// FilePart is a file attached to a message.
type FilePart struct {
	MediaType string   `json:"media_type"`
	Data      FileData `json:"data"`
	Filename  string   `json:"filename,omitempty"`
}

// ImagePart is a FilePart restricted to image/* media types.
type ImagePart struct {
	MediaType string   `json:"media_type"`
	Data      FileData `json:"data"`
}

// ToolCallPart is a model request to invoke a tool. Invalid marks calls whose
// input failed parsing or schema validation; Error then holds the reason.
type ToolCallPart struct {
	ToolCallID       string          `json:"tool_call_id"`
	ToolName         string          `json:"tool_name"`
	Input            json.RawMessage `json:"input"`
	ProviderExecuted bool            `json:"provider_executed,omitempty"`
	Dynamic          bool            `json:"dynamic,omitempty"`
	Invalid          bool            `json:"invalid,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// ToolResultPart is the outcome of one tool call. Its JSON form is the tool
// output wire format re-injected into the next model turn.
type ToolResultPart struct {
	ToolCallID       string     `json:"tool_call_id"`
	ToolName         string     `json:"tool_name"`
	Output           ToolOutput `json:"output"`
	ProviderExecuted bool       `json:"provider_executed,omitempty"`
	Preliminary      bool       `json:"preliminary,omitempty"`
}

// ApprovalRequestPart asks the host to approve a pending tool call.
type ApprovalRequestPart struct {
	ApprovalID string `json:"approval_id"`
	ToolCallID string `json:"tool_call_id"`
}

// ApprovalResponsePart is the host decision for an ApprovalRequestPart.
type ApprovalResponsePart struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason,omitempty"`
}

func (TextPart) PartType() PartType             { return PartTypeText }
func (ReasoningPart) PartType() PartType        { return PartTypeReasoning }
func (FilePart) PartType() PartType             { return PartTypeFile }
func (ImagePart) PartType() PartType            { return PartTypeImage }
func (ToolCallPart) PartType() PartType         { return PartTypeToolCall }
func (ToolResultPart) PartType() PartType       { return PartTypeToolResult }
func (ApprovalRequestPart) PartType() PartType  { return PartTypeApprovalRequest }
func (ApprovalResponsePart) PartType() PartType { return PartTypeApprovalResponse }

func (TextPart) isPart()             {}
func (ReasoningPart) isPart()        {}
func (FilePart) isPart()             {}
func (ImagePart) isPart()            {}
func (ToolCallPart) isPart()         {}
func (ToolResultPart) isPart()       {}
func (ApprovalRequestPart) isPart()  {}
func (ApprovalResponsePart) isPart() {}

// Text returns a TextPart.
func Text(text string) TextPart { return TextPart{Text: text} }

/* ##### JSON ##### */

// Parts marshal through a local alias type so encoding/json does not recurse
// into MarshalJSON.

func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return marshalFlat(PartTypeText, alias(p))
}

func (p ReasoningPart) MarshalJSON() ([]byte, error) {
	type alias ReasoningPart
	return marshalFlat(PartTypeReasoning, alias(p))
}

func (p FilePart) MarshalJSON() ([]byte, error) {
	type alias FilePart
	return marshalFlat(PartTypeFile, alias(p))
}

func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias ImagePart
	return marshalFlat(PartTypeImage, alias(p))
}

// toolCallWire is the JSON form of a ToolCallPart. Input that is not JSON,
// the raw model text of an invalid call, travels verbatim in input_text.
type toolCallWire struct {
	toolCallAlias
	InputText string `json:"input_text,omitempty"`
}

type toolCallAlias ToolCallPart

func (p ToolCallPart) MarshalJSON() ([]byte, error) {
	wire := toolCallWire{toolCallAlias: toolCallAlias(p)}
	switch {
	case len(p.Input) == 0:
		wire.Input = json.RawMessage("{}")
	case !json.Valid(p.Input):
		wire.Input = json.RawMessage("null")
		wire.InputText = string(p.Input)
	}
	return marshalFlat(PartTypeToolCall, wire)
}

func (p *ToolCallPart) UnmarshalJSON(data []byte) error {
	var wire toolCallWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = ToolCallPart(wire.toolCallAlias)
	if wire.InputText != "" {
		p.Input = json.RawMessage(wire.InputText)
	}
	return nil
}

func (p ToolResultPart) MarshalJSON() ([]byte, error) {
	type alias ToolResultPart
	return marshalFlat(PartTypeToolResult, alias(p))
}

func (p ApprovalRequestPart) MarshalJSON() ([]byte, error) {
	type alias ApprovalRequestPart
	return marshalFlat(PartTypeApprovalRequest, alias(p))
}

func (p ApprovalResponsePart) MarshalJSON() ([]byte, error) {
	type alias ApprovalResponsePart
	return marshalFlat(PartTypeApprovalResponse, alias(p))
}

// marshalFlat encodes v as a JSON object and splices the type field in front.
func marshalFlat(partType PartType, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	typeField, _ := json.Marshal(partType)
	out := make([]byte, 0, len(body)+len(typeField)+10)
	out = append(out, `{"type":`...)
	out = append(out, typeField...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// UnmarshalPart decodes a single tagged part.
func UnmarshalPart(data []byte) (Part, error) {
	var head struct {
		Type PartType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode part type: %w", err)
	}

	switch head.Type {
	case PartTypeText:
		return decodeAs[TextPart](data)
	case PartTypeReasoning:
		return decodeAs[ReasoningPart](data)
	case PartTypeFile:
		return decodeAs[FilePart](data)
	case PartTypeImage:
		return decodeAs[ImagePart](data)
	case PartTypeToolCall:
		return decodeAs[ToolCallPart](data)
	case PartTypeToolResult:
		return decodeAs[ToolResultPart](data)
	case PartTypeApprovalRequest:
		return decodeAs[ApprovalRequestPart](data)
	case PartTypeApprovalResponse:
		return decodeAs[ApprovalResponsePart](data)
	default:
		return nil, NewError(KindInvalidPrompt, "unknown part type %q", head.Type)
	}
}

func decodeAs[T Part](data []byte) (Part, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s part: %w", p.PartType(), err)
	}
	return p, nil
}

// UnmarshalParts decodes a JSON array of tagged parts.
func UnmarshalParts(data []byte) ([]Part, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	parts := make([]Part, 0, len(raw))
	for _, r := range raw {
		p, err := UnmarshalPart(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

/* ##### HELPERS ##### */

// TextOf concatenates all TextPart values in parts.
func TextOf(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// PartsOf returns the parts of concrete type T, preserving order.
func PartsOf[T Part](parts []Part) []T {
	var out []T
	for _, p := range parts {
		if t, ok := p.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
