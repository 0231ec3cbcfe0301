package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ProviderOptions is an opaque bag keyed by provider name. The core never
// inspects it; adapters read their own key.
type ProviderOptions map[string]json.RawMessage

// ProviderMetadata is an opaque bag keyed by provider name returned by adapters.
type ProviderMetadata map[string]map[string]any

// Merge copies every entry of other into m, returning the result.
func (m ProviderMetadata) Merge(other ProviderMetadata) ProviderMetadata {
	if len(other) == 0 {
		return m
	}
	if m == nil {
		m = ProviderMetadata{}
	}
	for provider, values := range other {
		dst, ok := m[provider]
		if !ok {
			dst = map[string]any{}
			m[provider] = dst
		}
		for k, v := range values {
			dst[k] = v
		}
	}
	return m
}

// Message is one entry of a prompt.
type Message struct {
	Role            Role
	Parts           []Part
	ProviderOptions ProviderOptions
}

// SystemMessage returns a system message holding text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// UserMessage returns a user message. Strings are not accepted directly so
// that multimodal content stays explicit; see UserText.
func UserMessage(parts ...Part) Message {
	return Message{Role: RoleUser, Parts: parts}
}

// UserText returns a user message holding a single text part.
func UserText(text string) Message {
	return UserMessage(TextPart{Text: text})
}

// AssistantMessage returns an assistant message.
func AssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}

// ToolMessage returns a tool message.
func ToolMessage(parts ...Part) Message {
	return Message{Role: RoleTool, Parts: parts}
}

// Text concatenates the text parts of the message.
func (m Message) Text() string { return TextOf(m.Parts) }

type messageJSON struct {
	Role            Role              `json:"role"`
	Content         []json.RawMessage `json:"content"`
	ProviderOptions ProviderOptions   `json:"provider_options,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{Role: m.Role, ProviderOptions: m.ProviderOptions, Content: make([]json.RawMessage, 0, len(m.Parts))}
	for i, p := range m.Parts {
		if p == nil {
			return nil, fmt.Errorf("message part %d is nil", i)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode part %d: %w", i, err)
		}
		out.Content = append(out.Content, data)
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parts := make([]Part, 0, len(in.Content))
	for _, raw := range in.Content {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	m.Role = in.Role
	m.Parts = parts
	m.ProviderOptions = in.ProviderOptions
	return nil
}

// Prompt is an ordered list of messages.
type Prompt []Message

// ParsePrompt decodes a JSON prompt produced by json.Marshal.
func ParsePrompt(data []byte) (Prompt, error) {
	var p Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode prompt: %w", err)
	}
	return p, nil
}

// Clone returns a copy whose message slice and part slices can be appended to
// without aliasing p. Parts themselves are values and are shared.
func (p Prompt) Clone() Prompt {
	out := make(Prompt, len(p))
	for i, m := range p {
		m.Parts = append([]Part(nil), m.Parts...)
		out[i] = m
	}
	return out
}

// Validate checks the prompt is acceptable to send to a model.
func (p Prompt) Validate() error {
	if len(p) == 0 {
		return NewError(KindInvalidPrompt, "prompt is empty")
	}

	seenCalls := map[string]bool{}
	for i, m := range p {
		if !m.Role.Valid() {
			return NewError(KindInvalidPrompt, "message %d: unknown role %q", i, m.Role)
		}
		if len(m.Parts) == 0 {
			return NewError(KindInvalidPrompt, "message %d (%s) has no content", i, m.Role)
		}
		for j, part := range m.Parts {
			if part == nil {
				return NewError(KindInvalidPrompt, "message %d part %d is nil", i, j)
			}
			if err := validatePart(m.Role, part); err != nil {
				return NewError(KindInvalidPrompt, "message %d part %d: %s", i, j, err.Error())
			}
			switch v := part.(type) {
			case ToolCallPart:
				seenCalls[v.ToolCallID] = true
			case ToolResultPart:
				if !seenCalls[v.ToolCallID] {
					return NewError(KindInvalidPrompt, "message %d: tool result %q has no matching tool call", i, v.ToolCallID)
				}
			}
		}
	}
	return nil
}

func validatePart(role Role, part Part) error {
	allowed := map[Role][]PartType{
		RoleSystem:    {PartTypeText},
		RoleUser:      {PartTypeText, PartTypeFile, PartTypeImage},
		RoleAssistant: {PartTypeText, PartTypeReasoning, PartTypeFile, PartTypeToolCall, PartTypeToolResult, PartTypeApprovalRequest},
		RoleTool:      {PartTypeToolResult, PartTypeApprovalResponse},
	}
	ok := false
	for _, t := range allowed[role] {
		if t == part.PartType() {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%s part not allowed in %s message", part.PartType(), role)
	}

	switch v := part.(type) {
	case ImagePart:
		if !strings.HasPrefix(v.MediaType, "image/") {
			return fmt.Errorf("image part has non-image media type %q", v.MediaType)
		}
		if v.Data.IsZero() {
			return fmt.Errorf("image part has no data")
		}
	case FilePart:
		if v.MediaType == "" {
			return fmt.Errorf("file part has no media type")
		}
		if v.Data.IsZero() {
			return fmt.Errorf("file part has no data")
		}
	case ToolCallPart:
		if v.ToolCallID == "" || v.ToolName == "" {
			return fmt.Errorf("tool call requires id and name")
		}
	case ToolResultPart:
		if v.ToolCallID == "" {
			return fmt.Errorf("tool result requires a tool call id")
		}
	case ApprovalResponsePart:
		if v.ApprovalID == "" {
			return fmt.Errorf("approval response requires an approval id")
		}
	}
	return nil
}
