package ai

import (
	"context"
	"encoding/json"
)

/* ##### ADAPTER ##### */

// Adapter is implemented by every provider HTTP client.
//
// Generate returns the whole response. Stream returns a lazy PartStream that
// obeys the stream invariants (see CheckStreamInvariants): an adapter never
// emits Finish with open blocks, and tool calls are emitted either whole or as
// tool-input start/delta/end.
//
// Errors returned before the stream starts (auth, bad request, network) are
// returned directly; errors during the stream are yielded by the iterator.
// All errors are *Error values.
type Adapter interface {
	// Provider is the key used in ProviderOptions and ProviderMetadata.
	Provider() string
	ModelID() string
	Capabilities() Capabilities
	Generate(ctx context.Context, options CallOptions) (*GenerateResponse, error)
	Stream(ctx context.Context, options CallOptions) (*StreamResponse, error)
}

// Capabilities advertises optional adapter features.
type Capabilities struct {
	// StructuredOutput is true when the provider enforces a JSON schema natively.
	StructuredOutput bool
	ToolCalling      bool
	Streaming        bool
	Reasoning        bool
	Vision           bool
}

// GenerateResponse is the output of Adapter.Generate.
type GenerateResponse struct {
	Content          []Part
	FinishReason     FinishReason
	Usage            Usage
	ProviderMetadata ProviderMetadata
	Warnings         []Warning
	Request          RequestMetadata
	Response         ResponseMetadata
}

// StreamResponse is the output of Adapter.Stream.
type StreamResponse struct {
	Stream   *PartStream
	Warnings []Warning
	Request  RequestMetadata
}

/* ##### CALL OPTIONS ##### */

// ToolChoiceType selects how the model may use tools.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice is Auto, Required, None or Specific(name).
type ToolChoice struct {
	Type     ToolChoiceType `json:"type"`
	ToolName string         `json:"tool_name,omitempty"`
}

// SpecificTool forces the model to call the named tool.
func SpecificTool(name string) *ToolChoice {
	return &ToolChoice{Type: ToolChoiceTool, ToolName: name}
}

// ResponseFormatType is text or json.
type ResponseFormatType string

const (
	ResponseFormatText ResponseFormatType = "text"
	ResponseFormatJSON ResponseFormatType = "json"
)

// ResponseFormat requests plain text or JSON output, optionally constrained
// by a JSON schema.
type ResponseFormat struct {
	Type        ResponseFormatType `json:"type"`
	Schema      json.RawMessage    `json:"schema,omitempty"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
}

// JSONResponse returns a JSON response format. schema may be nil.
func JSONResponse(schema json.RawMessage, name, description string) *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSON, Schema: schema, Name: name, Description: description}
}

// IsJSON reports whether JSON output was requested.
func (f *ResponseFormat) IsJSON() bool { return f != nil && f.Type == ResponseFormatJSON }

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// CallOptions is the full input of one model call. The cancellation token is
// the context passed alongside it.
type CallOptions struct {
	Prompt           Prompt
	Tools            []ToolDefinition
	ToolChoice       *ToolChoice
	ResponseFormat   *ResponseFormat
	MaxOutputTokens  *int
	Temperature      *float64
	TopP             *float64
	TopK             *int
	StopSequences    []string
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Seed             *int
	Headers          map[string]string
	ProviderOptions  ProviderOptions
}

// Validate checks the options for internal consistency.
func (o CallOptions) Validate() error {
	if err := o.Prompt.Validate(); err != nil {
		return err
	}
	if o.MaxOutputTokens != nil && *o.MaxOutputTokens <= 0 {
		return NewError(KindInvalidArgument, "max output tokens must be positive, got %d", *o.MaxOutputTokens)
	}
	if o.Temperature != nil && *o.Temperature < 0 {
		return NewError(KindInvalidArgument, "temperature must not be negative")
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return NewError(KindInvalidArgument, "top-p must be within [0, 1]")
	}

	names := make(map[string]bool, len(o.Tools))
	for _, t := range o.Tools {
		if t.Name == "" {
			return NewError(KindInvalidArgument, "tool definition without a name")
		}
		if names[t.Name] {
			return NewError(KindInvalidArgument, "duplicate tool %q", t.Name)
		}
		names[t.Name] = true
	}

	if o.ToolChoice != nil {
		switch o.ToolChoice.Type {
		case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		case ToolChoiceTool:
			if !names[o.ToolChoice.ToolName] {
				return NewError(KindInvalidArgument, "tool choice names unknown tool %q", o.ToolChoice.ToolName)
			}
		default:
			return NewError(KindInvalidArgument, "unknown tool choice %q", o.ToolChoice.Type)
		}
	}

	if o.ResponseFormat.IsJSON() && len(o.ResponseFormat.Schema) > 0 && !json.Valid(o.ResponseFormat.Schema) {
		return NewError(KindInvalidArgument, "response format schema is not valid JSON")
	}
	return nil
}

// ProviderOption decodes the option bag entry for provider into out. It
// reports false when no entry exists.
func (o CallOptions) ProviderOption(provider string, out any) (bool, error) {
	raw, ok := o.ProviderOptions[provider]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, WrapError(KindInvalidArgument, err, "decode %s provider options", provider)
	}
	return true, nil
}
