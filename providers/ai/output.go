package ai

import (
	"encoding/json"
	"errors"
)

// OutputKind discriminates the shaped output of a tool result.
type OutputKind string

const (
	OutputText      OutputKind = "text"
	OutputJSON      OutputKind = "json"
	OutputErrorText OutputKind = "error-text"
	OutputErrorJSON OutputKind = "error-json"
	OutputMedia     OutputKind = "media"
)

// ToolOutput is the shaped output of a tool call: {kind, value}. Value holds
// the JSON encoding of the payload (a string for text kinds).
type ToolOutput struct {
	Kind  OutputKind      `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MediaItem is one element of a media output.
type MediaItem struct {
	Type      string `json:"type"` // "text" or "media"
	Text      string `json:"text,omitempty"`
	Data      string `json:"data,omitempty"` // base64
	MediaType string `json:"media_type,omitempty"`
}

// ErrorPayload is the value of an error-json output.
type ErrorPayload struct {
	Code    ErrorKind `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// TextOutput shapes a string result.
func TextOutput(text string) ToolOutput {
	return ToolOutput{Kind: OutputText, Value: mustJSON(text)}
}

// JSONOutput shapes a structured result. Values that cannot be encoded fall
// back to an error-text output.
func JSONOutput(value any) ToolOutput {
	if raw, ok := value.(json.RawMessage); ok {
		if json.Valid(raw) {
			return ToolOutput{Kind: OutputJSON, Value: raw}
		}
		return ErrorTextOutput("tool returned invalid JSON")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ErrorTextOutput("encode tool output: " + err.Error())
	}
	return ToolOutput{Kind: OutputJSON, Value: data}
}

// ErrorTextOutput shapes a plain error message.
func ErrorTextOutput(message string) ToolOutput {
	return ToolOutput{Kind: OutputErrorText, Value: mustJSON(message)}
}

// ErrorJSONOutput shapes a classified error as {code, message}.
func ErrorJSONOutput(kind ErrorKind, message string, details any) ToolOutput {
	return ToolOutput{Kind: OutputErrorJSON, Value: mustJSON(ErrorPayload{Code: kind, Message: message, Details: details})}
}

// MediaOutput shapes a list of text and media items.
func MediaOutput(items ...MediaItem) ToolOutput {
	return ToolOutput{Kind: OutputMedia, Value: mustJSON(items)}
}

// OutputFromError shapes err: *Error values become error-json carrying their
// kind, anything else becomes error-text.
func OutputFromError(err error) ToolOutput {
	var e *Error
	if errors.As(err, &e) {
		msg := e.Message
		if msg == "" {
			msg = e.Error()
		}
		return ErrorJSONOutput(e.Kind, msg, nil)
	}
	return ErrorTextOutput(err.Error())
}

// IsError reports whether the output is an error kind.
func (o ToolOutput) IsError() bool {
	return o.Kind == OutputErrorText || o.Kind == OutputErrorJSON
}

// Text returns the string value of text and error-text outputs, and the raw
// JSON for every other kind.
func (o ToolOutput) Text() string {
	if o.Kind == OutputText || o.Kind == OutputErrorText {
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
	}
	return string(o.Value)
}

// ErrorPayload decodes an error-json value.
func (o ToolOutput) ErrorPayload() (ErrorPayload, bool) {
	if o.Kind != OutputErrorJSON {
		return ErrorPayload{}, false
	}
	var p ErrorPayload
	if err := json.Unmarshal(o.Value, &p); err != nil {
		return ErrorPayload{}, false
	}
	return p, true
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// only reached for values with unsupported types (channels, funcs)
		data, _ = json.Marshal(err.Error())
	}
	return data
}
