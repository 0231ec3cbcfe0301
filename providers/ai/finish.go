package ai

import (
	"encoding/json"
	"fmt"
)

// FinishKind is the unified reason a model stopped producing output.
type FinishKind string

const (
	FinishKindStop          FinishKind = "stop"
	FinishKindLength        FinishKind = "length"
	FinishKindToolCalls     FinishKind = "tool-calls"
	FinishKindContentFilter FinishKind = "content-filter"
	FinishKindOther         FinishKind = "other"
	FinishKindUnknown       FinishKind = "unknown"
)

// FinishReason pairs the unified kind with the provider raw value, or with a
// reason string for Other (for example "max-steps").
type FinishReason struct {
	Kind FinishKind `json:"kind"`
	Raw  string     `json:"raw,omitempty"`
}

var (
	FinishStop          = FinishReason{Kind: FinishKindStop}
	FinishLength        = FinishReason{Kind: FinishKindLength}
	FinishToolCalls     = FinishReason{Kind: FinishKindToolCalls}
	FinishContentFilter = FinishReason{Kind: FinishKindContentFilter}
	FinishUnknown       = FinishReason{Kind: FinishKindUnknown}
)

// OtherFinish returns an Other finish reason carrying reason.
func OtherFinish(reason string) FinishReason {
	return FinishReason{Kind: FinishKindOther, Raw: reason}
}

// WithRaw returns f annotated with the provider raw value.
func (f FinishReason) WithRaw(raw string) FinishReason {
	f.Raw = raw
	return f
}

// Is compares kinds, ignoring the raw value.
func (f FinishReason) Is(kind FinishKind) bool { return f.Kind == kind }

func (f FinishReason) String() string {
	if f.Kind == "" {
		return string(FinishKindUnknown)
	}
	if f.Kind == FinishKindOther && f.Raw != "" {
		return fmt.Sprintf("other(%s)", f.Raw)
	}
	return string(f.Kind)
}

// Usage is token accounting for one call or an aggregate of calls.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	TotalTokens       int `json:"total_tokens,omitempty"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   int `json:"reasoning_tokens,omitempty"`
}

// Add returns the field-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:       u.InputTokens + other.InputTokens,
		OutputTokens:      u.OutputTokens + other.OutputTokens,
		TotalTokens:       u.TotalTokens + other.TotalTokens,
		CachedInputTokens: u.CachedInputTokens + other.CachedInputTokens,
		ReasoningTokens:   u.ReasoningTokens + other.ReasoningTokens,
	}
}

// Normalized fills TotalTokens from input and output when the provider did
// not report it.
func (u Usage) Normalized() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// Validate checks that counts are non-negative, cached input tokens do not
// exceed input tokens, and a reported total covers input plus output.
func (u Usage) Validate() error {
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.TotalTokens < 0 || u.CachedInputTokens < 0 || u.ReasoningTokens < 0 {
		return NewError(KindSchemaViolation, "usage has negative token counts: %+v", u)
	}
	if u.CachedInputTokens > u.InputTokens {
		return NewError(KindSchemaViolation, "cached input tokens %d exceed input tokens %d", u.CachedInputTokens, u.InputTokens)
	}
	if u.TotalTokens != 0 && u.InputTokens+u.OutputTokens > u.TotalTokens {
		return NewError(KindSchemaViolation, "total tokens %d below input+output %d", u.TotalTokens, u.InputTokens+u.OutputTokens)
	}
	return nil
}

// WarningType classifies a Warning.
type WarningType string

const (
	WarningUnsupportedSetting WarningType = "unsupported-setting"
	WarningUnsupportedTool    WarningType = "unsupported-tool"
	WarningInvalidStreamPart  WarningType = "invalid-stream-part"
	WarningOther              WarningType = "other"
)

// Warning is a non-fatal deviation from ideal behaviour.
type Warning struct {
	Type    WarningType `json:"type"`
	Setting string      `json:"setting,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (w Warning) String() string {
	switch {
	case w.Setting != "" && w.Message != "":
		return fmt.Sprintf("%s: %s: %s", w.Type, w.Setting, w.Message)
	case w.Setting != "":
		return fmt.Sprintf("%s: %s", w.Type, w.Setting)
	default:
		return fmt.Sprintf("%s: %s", w.Type, w.Message)
	}
}

// UnsupportedSetting returns a warning for a dropped call option.
func UnsupportedSetting(setting, message string) Warning {
	return Warning{Type: WarningUnsupportedSetting, Setting: setting, Message: message}
}

// StreamWarning returns a warning for a recovered stream protocol violation.
func StreamWarning(format string, args ...any) Warning {
	return Warning{Type: WarningInvalidStreamPart, Message: fmt.Sprintf(format, args...)}
}

// MarshalMetadata is a convenience for adapters building ProviderMetadata
// values from typed structs.
func MarshalMetadata(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
