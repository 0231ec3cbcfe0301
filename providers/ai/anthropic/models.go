package anthropic

import "encoding/json"

/*
	ANTHROPIC MESSAGES API - REQUEST TYPES
*/

type messagesRequest struct {
	Model         string          `json:"model"`
	Messages      []message       `json:"messages"`
	System        []contentBlock  `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens"` // required on every request
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []toolSpec      `json:"tools,omitempty"`
	ToolChoice    *toolChoiceSpec `json:"tool_choice,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Metadata      *requestMeta    `json:"metadata,omitempty"`
	Thinking      *thinkingSpec   `json:"thinking,omitempty"`
}

type requestMeta struct {
	UserID string `json:"user_id,omitempty"`
}

type thinkingSpec struct {
	Type         string `json:"type"` // "enabled" or "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type message struct {
	Role    string         `json:"role"` // "user" or "assistant"
	Content []contentBlock `json:"content"`
}

// contentBlock is a union discriminated by Type:
//   - "text": Text
//   - "image", "document": Source
//   - "tool_use": ID, Name, Input
//   - "tool_result": ToolUseID, Content, IsError
//   - "thinking": Thinking, Signature
type contentBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	Source       *source       `json:"source,omitempty"`
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Input        any           `json:"input,omitempty"`
	ToolUseID    string        `json:"tool_use_id,omitempty"`
	Content      any           `json:"content,omitempty"` // string or []contentBlock
	IsError      bool          `json:"is_error,omitempty"`
	Thinking     string        `json:"thinking,omitempty"`
	Signature    string        `json:"signature,omitempty"`
	Title        string        `json:"title,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

type source struct {
	Type      string `json:"type"` // "base64", "url" or "text"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type toolSpec struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

type toolChoiceSpec struct {
	Type                   string `json:"type"` // "auto", "any" or "tool"
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

/*
	ANTHROPIC MESSAGES API - RESPONSE TYPES
*/

type messagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    []responseBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      usage           `json:"usage"`
}

type responseBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type usage struct {
	InputTokens              int  `json:"input_tokens"`
	OutputTokens             int  `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens,omitempty"`
}

/*
	ANTHROPIC MESSAGES API - STREAMING EVENTS
*/

// streamEvent covers every SSE event type; Type selects the populated
// fields.
type streamEvent struct {
	Type         string            `json:"type"`
	Message      *messagesResponse `json:"message,omitempty"`       // message_start
	Index        int               `json:"index"`                   // content_block_*
	ContentBlock *responseBlock    `json:"content_block,omitempty"` // content_block_start
	Delta        *streamDelta      `json:"delta,omitempty"`         // content_block_delta, message_delta
	Usage        *usage            `json:"usage,omitempty"`         // message_delta
	Error        *apiError         `json:"error,omitempty"`         // error
}

type streamDelta struct {
	Type        string `json:"type,omitempty"` // text_delta, thinking_delta, signature_delta, input_json_delta
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

/*
	PROVIDER OPTIONS
*/

// ProviderOptions is decoded from the "anthropic" provider options entry.
type ProviderOptions struct {
	// SendReasoning controls whether reasoning parts of earlier assistant
	// turns are replayed as thinking blocks. Defaults to true.
	SendReasoning          *bool           `json:"sendReasoning,omitempty"`
	Thinking               *ThinkingConfig `json:"thinking,omitempty"`
	DisableParallelToolUse bool            `json:"disableParallelToolUse,omitempty"`
	// CacheControl marks the system prompt and the tool list as cacheable.
	CacheControl *CacheControl `json:"cacheControl,omitempty"`
	// ToolStreaming enables fine-grained tool input streaming. Defaults to
	// true on streaming calls.
	ToolStreaming *bool  `json:"toolStreaming,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// ThinkingConfig enables extended thinking with a token budget.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled" or "disabled"
	BudgetTokens int    `json:"budgetTokens,omitempty"`
}

// CacheControl is an Anthropic prompt caching breakpoint.
type CacheControl struct {
	Type string `json:"type"`          // "ephemeral"
	TTL  string `json:"ttl,omitempty"` // "5m" or "1h"
}
