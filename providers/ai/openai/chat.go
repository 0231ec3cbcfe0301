package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

/*
	CHAT COMPLETIONS API - REQUEST TYPES
*/

type chatRequest struct {
	Model               string              `json:"model"`
	Messages            []chatMessage       `json:"messages"`
	Tools               []chatTool          `json:"tools,omitempty"`
	ToolChoice          any                 `json:"tool_choice,omitempty"` // "auto" | "none" | "required" | {"type":"function",...}
	ResponseFormat      *chatResponseFormat `json:"response_format,omitempty"`
	MaxCompletionTokens *int                `json:"max_completion_tokens,omitempty"`
	Temperature         *float64            `json:"temperature,omitempty"`
	TopP                *float64            `json:"top_p,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	PresencePenalty     *float64            `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64            `json:"frequency_penalty,omitempty"`
	Seed                *int                `json:"seed,omitempty"`
	ParallelToolCalls   *bool               `json:"parallel_tool_calls,omitempty"`
	User                string              `json:"user,omitempty"`
	ReasoningEffort     string              `json:"reasoning_effort,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	StreamOptions       *streamOptions      `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatMessage is one entry of the messages array. Content is a string or a
// []contentPart for multimodal user messages.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type contentPart struct {
	Type       string       `json:"type"` // "text" | "image_url" | "input_audio" | "file"
	Text       string       `json:"text,omitempty"`
	ImageURL   *imageURL    `json:"image_url,omitempty"`
	InputAudio *inputAudio  `json:"input_audio,omitempty"`
	File       *fileContent `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"` // "wav" | "mp3"
}

type fileContent struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON encoded as a string
}

type chatTool struct {
	Type     string       `json:"type"` // always "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponseFormat struct {
	Type       string            `json:"type"` // "json_object" | "json_schema"
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Strict      bool            `json:"strict,omitempty"`
}

/*
	CHAT COMPLETIONS API - RESPONSE TYPES
*/

type chatResponse struct {
	ID      string       `json:"id"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
	Refusal *string `json:"refusal,omitempty"`
	// Reasoning is sent by OpenRouter and Ollama, ReasoningContent by DeepSeek.
	Reasoning        *string        `json:"reasoning,omitempty"`
	ReasoningContent *string        `json:"reasoning_content,omitempty"`
	ToolCalls        []chatToolCall `json:"tool_calls,omitempty"`
}

type chatUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

// ProviderOptions are the settings accepted under the adapter's provider key
// in ai.CallOptions.ProviderOptions.
type ProviderOptions struct {
	ParallelToolCalls *bool  `json:"parallelToolCalls,omitempty"`
	User              string `json:"user,omitempty"`
	ReasoningEffort   string `json:"reasoningEffort,omitempty"`
	// StrictJSONSchema asks the API to enforce the response schema strictly.
	StrictJSONSchema bool `json:"strictJsonSchema,omitempty"`
}

/*
	REQUEST MAPPING
*/

// buildRequest maps call options onto a chat completion request, collecting
// warnings for settings the endpoint cannot honour.
func (a *Adapter) buildRequest(options ai.CallOptions) (*chatRequest, []ai.Warning, error) {
	if err := options.Validate(); err != nil {
		return nil, nil, err
	}

	var providerOptions ProviderOptions
	if _, err := options.ProviderOption(a.name, &providerOptions); err != nil {
		return nil, nil, err
	}

	messages, warnings, err := convertPrompt(options.Prompt)
	if err != nil {
		return nil, nil, err
	}

	request := &chatRequest{
		Model:               a.modelID,
		Messages:            messages,
		MaxCompletionTokens: options.MaxOutputTokens,
		Temperature:         options.Temperature,
		TopP:                options.TopP,
		Stop:                options.StopSequences,
		PresencePenalty:     options.PresencePenalty,
		FrequencyPenalty:    options.FrequencyPenalty,
		Seed:                options.Seed,
		User:                providerOptions.User,
		ReasoningEffort:     providerOptions.ReasoningEffort,
	}

	if options.TopK != nil {
		warnings = append(warnings, ai.UnsupportedSetting("topK", "chat completions has no top_k parameter"))
	}

	if len(options.Tools) > 0 {
		for _, definition := range options.Tools {
			parameters := definition.InputSchema
			if len(parameters) == 0 {
				parameters = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			request.Tools = append(request.Tools, chatTool{
				Type: "function",
				Function: chatFunction{
					Name:        definition.Name,
					Description: definition.Description,
					Parameters:  parameters,
				},
			})
		}
		request.ToolChoice = toolChoice(options.ToolChoice)

		if providerOptions.ParallelToolCalls != nil {
			if a.profile.parallelTools {
				request.ParallelToolCalls = providerOptions.ParallelToolCalls
			} else {
				warnings = append(warnings, ai.UnsupportedSetting("parallelToolCalls", "host does not accept parallel_tool_calls"))
			}
		}
	} else if options.ToolChoice != nil && options.ToolChoice.Type != ai.ToolChoiceNone {
		warnings = append(warnings, ai.UnsupportedSetting("toolChoice", "tool choice without tools is ignored"))
	}

	if format := options.ResponseFormat; format.IsJSON() {
		switch {
		case len(format.Schema) > 0 && a.profile.capabilities.StructuredOutput:
			name := format.Name
			if name == "" {
				name = "response"
			}
			request.ResponseFormat = &chatResponseFormat{
				Type: "json_schema",
				JSONSchema: &jsonSchemaFormat{
					Name:        name,
					Description: format.Description,
					Schema:      format.Schema,
					Strict:      providerOptions.StrictJSONSchema,
				},
			}
		case len(format.Schema) > 0:
			warnings = append(warnings, ai.UnsupportedSetting("responseFormat", "JSON schema is not supported by this host, falling back to json_object"))
			request.ResponseFormat = &chatResponseFormat{Type: "json_object"}
		default:
			request.ResponseFormat = &chatResponseFormat{Type: "json_object"}
		}
	}

	return request, warnings, nil
}

func toolChoice(choice *ai.ToolChoice) any {
	if choice == nil {
		return nil
	}
	switch choice.Type {
	case ai.ToolChoiceTool:
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice.ToolName},
		}
	case ai.ToolChoiceAuto, ai.ToolChoiceNone, ai.ToolChoiceRequired:
		return string(choice.Type)
	}
	return nil
}

// convertPrompt maps the provider-neutral prompt onto chat messages.
func convertPrompt(prompt ai.Prompt) ([]chatMessage, []ai.Warning, error) {
	var (
		messages         []chatMessage
		warnings         []ai.Warning
		droppedReasoning bool
	)

	for _, message := range prompt {
		switch message.Role {
		case ai.RoleSystem:
			messages = append(messages, chatMessage{Role: "system", Content: message.Text()})

		case ai.RoleUser:
			content, err := userContent(message.Parts)
			if err != nil {
				return nil, nil, err
			}
			messages = append(messages, chatMessage{Role: "user", Content: content})

		case ai.RoleAssistant:
			var (
				text  strings.Builder
				calls []chatToolCall
			)
			for _, part := range message.Parts {
				switch p := part.(type) {
				case ai.TextPart:
					text.WriteString(p.Text)
				case ai.ReasoningPart:
					droppedReasoning = true
				case ai.ToolCallPart:
					if p.ProviderExecuted {
						continue
					}
					arguments := string(p.Input)
					if arguments == "" {
						arguments = "{}"
					}
					calls = append(calls, chatToolCall{
						ID:       p.ToolCallID,
						Type:     "function",
						Function: chatFunctionCall{Name: p.ToolName, Arguments: arguments},
					})
				}
			}
			assistant := chatMessage{Role: "assistant", ToolCalls: calls}
			if text.Len() > 0 || len(calls) == 0 {
				assistant.Content = text.String()
			}
			messages = append(messages, assistant)

		case ai.RoleTool:
			for _, part := range message.Parts {
				result, ok := part.(ai.ToolResultPart)
				if !ok {
					continue
				}
				payload, err := json.Marshal(result)
				if err != nil {
					return nil, nil, ai.WrapError(ai.KindInvalidPrompt, err, "encode tool result %s", result.ToolCallID)
				}
				messages = append(messages, chatMessage{
					Role:       "tool",
					ToolCallID: result.ToolCallID,
					Content:    string(payload),
				})
			}
		}
	}

	if droppedReasoning {
		warnings = append(warnings, ai.Warning{Type: ai.WarningOther, Message: "reasoning parts are not sent to chat completions"})
	}
	return messages, warnings, nil
}

// userContent returns a plain string for a single text part, otherwise a
// list of content parts.
func userContent(parts []ai.Part) (any, error) {
	if len(parts) == 1 {
		if text, ok := parts[0].(ai.TextPart); ok {
			return text.Text, nil
		}
	}

	content := make([]contentPart, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case ai.TextPart:
			content = append(content, contentPart{Type: "text", Text: p.Text})
		case ai.ImagePart:
			content = append(content, contentPart{Type: "image_url", ImageURL: &imageURL{URL: fileURL(p.MediaType, p.Data)}})
		case ai.FilePart:
			converted, err := fileContentPart(p)
			if err != nil {
				return nil, err
			}
			content = append(content, converted)
		}
	}
	return content, nil
}

func fileContentPart(p ai.FilePart) (contentPart, error) {
	switch {
	case strings.HasPrefix(p.MediaType, "image/"):
		return contentPart{Type: "image_url", ImageURL: &imageURL{URL: fileURL(p.MediaType, p.Data)}}, nil

	case strings.HasPrefix(p.MediaType, "audio/"):
		format := audioFormat(p.MediaType)
		if format == "" || p.Data.URL != "" {
			return contentPart{}, ai.NewError(ai.KindInvalidPrompt, "audio %s must be inline wav or mp3", p.MediaType)
		}
		return contentPart{Type: "input_audio", InputAudio: &inputAudio{Data: base64Data(p.Data), Format: format}}, nil

	case p.MediaType == "application/pdf":
		if p.Data.URL != "" {
			return contentPart{}, ai.NewError(ai.KindInvalidPrompt, "PDF files must be inline")
		}
		filename := p.Filename
		if filename == "" {
			filename = "document.pdf"
		}
		return contentPart{Type: "file", File: &fileContent{Filename: filename, FileData: fileURL(p.MediaType, p.Data)}}, nil
	}
	return contentPart{}, ai.NewError(ai.KindInvalidPrompt, "media type %q is not supported by chat completions", p.MediaType)
}

// fileURL returns the remote URL or an inline data URL.
func fileURL(mediaType string, data ai.FileData) string {
	if data.URL != "" {
		return data.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64Data(data))
}

func base64Data(data ai.FileData) string {
	if data.Base64 != "" {
		return data.Base64
	}
	return base64.StdEncoding.EncodeToString(data.Bytes)
}

func audioFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	}
	return ""
}

/*
	RESPONSE MAPPING
*/

// convertResponse maps the first choice onto a generate response. Content
// order is reasoning, text, tool calls.
func (a *Adapter) convertResponse(response *chatResponse, toolsOffered bool) *ai.GenerateResponse {
	choice := response.Choices[0]
	message := choice.Message

	var (
		content []ai.Part
		text    = utils.Deref(message.Content, "")
	)

	reasoning := utils.Deref(message.Reasoning, "")
	if reasoning == "" {
		reasoning = utils.Deref(message.ReasoningContent, "")
	}
	if reasoning == "" {
		if extracted := extractThinkTags(text); extracted != "" {
			reasoning = extracted
			text = stripThinkTags(text)
		}
	}
	if reasoning != "" {
		content = append(content, ai.ReasoningPart{Text: reasoning})
	}

	finish := mapFinishReason(choice.FinishReason)
	calls := message.ToolCalls
	if len(calls) == 0 && toolsOffered && looksLikeToolCalls(text) {
		if parsed := parseToolCallsFromContent(text); len(parsed) > 0 {
			calls = parsed
			text = ""
			if finish.Is(ai.FinishKindStop) {
				finish = ai.FinishToolCalls.WithRaw(choice.FinishReason)
			}
		}
	}

	metadata := ai.ProviderMetadata{}
	if refusal := utils.Deref(message.Refusal, ""); refusal != "" {
		text += refusal
		metadata[a.name] = map[string]any{"refusal": true}
	}
	if text != "" {
		content = append(content, ai.TextPart{Text: text})
	}

	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		input := json.RawMessage(call.Function.Arguments)
		if len(strings.TrimSpace(call.Function.Arguments)) == 0 {
			input = json.RawMessage(`{}`)
		}
		content = append(content, ai.ToolCallPart{ToolCallID: id, ToolName: call.Function.Name, Input: input})
	}

	if len(metadata) == 0 {
		metadata = nil
	}

	return &ai.GenerateResponse{
		Content:          content,
		FinishReason:     finish,
		Usage:            mapUsage(response.Usage),
		ProviderMetadata: metadata,
		Response: ai.ResponseMetadata{
			ID:        response.ID,
			ModelID:   response.Model,
			Timestamp: unixTime(response.Created),
		},
	}
}

// mapFinishReason maps the finish_reason string onto the unified kinds.
func mapFinishReason(raw string) ai.FinishReason {
	switch raw {
	case "stop":
		return ai.FinishStop.WithRaw(raw)
	case "length":
		return ai.FinishLength.WithRaw(raw)
	case "tool_calls", "function_call":
		return ai.FinishToolCalls.WithRaw(raw)
	case "content_filter":
		return ai.FinishContentFilter.WithRaw(raw)
	}
	return ai.FinishUnknown.WithRaw(raw)
}

func mapUsage(usage *chatUsage) ai.Usage {
	if usage == nil {
		return ai.Usage{}
	}
	out := ai.Usage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		TotalTokens:  usage.TotalTokens,
	}
	if usage.PromptTokensDetails != nil {
		out.CachedInputTokens = usage.PromptTokensDetails.CachedTokens
	}
	if usage.CompletionTokensDetails != nil {
		out.ReasoningTokens = usage.CompletionTokensDetails.ReasoningTokens
	}
	return out
}
