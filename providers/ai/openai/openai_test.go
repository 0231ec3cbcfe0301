package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, options ...Option) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	options = append([]Option{WithAPIKey("test-key"), WithBaseURL(server.URL)}, options...)
	return New("gpt-4o-mini", options...)
}

// decodeRequest reads the request body into a generic map.
func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENAI_API_BASE_URL", "")

	a := New("gpt-4o")
	assert.Equal(t, "env-key", a.apiKey)
	assert.Equal(t, defaultBaseURL, a.baseURL)
	assert.Equal(t, ProviderName, a.Provider())
	assert.Equal(t, "gpt-4o", a.ModelID())
	assert.True(t, a.Capabilities().StructuredOutput)

	local := New("llama3", WithBaseURL("http://localhost:11434/v1/"), WithName("ollama"))
	assert.Equal(t, "http://localhost:11434/v1", local.baseURL)
	assert.Equal(t, "ollama", local.Provider())
	assert.False(t, local.Capabilities().StructuredOutput)

	forced := New("llama3", WithBaseURL("http://localhost:11434/v1"), WithCapabilities(ai.Capabilities{StructuredOutput: true}))
	assert.True(t, forced.Capabilities().StructuredOutput)
}

func TestDetectCapabilities(t *testing.T) {
	tests := []struct {
		url        string
		structured bool
		parallel   bool
	}{
		{"https://api.openai.com/v1", true, true},
		{"https://myorg.openai.azure.com/openai", true, true},
		{"http://127.0.0.1:11434/v1", false, false},
		{"https://openrouter.ai/api/v1", true, true},
		{"https://llm.internal.example/v1", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			profile := detectCapabilities(tt.url)
			assert.Equal(t, tt.structured, profile.capabilities.StructuredOutput)
			assert.Equal(t, tt.parallel, profile.parallelTools)
			assert.True(t, profile.capabilities.Streaming)
		})
	}
}

func TestConvertPrompt(t *testing.T) {
	prompt := ai.Prompt{
		ai.SystemMessage("be brief"),
		ai.UserText("weather in SF?"),
		ai.UserMessage(
			ai.Text("what is this?"),
			ai.ImagePart{MediaType: "image/png", Data: ai.FileBytes([]byte{1, 2, 3})},
			ai.ImagePart{MediaType: "image/jpeg", Data: ai.FileURL("https://example.com/cat.jpg")},
		),
		ai.AssistantMessage(
			ai.ReasoningPart{Text: "need the weather tool"},
			ai.Text("Checking."),
			ai.ToolCallPart{ToolCallID: "call_1", ToolName: "weather", Input: json.RawMessage(`{"city":"SF"}`)},
		),
		ai.ToolMessage(ai.ToolResultPart{ToolCallID: "call_1", ToolName: "weather", Output: ai.JSONOutput(map[string]int{"temp": 18})}),
	}

	messages, warnings, err := convertPrompt(prompt)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	assert.Equal(t, chatMessage{Role: "system", Content: "be brief"}, messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "weather in SF?"}, messages[1])

	parts, ok := messages[2].Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "data:image/png;base64,AQID", parts[1].ImageURL.URL)
	assert.Equal(t, "https://example.com/cat.jpg", parts[2].ImageURL.URL)

	assistant := messages[3]
	assert.Equal(t, "Checking.", assistant.Content)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, chatToolCall{ID: "call_1", Type: "function", Function: chatFunctionCall{Name: "weather", Arguments: `{"city":"SF"}`}}, assistant.ToolCalls[0])

	tool := messages[4]
	assert.Equal(t, "tool", tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.JSONEq(t, `{"type":"tool-result","tool_call_id":"call_1","tool_name":"weather","output":{"kind":"json","value":{"temp":18}}}`, tool.Content.(string))

	require.Len(t, warnings, 1, "reasoning is dropped with a warning")
	assert.Equal(t, ai.WarningOther, warnings[0].Type)
}

func TestConvertPrompt_Files(t *testing.T) {
	_, _, err := convertPrompt(ai.Prompt{ai.UserMessage(ai.FilePart{MediaType: "video/mp4", Data: ai.FileBase64("AAAA")})})
	assert.Equal(t, ai.KindInvalidPrompt, ai.KindOf(err))

	messages, _, err := convertPrompt(ai.Prompt{ai.UserMessage(
		ai.FilePart{MediaType: "audio/wav", Data: ai.FileBase64("UklG")},
		ai.FilePart{MediaType: "application/pdf", Data: ai.FileBase64("JVBE"), Filename: "spec.pdf"},
	)})
	require.NoError(t, err)
	parts := messages[0].Content.([]contentPart)
	assert.Equal(t, &inputAudio{Data: "UklG", Format: "wav"}, parts[0].InputAudio)
	assert.Equal(t, &fileContent{Filename: "spec.pdf", FileData: "data:application/pdf;base64,JVBE"}, parts[1].File)
}

func TestBuildRequest_Options(t *testing.T) {
	a := New("gpt-4o", WithAPIKey("k"), WithBaseURL("https://api.openai.com/v1"))
	options := ai.CallOptions{
		Prompt:          ai.Prompt{ai.UserText("hi")},
		Tools:           []ai.ToolDefinition{{Name: "weather", Description: "Forecast", InputSchema: json.RawMessage(`{"type":"object"}`)}, {Name: "noop"}},
		ToolChoice:      ai.SpecificTool("weather"),
		ResponseFormat:  ai.JSONResponse(json.RawMessage(`{"type":"object"}`), "", ""),
		MaxOutputTokens: utils.Ptr(256),
		TopK:            utils.Ptr(5),
		StopSequences:   []string{"END"},
		ProviderOptions: ai.ProviderOptions{"openai": json.RawMessage(`{"parallelToolCalls":false,"user":"u-1","reasoningEffort":"low","strictJsonSchema":true}`)},
	}

	request, warnings, err := a.buildRequest(options)
	require.NoError(t, err)

	body, err := json.Marshal(request)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "gpt-4o",
		"messages": [{"role":"user","content":"hi"}],
		"tools": [
			{"type":"function","function":{"name":"weather","description":"Forecast","parameters":{"type":"object"}}},
			{"type":"function","function":{"name":"noop","parameters":{"type":"object","properties":{}}}}
		],
		"tool_choice": {"type":"function","function":{"name":"weather"}},
		"response_format": {"type":"json_schema","json_schema":{"name":"response","schema":{"type":"object"},"strict":true}},
		"max_completion_tokens": 256,
		"stop": ["END"],
		"parallel_tool_calls": false,
		"user": "u-1",
		"reasoning_effort": "low"
	}`, string(body))

	require.Len(t, warnings, 1)
	assert.Equal(t, "topK", warnings[0].Setting)
}

func TestBuildRequest_JSONFallbackAndChoices(t *testing.T) {
	a := New("llama3", WithBaseURL("http://localhost:11434/v1"))

	request, warnings, err := a.buildRequest(ai.CallOptions{
		Prompt:         ai.Prompt{ai.UserText("hi")},
		ResponseFormat: ai.JSONResponse(json.RawMessage(`{"type":"object"}`), "out", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, &chatResponseFormat{Type: "json_object"}, request.ResponseFormat)
	require.Len(t, warnings, 1)
	assert.Equal(t, "responseFormat", warnings[0].Setting)

	for choice, want := range map[ai.ToolChoiceType]string{
		ai.ToolChoiceAuto:     "auto",
		ai.ToolChoiceNone:     "none",
		ai.ToolChoiceRequired: "required",
	} {
		assert.Equal(t, want, toolChoice(&ai.ToolChoice{Type: choice}))
	}
	assert.Nil(t, toolChoice(nil))

	_, _, err = a.buildRequest(ai.CallOptions{})
	assert.Equal(t, ai.KindInvalidPrompt, ai.KindOf(err))
}

func TestGenerate(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "trace-1", r.Header.Get("X-Trace"))

		body := decodeRequest(t, r)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Nil(t, body["stream"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"created": 1700000000,
			"model": "gpt-4o-mini-2024",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "Let me check.",
					"tool_calls": [{"id":"call_a","type":"function","function":{"name":"weather","arguments":"{\"city\":\"SF\"}"}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {
				"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30,
				"prompt_tokens_details": {"cached_tokens": 5},
				"completion_tokens_details": {"reasoning_tokens": 2}
			}
		}`)
	})

	response, err := a.Generate(context.Background(), ai.CallOptions{
		Prompt:  ai.Prompt{ai.UserText("weather?")},
		Tools:   []ai.ToolDefinition{{Name: "weather"}},
		Headers: map[string]string{"X-Trace": "trace-1"},
	})
	require.NoError(t, err)

	require.Len(t, response.Content, 2)
	assert.Equal(t, ai.TextPart{Text: "Let me check."}, response.Content[0])
	assert.Equal(t, ai.ToolCallPart{ToolCallID: "call_a", ToolName: "weather", Input: json.RawMessage(`{"city":"SF"}`)}, response.Content[1])
	assert.Equal(t, ai.FinishToolCalls.WithRaw("tool_calls"), response.FinishReason)
	assert.Equal(t, ai.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30, CachedInputTokens: 5, ReasoningTokens: 2}, response.Usage)
	assert.Equal(t, "chatcmpl-1", response.Response.ID)
	assert.Equal(t, "gpt-4o-mini-2024", response.Response.ModelID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), response.Response.Timestamp)
	assert.NotEmpty(t, response.Response.Body)
	assert.NotEmpty(t, response.Request.Body)
}

func TestGenerate_ReasoningAndRefusal(t *testing.T) {
	reply := `{"id":"1","choices":[{"message":{"content":"<think>2+2 is 4</think>\n\nFour."},"finish_reason":"stop"}]}`
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, reply)
	})

	response, err := a.Generate(context.Background(), ai.CallOptions{Prompt: ai.Prompt{ai.UserText("2+2?")}})
	require.NoError(t, err)
	assert.Equal(t, []ai.Part{ai.ReasoningPart{Text: "2+2 is 4"}, ai.TextPart{Text: "Four."}}, response.Content)

	reply = `{"id":"2","choices":[{"message":{"content":null,"refusal":"I can't help with that."},"finish_reason":"stop"}]}`
	response, err = a.Generate(context.Background(), ai.CallOptions{Prompt: ai.Prompt{ai.UserText("?")}})
	require.NoError(t, err)
	assert.Equal(t, []ai.Part{ai.TextPart{Text: "I can't help with that."}}, response.Content)
	assert.Equal(t, true, response.ProviderMetadata["openai"]["refusal"])
}

func TestGenerate_ToolCallsWrittenAsContent(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"<TOOLCALL>[{\"name\": \"weather\", \"arguments\": {\"city\": \"Rome\"},}]</TOOLCALL>"},"finish_reason":"stop"}]}`)
	})

	response, err := a.Generate(context.Background(), ai.CallOptions{
		Prompt: ai.Prompt{ai.UserText("weather in Rome")},
		Tools:  []ai.ToolDefinition{{Name: "weather"}},
	})
	require.NoError(t, err)

	require.Len(t, response.Content, 1)
	call, ok := response.Content[0].(ai.ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "call_0", call.ToolCallID)
	assert.Equal(t, "weather", call.ToolName)
	assert.JSONEq(t, `{"city":"Rome"}`, string(call.Input))
	assert.True(t, response.FinishReason.Is(ai.FinishKindToolCalls))
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		kind   ai.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, nil, `{"error":{"message":"bad key"}}`, ai.KindAuthFailed},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, `{"error":{"message":"slow down"}}`, ai.KindRateLimited},
		{"bad request", http.StatusBadRequest, nil, `{"error":{"message":"messages is required"}}`, ai.KindInvalidRequest},
		{"server", http.StatusBadGateway, nil, `upstream`, ai.KindProviderTransient},
		{"no choices", http.StatusOK, nil, `{"id":"x","choices":[]}`, ai.KindEmptyResponseBody},
		{"empty body", http.StatusOK, nil, ``, ai.KindEmptyResponseBody},
		{"garbage", http.StatusOK, nil, `{"choices":`, ai.KindSchemaViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := a.Generate(context.Background(), ai.CallOptions{Prompt: ai.Prompt{ai.UserText("hi")}})
			require.Error(t, err)
			assert.Equal(t, tt.kind, ai.KindOf(err))

			var aiErr *ai.Error
			require.ErrorAs(t, err, &aiErr)
			assert.Equal(t, "openai", aiErr.Provider)
			if tt.kind == ai.KindRateLimited {
				assert.True(t, ai.IsRetryable(err))
				assert.Equal(t, 7*time.Second, ai.RetryAfter(err))
				assert.Equal(t, "slow down", aiErr.Message)
			}
		})
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]ai.FinishKind{
		"stop":           ai.FinishKindStop,
		"length":         ai.FinishKindLength,
		"tool_calls":     ai.FinishKindToolCalls,
		"function_call":  ai.FinishKindToolCalls,
		"content_filter": ai.FinishKindContentFilter,
		"eos":            ai.FinishKindUnknown,
		"":               ai.FinishKindUnknown,
	}
	for raw, kind := range tests {
		got := mapFinishReason(raw)
		assert.Equal(t, kind, got.Kind, raw)
		assert.Equal(t, raw, got.Raw)
	}
}

func TestParseToolCallsFromContent(t *testing.T) {
	calls := parseToolCallsFromContent(`[{"name":"a","arguments":"{\"x\":1}"},{"name":"b"},{"arguments":{}}]`)
	require.Len(t, calls, 2)
	assert.Equal(t, `{"x":1}`, calls[0].Function.Arguments)
	assert.Equal(t, "{}", calls[1].Function.Arguments)

	assert.Empty(t, parseToolCallsFromContent("just prose"))
	assert.False(t, looksLikeToolCalls("Here is [a list] of things"))
}

func TestThinkTags(t *testing.T) {
	assert.Equal(t, "plan", extractThinkTags("<think> plan </think>answer"))
	assert.Equal(t, "plan", extractThinkTags("plan</think>answer"), "start tag is optional")
	assert.Empty(t, extractThinkTags("<think>unterminated"))
	assert.Equal(t, "answer", stripThinkTags("<think>plan</think> answer"))
	assert.Equal(t, "no tags", stripThinkTags("no tags"))
}
