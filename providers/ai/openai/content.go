package openai

import (
	"encoding/json"
	"strings"

	"github.com/leofalp/llmkit/core/parse"
)

const (
	thinkStart = "<think>"
	thinkEnd   = "</think>"
)

// extractThinkTags returns the text inside <think>...</think>, used by
// models (DeepSeek, Qwen) that inline their reasoning. A missing start tag
// means the reasoning runs from the beginning; the end tag is mandatory.
func extractThinkTags(content string) string {
	start := strings.Index(content, thinkStart)
	if start == -1 {
		start = 0
	} else {
		start += len(thinkStart)
	}

	end := strings.Index(content, thinkEnd)
	if end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(content[start:end])
}

// stripThinkTags removes the think block, keeping the final answer.
func stripThinkTags(content string) string {
	end := strings.Index(content, thinkEnd)
	if end == -1 {
		return content
	}
	return strings.TrimSpace(content[end+len(thinkEnd):])
}

// contentMarkers are emitted around inline tool calls by some OpenRouter
// hosted models.
var contentMarkers = []string{
	"<|END OF THOUGHT|>",
	"<|END_OF_THOUGHT|>",
	"<|endofthought|>",
	"[/TOOLCALL]",
	"</THOUGHT>",
	"<THOUGHT>",
}

// looksLikeToolCalls is a cheap guard before attempting content parsing.
func looksLikeToolCalls(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.Contains(trimmed, "<TOOLCALL>") ||
		(strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed, `"name"`))
}

// parseToolCallsFromContent recovers tool calls that a model wrote into its
// text instead of the tool_calls field, either as <TOOLCALL>[...]</TOOLCALL>
// or as a bare JSON array. Malformed JSON is repaired by parse.ParseStringAs.
// The returned calls have no ids.
func parseToolCallsFromContent(content string) []chatToolCall {
	cleaned := strings.TrimSpace(content)
	for _, marker := range contentMarkers {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}

	if start := strings.Index(cleaned, "<TOOLCALL>"); start != -1 {
		body := cleaned[start+len("<TOOLCALL>"):]
		if end := strings.Index(body, "</TOOLCALL>"); end != -1 {
			body = body[:end]
		}
		if calls := parseToolCallArray(body); len(calls) > 0 {
			return calls
		}
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start != -1 && end > start {
		return parseToolCallArray(cleaned[start : end+1])
	}
	return nil
}

func parseToolCallArray(text string) []chatToolCall {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !strings.HasPrefix(text, "[") {
		text = "[" + text
	}
	if !strings.HasSuffix(text, "]") {
		last := strings.LastIndex(text, "}")
		if last <= 0 {
			return nil
		}
		text = text[:last+1] + "]"
	}

	type inlineCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	parsed, err := parse.ParseStringAs[[]inlineCall](text)
	if err != nil {
		return nil
	}

	var calls []chatToolCall
	for _, call := range parsed {
		if call.Name == "" {
			continue
		}
		arguments := "{}"
		if len(call.Arguments) > 0 {
			arguments = string(call.Arguments)
		}
		var encoded string
		if json.Unmarshal(call.Arguments, &encoded) == nil {
			arguments = encoded
		}
		calls = append(calls, chatToolCall{
			Type:     "function",
			Function: chatFunctionCall{Name: call.Name, Arguments: arguments},
		})
	}
	return calls
}
