package anthropic

import (
	"slices"
	"strings"

	"github.com/leofalp/llmkit/providers/ai"
)

// Known anthropic-beta header values. Any other string may be passed to
// WithBeta as well.
const (
	// BetaInterleavedThinking enables thinking blocks between tool calls.
	BetaInterleavedThinking = "interleaved-thinking-2025-05-14"

	// BetaFineGrainedToolStreaming streams tool input without buffering
	// whole JSON values server side.
	BetaFineGrainedToolStreaming = "fine-grained-tool-streaming-2025-05-14"

	// BetaContextManagement enables the memory tool.
	BetaContextManagement = "context-management-2025-06-27"
)

// defaultCapabilities applies to every Claude model served by the Messages
// API. Structured output is emulated through the json tool.
var defaultCapabilities = ai.Capabilities{
	StructuredOutput: false,
	ToolCalling:      true,
	Streaming:        true,
	Reasoning:        true,
	Vision:           true,
}

// modelLimit returns the maximum output tokens for modelID. known is false
// for unrecognised models, which get a conservative default and are never
// capped.
func modelLimit(modelID string) (maxTokens int, known bool) {
	switch {
	case strings.Contains(modelID, "claude-sonnet-4-"),
		strings.Contains(modelID, "claude-3-7-sonnet"),
		strings.Contains(modelID, "claude-haiku-4-5"):
		return 64000, true
	case strings.Contains(modelID, "claude-opus-4-"):
		return 32000, true
	case strings.Contains(modelID, "claude-3-5-haiku"):
		return 8192, true
	case strings.Contains(modelID, "claude-3-haiku"):
		return 4096, true
	default:
		return 4096, false
	}
}

// betaHeader joins the configured and per-request betas, deduplicated and
// sorted so the header is stable across calls.
func betaHeader(configured []string, extra ...string) string {
	all := slices.Concat(configured, extra)
	if len(all) == 0 {
		return ""
	}
	slices.Sort(all)
	return strings.Join(slices.Compact(all), ",")
}
