package openai

import (
	"strings"

	"github.com/leofalp/llmkit/providers/ai"
)

// hostProfile is what the adapter knows about an OpenAI-compatible host.
type hostProfile struct {
	capabilities ai.Capabilities
	// parallelTools reports whether parallel_tool_calls may be forwarded.
	parallelTools bool
}

// detectCapabilities guesses the feature set of an endpoint from its base URL.
// Unknown hosts get conservative defaults; callers can override them with
// WithCapabilities.
func detectCapabilities(baseURL string) hostProfile {
	baseURL = strings.ToLower(baseURL)

	switch {
	// Real OpenAI API
	case strings.Contains(baseURL, "api.openai.com"):
		return hostProfile{
			capabilities: ai.Capabilities{
				StructuredOutput: true,
				ToolCalling:      true,
				Streaming:        true,
				Reasoning:        true,
				Vision:           true,
			},
			parallelTools: true,
		}

	// Azure OpenAI
	case strings.Contains(baseURL, "azure.com") || strings.Contains(baseURL, "openai.azure"):
		return hostProfile{
			capabilities: ai.Capabilities{
				StructuredOutput: true,
				ToolCalling:      true,
				Streaming:        true,
				Vision:           true,
			},
			parallelTools: true,
		}

	// Ollama
	case strings.Contains(baseURL, "localhost:11434") || strings.Contains(baseURL, "127.0.0.1:11434"):
		return hostProfile{
			capabilities: ai.Capabilities{
				ToolCalling: true,
				Streaming:   true,
				Vision:      true,
			},
		}

	// OpenRouter, structured output depends on the routed model
	case strings.Contains(baseURL, "openrouter.ai"):
		return hostProfile{
			capabilities: ai.Capabilities{
				StructuredOutput: true,
				ToolCalling:      true,
				Streaming:        true,
				Reasoning:        true,
				Vision:           true,
			},
			parallelTools: true,
		}
	}

	return hostProfile{
		capabilities: ai.Capabilities{
			ToolCalling: true,
			Streaming:   true,
		},
	}
}
