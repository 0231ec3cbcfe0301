// Package openai implements the ai.Adapter contract for OpenAI-compatible
// Chat Completions APIs (OpenAI, Azure OpenAI, Ollama, OpenRouter and any
// server speaking the same wire format).
//
// The main entry point is [New], which reads OPENAI_API_KEY and
// OPENAI_API_BASE_URL from the environment and detects capabilities for
// well-known hosts. Use [WithAPIKey], [WithBaseURL] and [WithCapabilities]
// to override them, and [WithName] to publish metadata under a different
// provider key when talking to a compatible service.
//
// Streaming uses /chat/completions with stream=true and
// stream_options.include_usage; tool call arguments are emitted as
// tool-input blocks that the assembler turns into tool calls.
package openai
