// Package anthropic implements the ai.Adapter contract for Anthropic's
// Messages API.
//
// [New] reads ANTHROPIC_API_KEY and ANTHROPIC_API_BASE_URL from the
// environment; [WithAPIKey], [WithBaseURL] and [WithBeta] override them.
// Per-call settings such as extended thinking, prompt caching and parallel
// tool use are passed through the "anthropic" entry of
// ai.CallOptions.ProviderOptions, decoded into [ProviderOptions].
//
// Anthropic has no native JSON response format. A JSON request is served by
// a synthetic "json" tool carrying the schema and forced through
// tool_choice; the tool input is returned as text and the call finishes with
// Stop rather than ToolCalls.
package anthropic
