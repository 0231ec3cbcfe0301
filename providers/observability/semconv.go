package observability

// Semantic conventions shared by adapters, the step executor, the agent loop
// and the storage backends.

// --- LLM Attributes ---

const (
	AttrLLMProvider     = "llm.provider"
	AttrLLMModel        = "llm.model"
	AttrLLMEndpoint     = "llm.endpoint"
	AttrLLMResponseID   = "llm.response.id"
	AttrLLMFinishReason = "llm.finish_reason"
	AttrLLMStreaming    = "llm.streaming"
	AttrLLMWarnings     = "llm.warnings"
)

// --- Token Usage Attributes ---

const (
	AttrLLMUsageInput     = "llm.usage.input_tokens"     // #nosec G101 -- LLM token counts, not credentials
	AttrLLMUsageOutput    = "llm.usage.output_tokens"    // #nosec G101
	AttrLLMUsageTotal     = "llm.usage.total_tokens"     // #nosec G101
	AttrLLMUsageCached    = "llm.usage.cached_tokens"    // #nosec G101
	AttrLLMUsageReasoning = "llm.usage.reasoning_tokens" // #nosec G101

	// AttrTokenType distinguishes input and output on the token counter.
	AttrTokenType = "llm.token.type" // #nosec G101
)

// --- Tool Attributes ---

const (
	AttrToolName       = "tool.name"
	AttrToolCallID     = "tool.call_id"
	AttrToolInput      = "tool.input"
	AttrToolOutputKind = "tool.output.kind"
	AttrToolDuration   = "tool.duration"
	AttrToolError      = "tool.error"
	AttrToolApproval   = "tool.approval"
	AttrToolsCount     = "tool.count"
)

// --- Agent Attributes ---

const (
	AttrAgentStep          = "agent.step"
	AttrAgentMaxSteps      = "agent.max_steps"
	AttrAgentSessionID     = "agent.session_id"
	AttrAgentPaused        = "agent.paused"
	AttrAgentToolCalls     = "agent.tool_calls"
	AttrRequestMessages    = "request.messages_count"
	AttrStorageMessageRole = "storage.message.role"
)

// --- HTTP Attributes ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
	AttrHTTPDuration         = "http.duration"
)

// --- General Attributes ---

const (
	AttrError     = "error"
	AttrErrorKind = "error.kind"
	AttrDuration  = "duration"
)

// --- Span Names ---

const (
	SpanAgentRun      = "agent.run"
	SpanAgentStep     = "agent.step"
	SpanLLMRequest    = "llm.request"
	SpanToolExecution = "tool.execution"
	SpanStorageWrite  = "storage.write"
	SpanAdapterCall   = "llm.adapter.call"
)

// --- Event Names ---

const (
	EventHTTPRequest       = "http.request"
	EventHTTPResponse      = "http.response"
	EventHTTPError         = "http.error"
	EventHTTPStreamStarted = "http.stream.started"

	EventStepFinished    = "agent.step.finished"
	EventApprovalPending = "agent.approval.pending"
	EventToolStart       = "tool.execution.start"
	EventToolEnd         = "tool.execution.end"
	EventStreamWarning   = "llm.stream.warning"
	EventStreamFirstPart = "llm.stream.first_part"
)

// --- Metric Names ---

const (
	MetricAgentSteps   = "llmkit.agent.steps"
	MetricToolCalls    = "llmkit.tool.calls"
	MetricUsageTokens  = "llmkit.usage.tokens" // #nosec G101
	MetricToolDuration = "llmkit.tool.duration"
	MetricLLMRequests  = "llmkit.llm.requests"
	MetricLLMDuration  = "llmkit.llm.duration"

	// Recorded by the core/client observability middleware.
	MetricAdapterCalls     = "llmkit.adapter.calls"
	MetricAdapterFirstPart = "llmkit.adapter.time_to_first_part"
)
