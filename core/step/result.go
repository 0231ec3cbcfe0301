package step

import (
	"strings"

	"github.com/leofalp/llmkit/providers/ai"
)

// Result is the assembled output of one model call.
type Result struct {
	// Content holds the parts in block close order.
	Content          []ai.Part
	FinishReason     ai.FinishReason
	Usage            ai.Usage
	ProviderMetadata ai.ProviderMetadata
	Warnings         []ai.Warning
	Sources          []ai.Source
	Request          ai.RequestMetadata
	Response         ai.ResponseMetadata
	Provider         string
	ModelID          string
}

// Text concatenates the text parts.
func (r *Result) Text() string {
	return ai.TextOf(r.Content)
}

// Reasoning concatenates the reasoning parts.
func (r *Result) Reasoning() string {
	var b strings.Builder
	for _, p := range ai.PartsOf[ai.ReasoningPart](r.Content) {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r *Result) ToolCalls() []ai.ToolCallPart {
	return ai.PartsOf[ai.ToolCallPart](r.Content)
}

func (r *Result) ToolResults() []ai.ToolResultPart {
	return ai.PartsOf[ai.ToolResultPart](r.Content)
}

func (r *Result) ApprovalRequests() []ai.ApprovalRequestPart {
	return ai.PartsOf[ai.ApprovalRequestPart](r.Content)
}

// AppendContent adds parts produced after the model call, such as approval
// requests raised by the agent loop.
func (r *Result) AppendContent(parts ...ai.Part) {
	r.Content = append(r.Content, parts...)
}
