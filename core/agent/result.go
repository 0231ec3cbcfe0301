package agent

import (
	"fmt"

	"github.com/leofalp/llmkit/core/parse"
	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
)

// Result is the outcome of an agent run.
type Result struct {
	Steps     []*step.Result
	FinalStep *step.Result
	// TotalUsage is the field-wise sum of the step usages.
	TotalUsage ai.Usage
	// Content is the content of the final step, including approval requests
	// raised by the loop.
	Content []ai.Part
	// FinishReason is the final step's reason, or Other("max-steps") when the
	// step limit ended a run that still asked for tools.
	FinishReason ai.FinishReason
	// Messages are the messages the run appended to the input prompt.
	Messages ai.Prompt
	// Prompt is the full rolling prompt; pass it back to Run to continue.
	Prompt ai.Prompt
	// Paused is set when a tool call is waiting for approval.
	Paused           bool
	PendingApprovals []ai.ApprovalRequestPart
}

// Text returns the text of the final step.
func (r *Result) Text() string {
	return ai.TextOf(r.Content)
}

// Warnings collects the warnings of every step.
func (r *Result) Warnings() []ai.Warning {
	var out []ai.Warning
	for _, s := range r.Steps {
		out = append(out, s.Warnings...)
	}
	return out
}

// ParseOutput decodes the final text into T, tolerating code fences and
// surrounding prose.
func ParseOutput[T any](result *Result) (T, error) {
	var zero T
	if result == nil {
		return zero, fmt.Errorf("agent: nil result")
	}
	if result.Paused {
		return zero, fmt.Errorf("agent: run is paused waiting for %d approvals", len(result.PendingApprovals))
	}
	value, err := parse.ParseStringAs[T](result.Text())
	if err != nil {
		return zero, fmt.Errorf("agent: parse output: %w", err)
	}
	return value, nil
}
