package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/tool"
)

// toolOutcome is what the loop learned from the tool calls of one step.
type toolOutcome struct {
	// results are in tool call order.
	results   []ai.ToolResultPart
	approvals []ai.ApprovalRequestPart
	// unanswered counts calls left for the host: client-side tools and
	// calls waiting for approval.
	unanswered int
}

type toolJob struct {
	index      int
	call       ai.ToolCallPart
	descriptor *tool.Descriptor
}

// handleToolCalls answers the tool calls of res. Invalid or unknown calls get
// error results, approval-gated calls without a response raise approval
// requests, and the rest run concurrently. Repaired calls replace the
// originals in res.Content.
func (a *Agent) handleToolCalls(ctx context.Context, prompt ai.Prompt, res *step.Result, stepNumber int, emit func(Event)) toolOutcome {
	var outcome toolOutcome
	calls := res.ToolCalls()
	slots := make([]*ai.ToolResultPart, len(calls))
	var jobs []toolJob

	for i, call := range calls {
		if call.ProviderExecuted {
			continue
		}

		descriptor, ok := a.cfg.tools.Lookup(call.ToolName)
		if !ok {
			slots[i] = errorResult(call, ai.NewError(ai.KindNoSuchTool, "tool %q is not available", call.ToolName))
			continue
		}

		checked, repaired, err := a.checkInput(ctx, call)
		if err != nil {
			slots[i] = errorResult(call, err)
			continue
		}
		if repaired {
			replaceCall(res, checked)
			call = checked
		}

		if descriptor.ClientSide() {
			outcome.unanswered++
			continue
		}

		needed, err := tool.IsApprovalNeeded(ctx, descriptor, call, tool.ApprovalContext{ToolCallID: call.ToolCallID, Messages: prompt})
		if err != nil {
			slots[i] = errorResult(call, ai.WrapError(ai.KindToolExecution, err, "tool %q: approval check failed", call.ToolName))
			continue
		}
		if needed {
			response, found := findApprovalResponse(prompt, call.ToolCallID)
			switch {
			case !found:
				request := ai.ApprovalRequestPart{ApprovalID: approvalID(call.ToolCallID), ToolCallID: call.ToolCallID}
				outcome.approvals = append(outcome.approvals, request)
				outcome.unanswered++
				emit(Event{Type: EventApprovalRequest, Step: stepNumber, ToolName: call.ToolName, ApprovalRequest: &request})
				continue
			case !response.Approved:
				denied := deniedResult(call, response.Reason)
				slots[i] = &denied
				continue
			}
		}

		jobs = append(jobs, toolJob{index: i, call: call, descriptor: descriptor})
	}

	a.runJobs(ctx, prompt, jobs, slots, stepNumber, emit)

	for _, slot := range slots {
		if slot == nil {
			continue
		}
		outcome.results = append(outcome.results, *slot)
		emit(Event{Type: EventToolResult, Step: stepNumber, ToolName: slot.ToolName, ToolResult: slot})
	}
	return outcome
}

// runJobs executes jobs concurrently and stores each result in its slot.
// Preliminary results are forwarded from the calling goroutine.
func (a *Agent) runJobs(ctx context.Context, prompt ai.Prompt, jobs []toolJob, slots []*ai.ToolResultPart, stepNumber int, emit func(Event)) {
	if len(jobs) == 0 {
		return
	}

	snapshot := prompt.Clone()
	preliminary := make(chan ai.ToolResultPart)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Go(func() {
			result := a.executeTool(ctx, snapshot, job, func(p ai.ToolResultPart) {
				select {
				case preliminary <- p:
				case <-ctx.Done():
				}
			})
			slots[job.index] = &result
		})
	}
	go func() {
		wg.Wait()
		close(preliminary)
	}()

	for p := range preliminary {
		if a.cfg.onPreliminary != nil {
			a.cfg.onPreliminary(p)
		}
		emit(Event{Type: EventToolResult, Step: stepNumber, ToolName: p.ToolName, ToolResult: &p})
	}
}

func (a *Agent) executeTool(ctx context.Context, prompt ai.Prompt, job toolJob, onPreliminary func(ai.ToolResultPart)) ai.ToolResultPart {
	observer := a.observer(ctx)
	attrs := []observability.Attribute{observability.String(observability.AttrToolName, job.call.ToolName)}

	start := time.Now()
	result := tool.Execute(ctx, job.descriptor, job.call, tool.CallContext{ToolCallID: job.call.ToolCallID, Messages: prompt}, onPreliminary)
	elapsed := time.Since(start)

	observer.Counter(observability.MetricToolCalls).Add(ctx, 1, attrs...)
	observer.Histogram(observability.MetricToolDuration).Record(ctx, elapsed.Seconds(), attrs...)
	if result.Output.IsError() {
		observer.Warn(ctx, "tool call failed",
			observability.String(observability.AttrToolName, job.call.ToolName),
			observability.String(observability.AttrToolCallID, job.call.ToolCallID),
			observability.String(observability.AttrToolError, result.Output.Text()),
		)
	} else {
		observer.Debug(ctx, "tool call finished",
			observability.String(observability.AttrToolName, job.call.ToolName),
			observability.Duration(observability.AttrToolDuration, elapsed),
		)
	}
	return result
}

// checkInput validates call, giving the repair hook one chance to fix it.
func (a *Agent) checkInput(ctx context.Context, call ai.ToolCallPart) (ai.ToolCallPart, bool, error) {
	cause := a.validate(call)
	if cause == nil {
		return call, false, nil
	}
	if a.cfg.repair == nil {
		return call, false, cause
	}

	fixed, err := a.cfg.repair(ctx, call, cause)
	if err != nil || fixed == nil {
		return call, false, cause
	}
	fixed.Invalid = false
	fixed.Error = ""
	if err := a.validate(*fixed); err != nil {
		return call, false, err
	}
	return *fixed, true, nil
}

func (a *Agent) validate(call ai.ToolCallPart) error {
	if call.Invalid {
		message := strings.TrimPrefix(call.Error, string(ai.KindInvalidToolInput)+": ")
		if message == "" {
			message = "tool input is invalid"
		}
		return ai.NewError(ai.KindInvalidToolInput, "%s", message)
	}
	return a.cfg.tools.ValidateInput(call.ToolName, call.Input)
}

func replaceCall(res *step.Result, call ai.ToolCallPart) {
	for i, part := range res.Content {
		if existing, ok := part.(ai.ToolCallPart); ok && existing.ToolCallID == call.ToolCallID {
			res.Content[i] = call
			return
		}
	}
}

func errorResult(call ai.ToolCallPart, err error) *ai.ToolResultPart {
	return &ai.ToolResultPart{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Output:     ai.OutputFromError(err),
	}
}
