package agent

import (
	"context"
	"fmt"
	"slices"

	"github.com/leofalp/llmkit/core/assembler"
	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/observability/slogobs"
	"github.com/leofalp/llmkit/providers/storage"
)

// Agent runs the model/tool loop for one adapter. It holds no per-run state
// and can serve concurrent runs.
type Agent struct {
	adapter ai.Adapter
	cfg     config
}

// New returns an Agent for adapter.
//
// Example:
//
//	a := agent.New(adapter,
//	    agent.WithTools(registry),
//	    agent.WithMaxSteps(8),
//	    agent.WithStorage(sink, sessionID),
//	)
//	result, err := a.Run(ctx, ai.Prompt{ai.UserText("What's the weather in SF?")})
func New(adapter ai.Adapter, options ...Option) *Agent {
	cfg := config{maxSteps: DefaultMaxSteps, streaming: true}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.observer == nil && cfg.logger != nil {
		cfg.observer = slogobs.New(slogobs.WithLogger(cfg.logger))
	}
	return &Agent{adapter: adapter, cfg: cfg}
}

// Run drives the loop to completion. A run paused for approvals returns
// normally with Result.Paused set; append a tool message holding the
// approval responses to Result.Prompt and call Run again to resume.
func (a *Agent) Run(ctx context.Context, prompt ai.Prompt) (*Result, error) {
	return a.Stream(ctx, prompt).Collect()
}

// Stream starts the loop lazily; nothing happens until the stream is
// consumed.
func (a *Agent) Stream(ctx context.Context, prompt ai.Prompt) *Stream {
	s := &Stream{}
	s.iterator = func(yield func(Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		emit := func(event Event) {
			if stopped {
				return
			}
			if !yield(event, nil) {
				stopped = true
				cancel()
			}
		}

		result, err := a.run(ctx, prompt, emit)
		if stopped {
			return
		}
		if err != nil {
			yield(Event{}, err)
			return
		}
		s.result = result
	}
	return s
}

func (a *Agent) run(ctx context.Context, input ai.Prompt, emit func(Event)) (*Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if a.cfg.observer != nil {
		ctx = observability.ContextWithObserver(ctx, a.cfg.observer)
	}
	if err := ctx.Err(); err != nil {
		return nil, ai.NewCancelled(err)
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanAgentRun,
		observability.String(observability.AttrLLMProvider, a.adapter.Provider()),
		observability.String(observability.AttrLLMModel, a.adapter.ModelID()),
		observability.Int(observability.AttrAgentMaxSteps, a.cfg.maxSteps),
		observability.String(observability.AttrAgentSessionID, a.cfg.sessionID),
	)
	defer span.End()

	result, err := a.loop(ctx, input, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		a.observer(ctx).Error(ctx, "agent run failed",
			observability.String(observability.AttrErrorKind, string(ai.KindOf(err))),
			observability.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(
		observability.Int(observability.AttrAgentStep, len(result.Steps)),
		observability.Bool(observability.AttrAgentPaused, result.Paused),
		observability.String(observability.AttrLLMFinishReason, result.FinishReason.String()),
		observability.Int(observability.AttrLLMUsageTotal, result.TotalUsage.TotalTokens),
	)
	span.SetStatus(observability.StatusOK, "")
	return result, nil
}

func (a *Agent) loop(ctx context.Context, input ai.Prompt, emit func(Event)) (*Result, error) {
	prompt := input.Clone()
	result := &Result{}

	if err := a.storeInput(ctx, prompt); err != nil {
		return nil, err
	}

	if resumed := a.resume(ctx, prompt, emit); len(resumed) > 0 {
		message := ai.ToolMessage(resumed...)
		prompt = append(prompt, message)
		result.Messages = append(result.Messages, message)
		if err := a.store(ctx, ai.RoleTool, message.Parts, storage.MessageMetadata{}); err != nil {
			return nil, err
		}
	}

	for stepNumber := 1; ; stepNumber++ {
		res, outcome, err := a.step(ctx, stepNumber, prompt, result.Steps, emit)
		if err != nil {
			return nil, err
		}

		appended := stepMessages(res, outcome)
		prompt = append(prompt, appended...)
		result.Messages = append(result.Messages, appended...)
		for _, message := range appended {
			meta := storage.MessageMetadata{}
			if message.Role == ai.RoleAssistant {
				meta = storage.AssistantMetadata(res.Provider, res.ModelID, res.Usage, res.FinishReason, message.Parts)
			}
			if err := a.store(ctx, message.Role, message.Parts, meta); err != nil {
				return nil, err
			}
		}

		result.Steps = append(result.Steps, res)
		result.FinalStep = res
		result.Content = res.Content
		result.FinishReason = res.FinishReason
		result.TotalUsage = result.TotalUsage.Add(res.Usage)

		if a.cfg.onStep != nil {
			if err := a.cfg.onStep(ctx, *res); err != nil {
				return nil, err
			}
		}
		emit(Event{Type: EventStepFinish, Step: stepNumber, FinishReason: res.FinishReason, Usage: res.Usage, StepResult: res})
		a.recordStep(ctx, stepNumber, res, outcome)

		if len(outcome.approvals) > 0 {
			result.Paused = true
			result.PendingApprovals = outcome.approvals
			break
		}
		if !res.FinishReason.Is(ai.FinishKindToolCalls) || outcome.unanswered > 0 || len(outcome.results) == 0 {
			break
		}
		if anyStop(a.cfg.stopWhen, result.Steps) {
			break
		}
		if stepNumber >= a.cfg.maxSteps {
			result.FinishReason = ai.OtherFinish("max-steps")
			break
		}
	}

	result.Prompt = prompt
	return result, nil
}

// step runs one model call and answers its tool calls.
func (a *Agent) step(ctx context.Context, stepNumber int, prompt ai.Prompt, steps []*step.Result, emit func(Event)) (*step.Result, toolOutcome, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanAgentStep,
		observability.Int(observability.AttrAgentStep, stepNumber),
	)
	defer span.End()

	adapter, options, err := a.prepare(ctx, stepNumber, prompt, steps)
	if err != nil {
		return nil, toolOutcome{}, err
	}
	emit(Event{Type: EventStepStart, Step: stepNumber})

	res, err := step.Execute(ctx, adapter, options,
		step.WithStreaming(a.cfg.streaming),
		step.WithRegistry(a.cfg.tools),
		step.WithOnEvent(func(e assembler.Event) {
			emit(fromAssembler(stepNumber, e))
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		return nil, toolOutcome{}, err
	}

	outcome := a.handleToolCalls(ctx, prompt, res, stepNumber, emit)
	if len(outcome.approvals) > 0 {
		approvals := make([]ai.Part, len(outcome.approvals))
		for i, request := range outcome.approvals {
			approvals[i] = request
		}
		res.AppendContent(approvals...)
		span.AddEvent(observability.EventApprovalPending, observability.Int(observability.AttrAgentToolCalls, len(outcome.approvals)))
	}
	span.SetAttributes(
		observability.String(observability.AttrLLMFinishReason, res.FinishReason.String()),
		observability.Int(observability.AttrAgentToolCalls, len(res.ToolCalls())),
	)
	span.SetStatus(observability.StatusOK, "")
	return res, outcome, nil
}

// prepare builds the call options for a step and applies the prepare hook.
func (a *Agent) prepare(ctx context.Context, stepNumber int, prompt ai.Prompt, steps []*step.Result) (ai.Adapter, ai.CallOptions, error) {
	options := a.cfg.callOptions
	options.Prompt = prompt
	options.Tools = a.cfg.tools.Definitions()
	adapter := a.adapter

	if a.cfg.prepareStep == nil {
		return adapter, options, nil
	}
	override, err := a.cfg.prepareStep(ctx, PrepareStepInput{
		StepNumber: stepNumber,
		Steps:      steps,
		Prompt:     prompt,
		Options:    options,
	})
	if err != nil {
		return nil, ai.CallOptions{}, fmt.Errorf("agent: prepare step %d: %w", stepNumber, err)
	}
	if override == nil {
		return adapter, options, nil
	}
	if override.Adapter != nil {
		adapter = override.Adapter
	}
	if override.ToolChoice != nil {
		options.ToolChoice = override.ToolChoice
	}
	if override.ActiveTools != nil {
		options.Tools = slices.DeleteFunc(slices.Clone(options.Tools), func(d ai.ToolDefinition) bool {
			return !slices.Contains(override.ActiveTools, d.Name)
		})
	}
	if override.Prompt != nil {
		options.Prompt = override.Prompt
	}
	return adapter, options, nil
}

// resume answers the approval responses found at the end of prompt. Results
// follow the order of the tool calls they answer.
func (a *Agent) resume(ctx context.Context, prompt ai.Prompt, emit func(Event)) []ai.Part {
	approved, denied := CollectApprovals(prompt)
	if len(approved) == 0 && len(denied) == 0 {
		return nil
	}

	pending := append(slices.Clone(approved), denied...)
	order := callOrder(prompt)
	slices.SortStableFunc(pending, func(x, y Approval) int {
		return order[x.Call.ToolCallID] - order[y.Call.ToolCallID]
	})

	var jobs []toolJob
	slots := make([]*ai.ToolResultPart, len(pending))
	for i, approval := range pending {
		if !approval.Response.Approved {
			result := deniedResult(approval.Call, approval.Response.Reason)
			slots[i] = &result
			continue
		}
		descriptor, ok := a.cfg.tools.Lookup(approval.Call.ToolName)
		if !ok || descriptor.Executor == nil {
			slots[i] = errorResult(approval.Call, ai.NewError(ai.KindNoSuchTool, "tool %q is not available", approval.Call.ToolName))
			continue
		}
		jobs = append(jobs, toolJob{index: i, call: approval.Call, descriptor: descriptor})
	}
	a.runJobs(ctx, prompt, jobs, slots, 0, emit)

	results := make([]ai.Part, 0, len(slots))
	for _, slot := range slots {
		emit(Event{Type: EventToolResult, ToolName: slot.ToolName, ToolResult: slot})
		results = append(results, *slot)
	}

	a.observer(ctx).Info(ctx, "resumed approved tool calls",
		observability.Int(observability.AttrAgentToolCalls, len(approved)),
		observability.Int("denied", len(denied)),
	)
	return results
}

// callOrder maps each tool call id in prompt to its position.
func callOrder(prompt ai.Prompt) map[string]int {
	order := make(map[string]int)
	for _, message := range prompt {
		for _, part := range message.Parts {
			if call, ok := part.(ai.ToolCallPart); ok {
				if _, seen := order[call.ToolCallID]; !seen {
					order[call.ToolCallID] = len(order)
				}
			}
		}
	}
	return order
}

// stepMessages returns the assistant message (non-empty parts, including
// approval requests) and the tool message of a step.
func stepMessages(res *step.Result, outcome toolOutcome) ai.Prompt {
	var messages ai.Prompt
	parts := slices.DeleteFunc(slices.Clone(res.Content), func(p ai.Part) bool {
		text, ok := p.(ai.TextPart)
		return ok && text.Text == ""
	})
	if len(parts) > 0 {
		messages = append(messages, ai.AssistantMessage(parts...))
	}
	if len(outcome.results) > 0 {
		results := make([]ai.Part, len(outcome.results))
		for i, r := range outcome.results {
			results[i] = r
		}
		messages = append(messages, ai.ToolMessage(results...))
	}
	return messages
}

// storeInput stores the messages following the last assistant message of
// the input prompt: the new user turn, or the approval responses of a
// resumed run.
func (a *Agent) storeInput(ctx context.Context, prompt ai.Prompt) error {
	if a.cfg.sink == nil {
		return nil
	}
	start := 0
	for i := len(prompt) - 1; i >= 0; i-- {
		if prompt[i].Role == ai.RoleAssistant {
			start = i + 1
			break
		}
	}
	for _, message := range prompt[start:] {
		if message.Role != ai.RoleUser && message.Role != ai.RoleTool {
			continue
		}
		if err := a.store(ctx, message.Role, message.Parts, storage.MessageMetadata{}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) store(ctx context.Context, role ai.Role, parts []ai.Part, meta storage.MessageMetadata) error {
	if a.cfg.sink == nil {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanStorageWrite,
		observability.String(observability.AttrAgentSessionID, a.cfg.sessionID),
		observability.String(observability.AttrStorageMessageRole, string(role)),
	)
	defer span.End()

	var err error
	switch role {
	case ai.RoleUser:
		_, err = a.cfg.sink.StoreUserMessage(ctx, a.cfg.sessionID, parts)
	case ai.RoleAssistant:
		_, err = a.cfg.sink.StoreAssistantMessage(ctx, a.cfg.sessionID, parts, meta)
	case ai.RoleTool:
		_, err = a.cfg.sink.StoreToolMessage(ctx, a.cfg.sessionID, parts)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		return fmt.Errorf("agent: store %s message: %w", role, err)
	}
	return nil
}

func (a *Agent) recordStep(ctx context.Context, stepNumber int, res *step.Result, outcome toolOutcome) {
	observer := a.observer(ctx)
	observer.Counter(observability.MetricAgentSteps).Add(ctx, 1,
		observability.String(observability.AttrLLMProvider, res.Provider),
		observability.String(observability.AttrLLMFinishReason, res.FinishReason.String()),
	)
	observer.Info(ctx, "agent step finished",
		observability.Int(observability.AttrAgentStep, stepNumber),
		observability.String(observability.AttrLLMFinishReason, res.FinishReason.String()),
		observability.Int(observability.AttrAgentToolCalls, len(outcome.results)),
		observability.Int(observability.AttrLLMUsageTotal, res.Usage.TotalTokens),
	)
	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventStepFinished, observability.Int(observability.AttrAgentStep, stepNumber))
	}
}

func (a *Agent) observer(ctx context.Context) observability.Provider {
	if observer := observability.ObserverFromContext(ctx); observer != nil {
		return observer
	}
	return observability.Nop()
}
