package agent

import (
	"context"
	"log/slog"

	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/storage"
	"github.com/leofalp/llmkit/providers/tool"
)

// DefaultMaxSteps bounds a run when WithMaxSteps is not given.
const DefaultMaxSteps = 20

// Option is a functional option for configuring an Agent.
type Option func(*config)

type config struct {
	tools         *tool.Registry
	stopWhen      []StopCondition
	maxSteps      int
	sink          storage.Sink
	sessionID     string
	onStep        func(ctx context.Context, result step.Result) error
	prepareStep   func(ctx context.Context, input PrepareStepInput) (*PrepareStepResult, error)
	repair        tool.RepairFunc
	onPreliminary func(ai.ToolResultPart)
	streaming     bool
	callOptions   ai.CallOptions
	observer      observability.Provider
	logger        *slog.Logger
}

// PrepareStepInput is handed to the WithPrepareStep hook before each step.
type PrepareStepInput struct {
	// StepNumber is 1-based.
	StepNumber int
	Steps      []*step.Result
	Prompt     ai.Prompt
	Options    ai.CallOptions
}

// PrepareStepResult overrides settings for a single step. Zero fields keep
// the agent defaults.
type PrepareStepResult struct {
	Adapter    ai.Adapter
	ToolChoice *ai.ToolChoice
	// ActiveTools restricts the tool definitions sent to the model.
	ActiveTools []string
	// Prompt replaces the prompt sent for this step only; the rolling prompt
	// is not modified.
	Prompt ai.Prompt
}

// WithTools sets the registry the model can call into.
func WithTools(registry *tool.Registry) Option {
	return func(c *config) {
		c.tools = registry
	}
}

// WithStopWhen adds stop conditions. They are checked after each step in
// addition to the default rule (finish reason other than tool calls, or the
// step limit).
//
// Example:
//
//	agent.New(adapter,
//	    agent.WithTools(registry),
//	    agent.WithStopWhen(agent.HasToolCall("final_answer"), agent.StepCountIs(5)),
//	)
func WithStopWhen(conditions ...StopCondition) Option {
	return func(c *config) {
		c.stopWhen = append(c.stopWhen, conditions...)
	}
}

// WithMaxSteps caps the number of model calls. Values below one are ignored.
func WithMaxSteps(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithStorage persists the conversation to sink under sessionID. A storage
// error ends the run.
func WithStorage(sink storage.Sink, sessionID string) Option {
	return func(c *config) {
		c.sink = sink
		c.sessionID = sessionID
	}
}

// WithOnStep is called after each step, once its messages are appended.
// Returning an error ends the run with that error.
func WithOnStep(fn func(ctx context.Context, result step.Result) error) Option {
	return func(c *config) {
		c.onStep = fn
	}
}

// WithPrepareStep runs before each model call and may override the adapter,
// tool choice, active tools or prompt for that call.
func WithPrepareStep(fn func(ctx context.Context, input PrepareStepInput) (*PrepareStepResult, error)) Option {
	return func(c *config) {
		c.prepareStep = fn
	}
}

// WithToolCallRepair is given calls whose input failed parsing or validation
// before they are answered with an InvalidToolInput result.
func WithToolCallRepair(fn tool.RepairFunc) Option {
	return func(c *config) {
		c.repair = fn
	}
}

// WithOnPreliminaryToolResult receives progress values yielded by streaming
// tool executors.
func WithOnPreliminaryToolResult(fn func(ai.ToolResultPart)) Option {
	return func(c *config) {
		c.onPreliminary = fn
	}
}

// WithStreaming selects streaming model calls (the default) or whole
// responses.
func WithStreaming(enabled bool) Option {
	return func(c *config) {
		c.streaming = enabled
	}
}

// WithCallOptions sets the per-call settings (sampling, response format,
// tool choice, provider options). Prompt and Tools are filled in by the
// agent and ignored here.
func WithCallOptions(options ai.CallOptions) Option {
	return func(c *config) {
		c.callOptions = options
	}
}

// WithObserver attaches tracing, metrics and logging.
func WithObserver(observer observability.Provider) Option {
	return func(c *config) {
		c.observer = observer
	}
}

// WithLogger logs through logger when no observer is configured.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
