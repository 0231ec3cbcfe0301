package step

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leofalp/llmkit/core/assembler"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/tool"
)

type config struct {
	streaming bool
	registry  *tool.Registry
	onEvent   func(assembler.Event)
	observer  observability.Provider
}

// Option configures Execute.
type Option func(*config)

// WithStreaming selects Stream (the default) or Generate. Adapters without
// the Streaming capability always use Generate.
func WithStreaming(enabled bool) Option {
	return func(c *config) {
		c.streaming = enabled
	}
}

// WithRegistry validates closed tool inputs against the registry schemas.
func WithRegistry(registry *tool.Registry) Option {
	return func(c *config) {
		c.registry = registry
	}
}

// WithOnEvent receives every assembler event as it is produced.
func WithOnEvent(fn func(assembler.Event)) Option {
	return func(c *config) {
		c.onEvent = fn
	}
}

// WithObserver overrides the observer carried by the context.
func WithObserver(observer observability.Provider) Option {
	return func(c *config) {
		c.observer = observer
	}
}

// Execute performs one model call and assembles its output.
//
// When JSON output with a schema is requested and the adapter cannot enforce
// schemas, the schema is added to the prompt as a system instruction and a
// warning is recorded. Cancellation returns a Cancelled error wrapping
// ctx.Err().
func Execute(ctx context.Context, adapter ai.Adapter, options ai.CallOptions, opts ...Option) (*Result, error) {
	cfg := config{streaming: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.observer != nil {
		ctx = observability.ContextWithObserver(ctx, cfg.observer)
	}
	if err := ctx.Err(); err != nil {
		return nil, ai.NewCancelled(err)
	}

	capabilities := adapter.Capabilities()
	streaming := cfg.streaming && capabilities.Streaming
	options, warnings := injectSchema(options, capabilities)

	ctx, span := observability.StartSpan(ctx, observability.SpanLLMRequest,
		observability.String(observability.AttrLLMProvider, adapter.Provider()),
		observability.String(observability.AttrLLMModel, adapter.ModelID()),
		observability.Bool(observability.AttrLLMStreaming, streaming),
		observability.Int(observability.AttrRequestMessages, len(options.Prompt)),
		observability.Int(observability.AttrToolsCount, len(options.Tools)),
	)
	defer span.End()

	observer := observerFrom(ctx)
	start := time.Now()
	result, err := run(ctx, adapter, options, streaming, warnings, cfg)
	elapsed := time.Since(start)

	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMProvider, adapter.Provider()),
		observability.String(observability.AttrLLMModel, adapter.ModelID()),
	}
	observer.Counter(observability.MetricLLMRequests).Add(ctx, 1, attrs...)
	observer.Histogram(observability.MetricLLMDuration).Record(ctx, elapsed.Seconds(), attrs...)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && ai.KindOf(err) != ai.KindCancelled {
			err = ai.NewCancelled(ctxErr)
		}
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		observer.Error(ctx, "llm call failed",
			observability.String(observability.AttrLLMProvider, adapter.Provider()),
			observability.String(observability.AttrErrorKind, string(ai.KindOf(err))),
			observability.Error(err),
		)
		return nil, err
	}

	usage := result.Usage
	observer.Counter(observability.MetricUsageTokens).Add(ctx, int64(usage.InputTokens),
		append(attrs, observability.String(observability.AttrTokenType, "input"))...)
	observer.Counter(observability.MetricUsageTokens).Add(ctx, int64(usage.OutputTokens),
		append(attrs, observability.String(observability.AttrTokenType, "output"))...)

	span.SetAttributes(
		observability.String(observability.AttrLLMResponseID, result.Response.ID),
		observability.String(observability.AttrLLMFinishReason, result.FinishReason.String()),
		observability.Int(observability.AttrLLMUsageInput, usage.InputTokens),
		observability.Int(observability.AttrLLMUsageOutput, usage.OutputTokens),
		observability.Int(observability.AttrLLMUsageTotal, usage.TotalTokens),
		observability.Int(observability.AttrLLMWarnings, len(result.Warnings)),
	)
	span.SetStatus(observability.StatusOK, "")
	observer.Debug(ctx, "llm call finished",
		observability.String(observability.AttrLLMFinishReason, result.FinishReason.String()),
		observability.Int(observability.AttrLLMUsageTotal, usage.TotalTokens),
		observability.Duration(observability.AttrDuration, elapsed),
	)
	return result, nil
}

func run(ctx context.Context, adapter ai.Adapter, options ai.CallOptions, streaming bool, warnings []ai.Warning, cfg config) (*Result, error) {
	emit := func(event assembler.Event) {
		if event.Type == assembler.EventWarning {
			observerFrom(ctx).Warn(ctx, "stream warning", observability.String("warning", event.Warning.String()))
			if span := observability.SpanFromContext(ctx); span != nil {
				span.AddEvent(observability.EventStreamWarning, observability.String("warning", event.Warning.String()))
			}
		}
		if cfg.onEvent != nil {
			cfg.onEvent(event)
		}
	}
	for _, w := range warnings {
		emit(assembler.Event{Type: assembler.EventWarning, Warning: &w})
	}

	stream, request, err := open(ctx, adapter, options, streaming)
	if err != nil {
		return nil, err
	}

	var assemblerOptions []assembler.Option
	if cfg.registry != nil {
		assemblerOptions = append(assemblerOptions, assembler.WithToolSchemas(cfg.registry))
	}
	a := assembler.New(assemblerOptions...)
	for event, err := range a.Run(ctx, stream) {
		if err != nil {
			return nil, err
		}
		emit(event)
	}

	flushed := len(a.Output().Warnings)
	out, err := a.Finish()
	for _, w := range out.Warnings[flushed:] {
		emit(assembler.Event{Type: assembler.EventWarning, Warning: &w})
	}
	if err != nil {
		return nil, err
	}

	usage := out.Usage.Normalized()
	if err := usage.Validate(); err != nil {
		w := ai.Warning{Type: ai.WarningOther, Message: err.Error()}
		out.Warnings = append(out.Warnings, w)
		emit(assembler.Event{Type: assembler.EventWarning, Warning: &w})
	}

	return &Result{
		Content:          out.Content,
		FinishReason:     out.FinishReason,
		Usage:            usage,
		ProviderMetadata: out.ProviderMetadata,
		Warnings:         append(warnings, out.Warnings...),
		Sources:          out.Sources,
		Request:          request,
		Response:         out.Response,
		Provider:         adapter.Provider(),
		ModelID:          adapter.ModelID(),
	}, nil
}

// open starts the call. Generate responses are replayed as a stream so both
// paths share the assembler.
func open(ctx context.Context, adapter ai.Adapter, options ai.CallOptions, streaming bool) (*ai.PartStream, ai.RequestMetadata, error) {
	if streaming {
		response, err := adapter.Stream(ctx, options)
		if err != nil {
			return nil, ai.RequestMetadata{}, err
		}
		return response.Stream, response.Request, nil
	}
	response, err := adapter.Generate(ctx, options)
	if err != nil {
		return nil, ai.RequestMetadata{}, err
	}
	return ai.StreamFromGenerate(response), response.Request, nil
}

const schemaInstruction = "JSON schema:\n%s\nYou MUST answer with a JSON object that matches the JSON schema above."

// injectSchema adds the response schema to the prompt for adapters that
// cannot enforce it. The instruction goes after the leading system messages.
func injectSchema(options ai.CallOptions, capabilities ai.Capabilities) (ai.CallOptions, []ai.Warning) {
	format := options.ResponseFormat
	if !format.IsJSON() || len(format.Schema) == 0 || capabilities.StructuredOutput {
		return options, nil
	}

	schema := string(format.Schema)
	var compact bytes.Buffer
	if err := json.Compact(&compact, format.Schema); err == nil {
		schema = compact.String()
	}

	at := 0
	for at < len(options.Prompt) && options.Prompt[at].Role == ai.RoleSystem {
		at++
	}
	prompt := make(ai.Prompt, 0, len(options.Prompt)+1)
	prompt = append(prompt, options.Prompt[:at]...)
	prompt = append(prompt, ai.SystemMessage(fmt.Sprintf(schemaInstruction, schema)))
	prompt = append(prompt, options.Prompt[at:]...)
	options.Prompt = prompt

	return options, []ai.Warning{ai.UnsupportedSetting("responseFormat",
		"the model cannot enforce JSON schemas; the schema was added to the prompt")}
}

func observerFrom(ctx context.Context) observability.Provider {
	if observer := observability.ObserverFromContext(ctx); observer != nil {
		return observer
	}
	return observability.Nop()
}
