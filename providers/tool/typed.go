package tool

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/leofalp/llmkit/internal/jsonschema"
	"github.com/leofalp/llmkit/providers/ai"
)

// Option configures a descriptor built by NewTool or NewStreamingTool.
type Option func(*Descriptor)

// WithDescription sets the description shown to the model.
func WithDescription(description string) Option {
	return func(d *Descriptor) {
		d.Description = description
	}
}

// WithApproval sets the approval policy.
func WithApproval(policy ApprovalPolicy) Option {
	return func(d *Descriptor) {
		d.Approval = policy
	}
}

// WithOutputTransformer sets the output transformer.
func WithOutputTransformer(fn func(Output) (ai.ToolOutput, error)) Option {
	return func(d *Descriptor) {
		d.OutputTransformer = fn
	}
}

// WithInputSchema overrides the schema derived from the input type.
func WithInputSchema(schema json.RawMessage) Option {
	return func(d *Descriptor) {
		d.InputSchema = schema
	}
}

// NewTool builds a descriptor around a typed function. The input schema is
// derived from I; the raw input is decoded into I before fn runs, and a
// decode failure is reported as InvalidToolInput.
//
// Example:
//
//	weather, err := tool.NewTool("get_weather",
//	    func(ctx context.Context, in WeatherInput) (Forecast, error) { ... },
//	    tool.WithDescription("Returns the forecast for a city."),
//	)
func NewTool[I, O any](name string, fn func(ctx context.Context, input I) (O, error), options ...Option) (*Descriptor, error) {
	return newTyped[I](name, Single(func(ctx context.Context, raw json.RawMessage, _ CallContext) (any, error) {
		input, err := decodeInput[I](name, raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, input)
	}), options)
}

// NewStreamingTool is NewTool for functions yielding intermediate results.
func NewStreamingTool[I, O any](name string, fn func(ctx context.Context, input I) iter.Seq2[O, error], options ...Option) (*Descriptor, error) {
	return newTyped[I](name, Streaming(func(ctx context.Context, raw json.RawMessage, _ CallContext) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			input, err := decodeInput[I](name, raw)
			if err != nil {
				yield(nil, err)
				return
			}
			for value, err := range fn(ctx, input) {
				if !yield(value, err) || err != nil {
					return
				}
			}
		}
	}), options)
}

// MustTool is NewTool for package-level declarations; it panics on error.
func MustTool[I, O any](name string, fn func(ctx context.Context, input I) (O, error), options ...Option) *Descriptor {
	d, err := NewTool(name, fn, options...)
	if err != nil {
		panic(err)
	}
	return d
}

func newTyped[I any](name string, executor Executor, options []Option) (*Descriptor, error) {
	d := &Descriptor{Name: name, Executor: executor}
	for _, option := range options {
		option(d)
	}
	if d.InputSchema == nil {
		schema, err := jsonschema.For[I]()
		if err != nil {
			return nil, ai.WrapError(ai.KindInvalidArgument, err, "tool %q: derive input schema", name)
		}
		d.InputSchema = schema
	}
	return d, nil
}

func decodeInput[I any](name string, raw json.RawMessage) (I, error) {
	var input I
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return input, ai.WrapError(ai.KindInvalidToolInput, err, "tool %q: %s", name, err.Error())
	}
	return input, nil
}
