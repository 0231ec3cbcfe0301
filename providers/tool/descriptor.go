package tool

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/leofalp/llmkit/providers/ai"
)

// Descriptor binds a tool name to its schema, approval policy and executor.
// A nil Executor marks a client-side tool: the model may call it but the
// agent loop never runs it.
type Descriptor struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema document. Empty means any object.
	InputSchema json.RawMessage
	Approval    ApprovalPolicy
	Executor    Executor
	// OutputTransformer reshapes successful results before they are sent
	// back to the model. It also runs on preliminary results.
	OutputTransformer func(Output) (ai.ToolOutput, error)
	// ProviderExecuted tools run on the provider side; their calls and
	// results arrive in the stream and are never executed locally.
	ProviderExecuted bool
}

// Output is the raw value produced by an executor, handed to the
// OutputTransformer.
type Output struct {
	ToolCallID  string
	ToolName    string
	Input       json.RawMessage
	Value       any
	Preliminary bool
}

// Definition returns the model-facing definition of the tool.
func (d *Descriptor) Definition() ai.ToolDefinition {
	schema := d.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return ai.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: schema}
}

// ClientSide reports whether the tool has no local executor.
func (d *Descriptor) ClientSide() bool { return d.Executor == nil && !d.ProviderExecuted }

/* ##### APPROVAL ##### */

// ApprovalContext is passed to approval predicates.
type ApprovalContext struct {
	ToolCallID string
	Messages   ai.Prompt
}

// ApprovalPolicy decides whether a call needs host approval before running.
// The zero value never requires approval.
type ApprovalPolicy struct {
	always    bool
	predicate func(ctx context.Context, input json.RawMessage, ac ApprovalContext) (bool, error)
}

// Never returns a policy that runs every call without approval.
func Never() ApprovalPolicy { return ApprovalPolicy{} }

// Always returns a policy that requires approval for every call.
func Always() ApprovalPolicy { return ApprovalPolicy{always: true} }

// Predicate returns a policy evaluated per call.
func Predicate(fn func(ctx context.Context, input json.RawMessage, ac ApprovalContext) (bool, error)) ApprovalPolicy {
	return ApprovalPolicy{predicate: fn}
}

// IsApprovalNeeded evaluates the descriptor policy for call. Predicate
// errors are returned as is; the agent turns them into error results.
func IsApprovalNeeded(ctx context.Context, d *Descriptor, call ai.ToolCallPart, ac ApprovalContext) (bool, error) {
	if d == nil {
		return false, nil
	}
	switch {
	case d.Approval.always:
		return true, nil
	case d.Approval.predicate != nil:
		if ac.ToolCallID == "" {
			ac.ToolCallID = call.ToolCallID
		}
		return d.Approval.predicate(ctx, call.Input, ac)
	default:
		return false, nil
	}
}

/* ##### EXECUTORS ##### */

// CallContext is passed to executors.
type CallContext struct {
	ToolCallID string
	Messages   ai.Prompt
}

// SingleFunc produces one result.
type SingleFunc func(ctx context.Context, input json.RawMessage, cc CallContext) (any, error)

// StreamingFunc yields results; every value but the last is preliminary.
// A non-nil error ends the call.
type StreamingFunc func(ctx context.Context, input json.RawMessage, cc CallContext) iter.Seq2[any, error]

// Executor runs a tool call. Build one with Single or Streaming.
type Executor interface {
	run(ctx context.Context, input json.RawMessage, cc CallContext, preliminary func(any)) (any, error)
}

type singleExecutor struct{ fn SingleFunc }

type streamingExecutor struct{ fn StreamingFunc }

// Single wraps a function returning one result.
func Single(fn SingleFunc) Executor { return singleExecutor{fn: fn} }

// Streaming wraps a function yielding preliminary results followed by a
// final one.
func Streaming(fn StreamingFunc) Executor { return streamingExecutor{fn: fn} }

func (e singleExecutor) run(ctx context.Context, input json.RawMessage, cc CallContext, _ func(any)) (any, error) {
	return e.fn(ctx, input, cc)
}

func (e streamingExecutor) run(ctx context.Context, input json.RawMessage, cc CallContext, preliminary func(any)) (any, error) {
	var (
		last    any
		hasLast bool
	)
	for value, err := range e.fn(ctx, input, cc) {
		if err != nil {
			return nil, err
		}
		// the previous value is now known not to be the final one
		if hasLast && preliminary != nil {
			preliminary(last)
		}
		last, hasLast = value, true
	}
	if !hasLast {
		return nil, ai.NewError(ai.KindToolExecution, "streaming tool produced no result")
	}
	return last, nil
}
