package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

// Execute runs the descriptor's executor for call and shapes the outcome
// into a tool result. It never returns an error: executor failures, panics
// and transformer errors all become error outputs so that the model sees
// them on the next turn.
//
// onPreliminary, when non-nil, receives results yielded by streaming
// executors before the final one.
func Execute(ctx context.Context, d *Descriptor, call ai.ToolCallPart, cc CallContext, onPreliminary func(ai.ToolResultPart)) ai.ToolResultPart {
	result := ai.ToolResultPart{ToolCallID: call.ToolCallID, ToolName: call.ToolName}
	if d == nil {
		result.Output = ai.ErrorJSONOutput(ai.KindNoSuchTool, fmt.Sprintf("tool %q is not available", call.ToolName), nil)
		return result
	}
	if d.Executor == nil {
		result.Output = ai.ErrorJSONOutput(ai.KindToolExecution, fmt.Sprintf("tool %q has no executor", call.ToolName), nil)
		return result
	}
	if cc.ToolCallID == "" {
		cc.ToolCallID = call.ToolCallID
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecution,
		observability.String(observability.AttrToolName, call.ToolName),
		observability.String(observability.AttrToolCallID, call.ToolCallID),
	)
	defer span.End()
	span.AddEvent(observability.EventToolStart,
		observability.String(observability.AttrToolInput, utils.TruncateString(string(call.Input), utils.DefaultMaxStringLength)),
	)

	preliminary := func(value any) {
		if onPreliminary == nil {
			return
		}
		onPreliminary(ai.ToolResultPart{
			ToolCallID:  call.ToolCallID,
			ToolName:    call.ToolName,
			Output:      shape(d, call, value, true),
			Preliminary: true,
		})
	}

	start := time.Now()
	value, err := runSafely(ctx, d.Executor, call.Input, cc, preliminary)
	duration := time.Since(start)

	if err != nil {
		result.Output = ai.OutputFromError(err)
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
	} else {
		result.Output = shape(d, call, value, false)
		span.SetStatus(observability.StatusOK, "")
	}

	span.AddEvent(observability.EventToolEnd,
		observability.String(observability.AttrToolOutputKind, string(result.Output.Kind)),
		observability.Duration(observability.AttrToolDuration, duration),
	)
	return result
}

// runSafely converts executor panics into ToolExecution errors.
func runSafely(ctx context.Context, executor Executor, input json.RawMessage, cc CallContext, preliminary func(any)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ai.Error{
				Kind:    ai.KindToolExecution,
				Message: fmt.Sprintf("tool panicked: %v", r),
				Body:    utils.TruncateString(string(debug.Stack()), 2000),
			}
		}
	}()
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return executor.run(ctx, input, cc, preliminary)
}

// shape maps a raw executor value to a tool output: strings become text,
// ready-made outputs pass through, everything else is encoded as JSON.
func shape(d *Descriptor, call ai.ToolCallPart, value any, preliminary bool) ai.ToolOutput {
	if d.OutputTransformer != nil {
		out, err := transformSafely(d.OutputTransformer, Output{
			ToolCallID:  call.ToolCallID,
			ToolName:    call.ToolName,
			Input:       call.Input,
			Value:       value,
			Preliminary: preliminary,
		})
		if err != nil {
			return ai.OutputFromError(err)
		}
		return out
	}
	return ShapeValue(value)
}

// ShapeValue is the default output shaping.
func ShapeValue(value any) ai.ToolOutput {
	switch v := value.(type) {
	case ai.ToolOutput:
		return v
	case string:
		return ai.TextOutput(v)
	case error:
		return ai.OutputFromError(v)
	default:
		return ai.JSONOutput(v)
	}
}

func transformSafely(fn func(Output) (ai.ToolOutput, error), out Output) (shaped ai.ToolOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ai.NewError(ai.KindToolExecution, "output transformer panicked: %v", r)
		}
	}()
	return fn(out)
}
