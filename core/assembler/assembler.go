package assembler

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/leofalp/llmkit/core/partialjson"
	"github.com/leofalp/llmkit/providers/ai"
)

// Validator checks a closed tool input. *tool.Registry satisfies it.
type Validator interface {
	ValidateInput(name string, input json.RawMessage) error
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithToolSchemas validates every closed tool input against v. Only
// InvalidToolInput failures mark a call invalid; unknown tool names are left
// for the caller to answer.
func WithToolSchemas(v Validator) Option {
	return func(a *Assembler) {
		a.validator = v
	}
}

// WithPartialInput registers a callback invoked each time the decoded value
// of a streaming tool input changes.
func WithPartialInput(fn func(PartialInput)) Option {
	return func(a *Assembler) {
		a.onPartial = fn
	}
}

type family string

const (
	familyText      family = "text"
	familyReasoning family = "reasoning"
	familyToolInput family = "tool-input"
)

type blockKey struct {
	family family
	id     string
}

type block struct {
	text      strings.Builder
	signature string
	toolName  string
	parser    *partialjson.Parser
}

// Assembler folds adapter stream parts into content parts. It is not safe
// for concurrent use; one Assembler serves one model call.
type Assembler struct {
	validator Validator
	onPartial func(PartialInput)

	blocks map[blockKey]*block
	// order records open order so leftovers are flushed deterministically
	order []blockKey

	out      Output
	finished bool
	failed   bool
}

// New returns an empty Assembler.
func New(options ...Option) *Assembler {
	a := &Assembler{blocks: map[blockKey]*block{}}
	for _, option := range options {
		option(a)
	}
	return a
}

// Push consumes one stream part and returns the events it produced.
func (a *Assembler) Push(part ai.StreamPart) []Event {
	var events []Event

	if part.Type == ai.StreamPartRaw {
		return []Event{{Type: EventRaw, Raw: part.Raw}}
	}
	if a.failed {
		return a.warn(events, "%s part after error ignored", part.Type)
	}
	if a.finished {
		if part.Type == ai.StreamPartFinish {
			return a.warn(events, "duplicate finish part ignored")
		}
		return a.warn(events, "%s part after finish ignored", part.Type)
	}

	switch part.Type {
	case ai.StreamPartStreamStart:
		for _, w := range part.Warnings {
			events = a.addWarning(events, w)
		}

	case ai.StreamPartResponseMetadata:
		if part.Response != nil {
			a.out.Response = *part.Response
			response := *part.Response
			events = append(events, Event{Type: EventResponseMetadata, Response: &response})
		}

	case ai.StreamPartTextStart:
		events = a.open(events, familyText, part.ID, "")
	case ai.StreamPartReasoningStart:
		events = a.open(events, familyReasoning, part.ID, "")
	case ai.StreamPartToolInputStart:
		events = a.open(events, familyToolInput, part.ID, part.ToolName)
		events = append(events, Event{Type: EventToolInputStart, ID: part.ID, ToolName: part.ToolName})

	case ai.StreamPartTextDelta:
		events = a.delta(events, familyText, part)
		events = append(events, Event{Type: EventTextDelta, ID: part.ID, Delta: part.Delta})
	case ai.StreamPartReasoningDelta:
		events = a.delta(events, familyReasoning, part)
		events = append(events, Event{Type: EventReasoningDelta, ID: part.ID, Delta: part.Delta})
	case ai.StreamPartToolInputDelta:
		events = a.delta(events, familyToolInput, part)

	case ai.StreamPartTextEnd:
		events = a.close(events, familyText, part.ID)
	case ai.StreamPartReasoningEnd:
		if b, ok := a.blocks[blockKey{familyReasoning, part.ID}]; ok && part.Signature != "" {
			b.signature = part.Signature
		}
		events = a.close(events, familyReasoning, part.ID)
	case ai.StreamPartToolInputEnd:
		events = a.close(events, familyToolInput, part.ID)

	case ai.StreamPartToolCall:
		call := a.checkCall(ai.ToolCallPart{
			ToolCallID:       part.ID,
			ToolName:         part.ToolName,
			Input:            part.Input,
			ProviderExecuted: part.ProviderExecuted,
			Dynamic:          part.Dynamic,
		}, nil)
		events = append(events, Event{Type: EventToolInputStart, ID: part.ID, ToolName: part.ToolName})
		events = a.appendPart(events, call)

	case ai.StreamPartToolResult:
		events = a.appendPart(events, ai.ToolResultPart{
			ToolCallID:       part.ID,
			ToolName:         part.ToolName,
			Output:           part.Output,
			ProviderExecuted: true,
		})

	case ai.StreamPartFile:
		if part.File != nil {
			events = a.appendPart(events, *part.File)
		}

	case ai.StreamPartSource:
		if part.Source != nil {
			a.out.Sources = append(a.out.Sources, *part.Source)
		}

	case ai.StreamPartError:
		err := part.Err
		if err == nil {
			err = ai.NewError(ai.KindProviderTransient, "stream error part without error")
		}
		a.failed = true
		a.out.Err = err
		events = append(events, Event{Type: EventError, Err: err})

	case ai.StreamPartFinish:
		events = a.discardToolInputs(events, "finish")
		a.finished = true
		a.out.FinishReason = part.FinishReason
		a.out.Usage = part.Usage
		a.out.ProviderMetadata = part.ProviderMetadata
		events = append(events, Event{
			Type:             EventFinish,
			FinishReason:     part.FinishReason,
			Usage:            part.Usage,
			ProviderMetadata: part.ProviderMetadata,
		})

	default:
		events = a.warn(events, "unknown stream part type %q ignored", part.Type)
	}
	return events
}

// Finish ends the stream. Text and reasoning blocks still open are flushed
// with a warning; open tool inputs are discarded. The returned error is the
// stream's error part, or TruncatedStream when no finish part arrived.
func (a *Assembler) Finish() (Output, error) {
	a.flushOpen()
	if a.out.Err != nil {
		return a.out, a.out.Err
	}
	if !a.finished {
		return a.out, ai.NewError(ai.KindTruncatedStream, "stream ended without a finish part")
	}
	return a.out, nil
}

// Output returns the content assembled so far.
func (a *Assembler) Output() Output {
	return a.out
}

// Run drives stream through the Assembler, yielding events as they are
// produced. Stream errors and context cancellation are yielded once and end
// the sequence; the caller then reads the result with Finish.
func (a *Assembler) Run(ctx context.Context, stream *ai.PartStream) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for part, err := range stream.Iter() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(Event{}, ai.NewCancelled(ctxErr))
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			for _, event := range a.Push(part) {
				if !yield(event, nil) {
					return
				}
			}
			if a.failed {
				return
			}
		}
	}
}

// Assemble runs stream through a new Assembler. A successful sequence ends
// with an EventDone event carrying the Output; a failed one ends with the
// error.
func Assemble(ctx context.Context, stream *ai.PartStream, options ...Option) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		a := New(options...)
		for event, err := range a.Run(ctx, stream) {
			if !yield(event, err) || err != nil {
				return
			}
		}

		flushed := len(a.out.Warnings)
		out, err := a.Finish()
		for _, w := range out.Warnings[flushed:] {
			if !yield(Event{Type: EventWarning, Warning: &w}, nil) {
				return
			}
		}
		if err != nil {
			yield(Event{}, err)
			return
		}
		yield(Event{Type: EventDone, Output: &out}, nil)
	}
}

func (a *Assembler) open(events []Event, f family, id, toolName string) []Event {
	key := blockKey{f, id}
	if _, ok := a.blocks[key]; ok {
		return a.warn(events, "%s block %q opened twice", f, id)
	}
	b := &block{toolName: toolName}
	if f == familyToolInput {
		b.parser = partialjson.NewParser()
	}
	a.blocks[key] = b
	a.order = append(a.order, key)
	return events
}

func (a *Assembler) delta(events []Event, f family, part ai.StreamPart) []Event {
	key := blockKey{f, part.ID}
	b, ok := a.blocks[key]
	if !ok {
		events = a.warn(events, "%s delta for unopened block %q", f, part.ID)
		events = a.open(events, f, part.ID, part.ToolName)
		b = a.blocks[key]
	}

	if f != familyToolInput {
		b.text.WriteString(part.Delta)
		return events
	}

	value, changed := b.parser.Write(part.Delta)
	if !changed {
		return events
	}
	if a.onPartial != nil {
		a.onPartial(PartialInput{ToolCallID: part.ID, ToolName: b.toolName, Value: value})
	}
	return append(events, Event{Type: EventToolInputPartial, ID: part.ID, ToolName: b.toolName, Partial: value})
}

func (a *Assembler) close(events []Event, f family, id string) []Event {
	key := blockKey{f, id}
	b, ok := a.blocks[key]
	if !ok {
		return a.warn(events, "%s end for unopened block %q", f, id)
	}
	a.forget(key)

	switch f {
	case familyText:
		return a.appendPart(events, ai.TextPart{Text: b.text.String()})
	case familyReasoning:
		return a.appendPart(events, ai.ReasoningPart{Text: b.text.String(), Signature: b.signature})
	}

	call := ai.ToolCallPart{ToolCallID: id, ToolName: b.toolName}
	input, err := b.parser.Final()
	if err != nil {
		call.Input = json.RawMessage(b.parser.Text())
		return a.appendPart(events, a.checkCall(call, err))
	}
	call.Input = input
	return a.appendPart(events, a.checkCall(call, nil))
}

// checkCall marks call invalid when parseErr is set or the input fails
// validation.
func (a *Assembler) checkCall(call ai.ToolCallPart, parseErr error) ai.ToolCallPart {
	if parseErr == nil && len(call.Input) > 0 && !json.Valid(call.Input) {
		var probe any
		parseErr = json.Unmarshal(call.Input, &probe)
	}
	if parseErr != nil {
		call.Invalid = true
		call.Error = ai.WrapError(ai.KindInvalidToolInput, parseErr, "tool %q: input is not valid JSON", call.ToolName).Error()
		return call
	}
	if len(call.Input) == 0 {
		call.Input = json.RawMessage(`{}`)
	}
	if a.validator == nil || call.ProviderExecuted {
		return call
	}
	if err := a.validator.ValidateInput(call.ToolName, call.Input); err != nil && ai.KindOf(err) == ai.KindInvalidToolInput {
		call.Invalid = true
		call.Error = err.Error()
	}
	return call
}

func (a *Assembler) appendPart(events []Event, part ai.Part) []Event {
	a.out.Content = append(a.out.Content, part)
	return append(events, Event{Type: EventPart, Part: part})
}

func (a *Assembler) forget(key blockKey) {
	delete(a.blocks, key)
	a.order = slices.DeleteFunc(a.order, func(k blockKey) bool { return k == key })
}

func (a *Assembler) discardToolInputs(events []Event, at string) []Event {
	for _, key := range slices.Clone(a.order) {
		if key.family != familyToolInput {
			continue
		}
		a.forget(key)
		events = a.warn(events, "tool input %q still open at %s discarded", key.id, at)
	}
	return events
}

func (a *Assembler) flushOpen() {
	a.discardToolInputs(nil, "end of stream")
	for _, key := range slices.Clone(a.order) {
		b := a.blocks[key]
		a.forget(key)
		a.warn(nil, "%s block %q truncated at end of stream", key.family, key.id)
		switch key.family {
		case familyText:
			a.out.Content = append(a.out.Content, ai.TextPart{Text: b.text.String()})
		case familyReasoning:
			a.out.Content = append(a.out.Content, ai.ReasoningPart{Text: b.text.String(), Signature: b.signature})
		}
	}
}

func (a *Assembler) warn(events []Event, format string, args ...any) []Event {
	return a.addWarning(events, ai.StreamWarning(format, args...))
}

func (a *Assembler) addWarning(events []Event, w ai.Warning) []Event {
	a.out.Warnings = append(a.out.Warnings, w)
	return append(events, Event{Type: EventWarning, Warning: &w})
}
