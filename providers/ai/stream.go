package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// PartStream wraps a lazy sequence of stream parts.
//
// Callers must consume the stream, either by ranging over Iter (breaking out
// early is fine) or by calling Collect or Each. Adapters hold the HTTP
// response body open until the iterator returns, so a stream that is never
// iterated leaks that connection.
type PartStream struct {
	iterator iter.Seq2[StreamPart, error]
}

// NewPartStream creates a PartStream from a raw iterator. The iterator yields
// parts with a nil error and may yield a single non-nil error to signal a
// mid-stream failure, after which it must stop.
func NewPartStream(iterator iter.Seq2[StreamPart, error]) *PartStream {
	return &PartStream{iterator: iterator}
}

// Iter returns the pull-style iterator.
//
//	for part, err := range stream.Iter() {
//	    if err != nil { return err }
//	    ...
//	}
func (stream *PartStream) Iter() iter.Seq2[StreamPart, error] {
	if stream == nil || stream.iterator == nil {
		return func(func(StreamPart, error) bool) {}
	}
	return stream.iterator
}

// Each drives the stream push-style, invoking fn for every part. Iteration
// stops at the first error returned by fn or by the stream.
func (stream *PartStream) Each(fn func(StreamPart) error) error {
	for part, err := range stream.Iter() {
		if err != nil {
			return err
		}
		if err := fn(part); err != nil {
			return err
		}
	}
	return nil
}

// Collect drains the stream into a slice. Parts received before a mid-stream
// error are returned along with it.
func (stream *PartStream) Collect() ([]StreamPart, error) {
	var parts []StreamPart
	err := stream.Each(func(part StreamPart) error {
		parts = append(parts, part)
		return nil
	})
	return parts, err
}

// StreamFromParts returns a stream that replays parts.
func StreamFromParts(parts ...StreamPart) *PartStream {
	return NewPartStream(func(yield func(StreamPart, error) bool) {
		for _, part := range parts {
			if !yield(part, nil) {
				return
			}
		}
	})
}

// errStopped unwinds a push producer when the consumer stops iterating.
var errStopped = errors.New("stream consumer stopped")

// StreamFromPush converts a push-style producer into a PartStream. The
// producer calls emit for every part; emit returns an error once the
// consumer has stopped, and the producer should return promptly. A non-nil
// producer error is yielded as the terminal stream error. No goroutine is
// started: the producer runs on the consumer's goroutine.
func StreamFromPush(ctx context.Context, producer func(ctx context.Context, emit func(StreamPart) error) error) *PartStream {
	return NewPartStream(func(yield func(StreamPart, error) bool) {
		stopped := false
		emit := func(part StreamPart) error {
			if stopped {
				return errStopped
			}
			if err := ctx.Err(); err != nil {
				return NewCancelled(err)
			}
			if !yield(part, nil) {
				stopped = true
				return errStopped
			}
			return nil
		}

		err := producer(ctx, emit)
		if stopped || err == nil || errors.Is(err, errStopped) {
			return
		}
		yield(StreamPart{}, err)
	})
}

// StreamFromGenerate synthesizes a stream from a whole generate response, for
// adapters or callers that cannot stream. Text and reasoning parts become
// start/delta/end blocks, tool calls are emitted whole.
func StreamFromGenerate(response *GenerateResponse) *PartStream {
	return NewPartStream(func(yield func(StreamPart, error) bool) {
		if response == nil {
			yield(StreamPart{}, NewError(KindEmptyResponseBody, "nil generate response"))
			return
		}

		emit := func(parts ...StreamPart) bool {
			for _, part := range parts {
				if !yield(part, nil) {
					return false
				}
			}
			return true
		}

		if !emit(StreamStartEvent(response.Warnings), ResponseMetadataEvent(response.Response)) {
			return
		}

		for i, part := range response.Content {
			id := fmt.Sprintf("%d", i)
			var ok bool
			switch v := part.(type) {
			case TextPart:
				ok = emit(TextStart("txt-"+id), TextDelta("txt-"+id, v.Text), TextEnd("txt-"+id))
			case ReasoningPart:
				ok = emit(ReasoningStart("rsn-"+id), ReasoningDelta("rsn-"+id, v.Text), SignedReasoningEnd("rsn-"+id, v.Signature))
			case ToolCallPart:
				call := ToolCallEvent(v.ToolCallID, v.ToolName, v.Input)
				call.ProviderExecuted = v.ProviderExecuted
				call.Dynamic = v.Dynamic
				ok = emit(call)
			case ToolResultPart:
				ok = emit(ToolResultEvent(v.ToolCallID, v.ToolName, v.Output))
			case FilePart:
				ok = emit(FileEvent(v))
			case ImagePart:
				ok = emit(FileEvent(FilePart{MediaType: v.MediaType, Data: v.Data}))
			default:
				ok = true
			}
			if !ok {
				return
			}
		}

		emit(FinishEvent(response.FinishReason, response.Usage, response.ProviderMetadata))
	})
}
