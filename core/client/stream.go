package client

import (
	"strings"
	"time"

	"github.com/leofalp/llmkit/providers/ai"
)

// StreamSummary describes a wrapped stream at the moment iteration ended.
type StreamSummary struct {
	Parts        int
	FinishReason ai.FinishReason
	Usage        ai.Usage
	// Finished is set when a finish part was seen.
	Finished bool
	// Abandoned is set when the consumer stopped before the stream ended.
	Abandoned bool
	// Err is the terminal stream error, or the first in-stream error part.
	Err error
	// FirstPart is the delay between start and the first part.
	FirstPart time.Duration
	Duration  time.Duration
	Text      string
}

// WrapStream returns a shallow copy of response whose stream forwards every
// part unchanged and calls done once, when iteration ends for any reason.
// done is never called for a stream nobody iterates.
func WrapStream(response *ai.StreamResponse, start time.Time, done func(StreamSummary)) *ai.StreamResponse {
	if response == nil {
		return nil
	}
	inner := response.Stream
	wrapped := *response
	wrapped.Stream = ai.NewPartStream(func(yield func(ai.StreamPart, error) bool) {
		var (
			summary StreamSummary
			text    strings.Builder
		)
		defer func() {
			summary.Duration = time.Since(start)
			summary.Text = text.String()
			done(summary)
		}()

		for part, err := range inner.Iter() {
			if err != nil {
				summary.Err = err
				yield(part, err)
				return
			}
			if summary.Parts == 0 {
				summary.FirstPart = time.Since(start)
			}
			summary.Parts++
			switch part.Type {
			case ai.StreamPartTextDelta:
				text.WriteString(part.Delta)
			case ai.StreamPartFinish:
				summary.Finished = true
				summary.FinishReason = part.FinishReason
				summary.Usage = part.Usage
			case ai.StreamPartError:
				if summary.Err == nil {
					summary.Err = part.Err
				}
			}
			if !yield(part, nil) {
				summary.Abandoned = true
				return
			}
		}
	})
	return &wrapped
}
