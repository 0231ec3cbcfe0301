package agent

import (
	"iter"

	"github.com/leofalp/llmkit/core/assembler"
	"github.com/leofalp/llmkit/core/step"
	"github.com/leofalp/llmkit/providers/ai"
)

// EventType identifies an agent event. Model output events reuse the
// assembler names.
type EventType string

const (
	EventTextDelta        = EventType(assembler.EventTextDelta)
	EventReasoningDelta   = EventType(assembler.EventReasoningDelta)
	EventToolInputStart   = EventType(assembler.EventToolInputStart)
	EventToolInputPartial = EventType(assembler.EventToolInputPartial)
	EventPart             = EventType(assembler.EventPart)
	EventFinish           = EventType(assembler.EventFinish)
	EventWarning          = EventType(assembler.EventWarning)
	EventError            = EventType(assembler.EventError)
	EventRaw              = EventType(assembler.EventRaw)
	EventResponseMetadata = EventType(assembler.EventResponseMetadata)

	// EventStepStart is emitted before each model call.
	EventStepStart EventType = "step-start"
	// EventStepFinish carries the completed step.
	EventStepFinish EventType = "step-finish"
	// EventToolResult carries a tool result, preliminary or final.
	EventToolResult EventType = "tool-result"
	// EventApprovalRequest is emitted for each call waiting for approval.
	EventApprovalRequest EventType = "approval-request"
)

// Event is one notification of a streaming run. Step is the 1-based step
// number; the remaining fields follow Type.
type Event struct {
	Type EventType
	Step int

	ID       string
	Delta    string
	ToolName string
	Partial  any
	Part     ai.Part

	FinishReason ai.FinishReason
	Usage        ai.Usage
	Warning      *ai.Warning
	Err          error

	ToolResult      *ai.ToolResultPart
	ApprovalRequest *ai.ApprovalRequestPart
	StepResult      *step.Result
}

func fromAssembler(stepNumber int, e assembler.Event) Event {
	return Event{
		Type:         EventType(e.Type),
		Step:         stepNumber,
		ID:           e.ID,
		Delta:        e.Delta,
		ToolName:     e.ToolName,
		Partial:      e.Partial,
		Part:         e.Part,
		FinishReason: e.FinishReason,
		Usage:        e.Usage,
		Warning:      e.Warning,
		Err:          e.Err,
	}
}

// Stream is a running agent loop. Consume it with Iter or Collect; breaking
// out of Iter early cancels the run.
type Stream struct {
	iterator iter.Seq2[Event, error]
	result   *Result
}

// Iter returns the event sequence. A non-nil error is yielded once and ends
// the sequence.
//
// Example:
//
//	for event, err := range a.Stream(ctx, prompt).Iter() {
//	    if err != nil {
//	        return err
//	    }
//	    if event.Type == agent.EventTextDelta {
//	        fmt.Print(event.Delta)
//	    }
//	}
func (s *Stream) Iter() iter.Seq2[Event, error] {
	return s.iterator
}

// Collect drains the stream and returns the run result.
func (s *Stream) Collect() (*Result, error) {
	for _, err := range s.iterator {
		if err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

// Result returns the run result once the stream has been fully consumed
// without error, and nil before that.
func (s *Stream) Result() *Result {
	return s.result
}
