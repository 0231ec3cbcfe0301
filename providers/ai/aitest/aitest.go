// Package aitest provides a scripted ai.Adapter for tests and examples.
//
// Each call to Generate or Stream consumes the next Turn of the script, so a
// multi-step agent run is described as a list of model responses:
//
//	adapter := aitest.New(
//	    aitest.ToolCallTurn(ai.ToolCallPart{ToolCallID: "c1", ToolName: "weather", Input: json.RawMessage(`{"city":"SF"}`)}),
//	    aitest.TextTurn("It is sunny."),
//	)
package aitest

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/leofalp/llmkit/providers/ai"
)

// DefaultUsage is reported by the turn constructors.
var DefaultUsage = ai.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}

// Turn is one scripted model response.
type Turn struct {
	// Parts are emitted in order by Stream and folded into a response by
	// Generate.
	Parts []ai.StreamPart
	// Err is returned by the call itself, before any part.
	Err error
	// StreamErr is yielded after Parts.
	StreamErr error
	// Block waits for context cancellation after Parts.
	Block bool
}

// Adapter replays Turns. It is safe for concurrent use.
type Adapter struct {
	provider     string
	modelID      string
	capabilities ai.Capabilities

	mu    sync.Mutex
	turns []Turn
	calls []ai.CallOptions
}

var _ ai.Adapter = (*Adapter)(nil)

// New returns an adapter with every capability enabled.
func New(turns ...Turn) *Adapter {
	return &Adapter{
		provider: "aitest",
		modelID:  "scripted",
		capabilities: ai.Capabilities{
			StructuredOutput: true,
			ToolCalling:      true,
			Streaming:        true,
			Reasoning:        true,
			Vision:           true,
		},
		turns: turns,
	}
}

// WithCapabilities replaces the advertised capabilities.
func (a *Adapter) WithCapabilities(capabilities ai.Capabilities) *Adapter {
	a.capabilities = capabilities
	return a
}

// WithModel sets the provider and model identifiers.
func (a *Adapter) WithModel(provider, modelID string) *Adapter {
	a.provider = provider
	a.modelID = modelID
	return a
}

// Push appends turns to the script.
func (a *Adapter) Push(turns ...Turn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, turns...)
}

// Calls returns the options received so far, in call order.
func (a *Adapter) Calls() []ai.CallOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// Remaining reports how many turns have not been consumed.
func (a *Adapter) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}

func (a *Adapter) Provider() string              { return a.provider }
func (a *Adapter) ModelID() string               { return a.modelID }
func (a *Adapter) Capabilities() ai.Capabilities { return a.capabilities }

func (a *Adapter) next(options ai.CallOptions) (Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	options.Prompt = slices.Clone(options.Prompt)
	a.calls = append(a.calls, options)
	if len(a.turns) == 0 {
		return Turn{}, ai.NewError(ai.KindInvalidRequest, "aitest: script exhausted after %d calls", len(a.calls)-1)
	}
	turn := a.turns[0]
	a.turns = a.turns[1:]
	return turn, nil
}

// Stream emits the next turn's parts.
func (a *Adapter) Stream(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
	turn, err := a.next(options)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	stream := ai.StreamFromPush(ctx, func(ctx context.Context, emit func(ai.StreamPart) error) error {
		for _, part := range turn.Parts {
			if err := emit(part); err != nil {
				return err
			}
		}
		if turn.Block {
			<-ctx.Done()
			return ai.NewCancelled(ctx.Err())
		}
		return turn.StreamErr
	})
	return &ai.StreamResponse{Stream: stream, Warnings: warnings(turn.Parts)}, nil
}

// Generate folds the next turn's parts into a whole response. Blocks are
// concatenated per id in close order; tool-input blocks become tool calls.
func (a *Adapter) Generate(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
	turn, err := a.next(options)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	if turn.Block {
		<-ctx.Done()
		return nil, ai.NewCancelled(ctx.Err())
	}
	if turn.StreamErr != nil {
		return nil, turn.StreamErr
	}
	return fold(turn.Parts), nil
}

func fold(parts []ai.StreamPart) *ai.GenerateResponse {
	response := &ai.GenerateResponse{Warnings: warnings(parts)}
	buffers := map[string]*strings.Builder{}
	names := map[string]string{}

	buffer := func(id string) *strings.Builder {
		b, ok := buffers[id]
		if !ok {
			b = &strings.Builder{}
			buffers[id] = b
		}
		return b
	}

	for _, part := range parts {
		switch part.Type {
		case ai.StreamPartTextDelta, ai.StreamPartReasoningDelta, ai.StreamPartToolInputDelta:
			buffer(part.ID).WriteString(part.Delta)
		case ai.StreamPartToolInputStart:
			names[part.ID] = part.ToolName
		case ai.StreamPartTextEnd:
			response.Content = append(response.Content, ai.TextPart{Text: buffer(part.ID).String()})
		case ai.StreamPartReasoningEnd:
			response.Content = append(response.Content, ai.ReasoningPart{Text: buffer(part.ID).String()})
		case ai.StreamPartToolInputEnd:
			input := json.RawMessage(buffer(part.ID).String())
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			response.Content = append(response.Content, ai.ToolCallPart{ToolCallID: part.ID, ToolName: names[part.ID], Input: input})
		case ai.StreamPartToolCall:
			response.Content = append(response.Content, ai.ToolCallPart{
				ToolCallID:       part.ID,
				ToolName:         part.ToolName,
				Input:            part.Input,
				ProviderExecuted: part.ProviderExecuted,
				Dynamic:          part.Dynamic,
			})
		case ai.StreamPartToolResult:
			response.Content = append(response.Content, ai.ToolResultPart{
				ToolCallID:       part.ID,
				ToolName:         part.ToolName,
				Output:           part.Output,
				ProviderExecuted: true,
			})
		case ai.StreamPartFile:
			response.Content = append(response.Content, *part.File)
		case ai.StreamPartResponseMetadata:
			response.Response = *part.Response
		case ai.StreamPartFinish:
			response.FinishReason = part.FinishReason
			response.Usage = part.Usage
			response.ProviderMetadata = part.ProviderMetadata
		}
	}
	return response
}

func warnings(parts []ai.StreamPart) []ai.Warning {
	for _, part := range parts {
		if part.Type == ai.StreamPartStreamStart {
			return part.Warnings
		}
	}
	return nil
}
