package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

type blockKind int

const (
	blockText blockKind = iota
	blockReasoning
	blockToolInput
	// blockJSON is the json tool, streamed as text.
	blockJSON
)

type openBlock struct {
	kind blockKind
	id   string
	// thinking blocks receive their signature just before content_block_stop
	signature string
}

// streamDecoder turns Messages API events into stream parts. Text and
// thinking blocks are identified by their content index; tool-input blocks
// by the tool_use id so the assembled call keeps it.
type streamDecoder struct {
	plan    *callPlan
	headers map[string]string

	emit       func(ai.StreamPart) error
	blocks     map[int]openBlock
	usage      usage
	stopReason string
}

func newStreamDecoder(plan *callPlan, header http.Header) *streamDecoder {
	return &streamDecoder{
		plan:    plan,
		headers: utils.HeaderMap(header),
		blocks:  make(map[int]openBlock),
	}
}

// run reads events until message_stop. EOF before message_stop is a
// truncated stream; an error event ends the stream with an Error part.
func (d *streamDecoder) run(ctx context.Context, reader *utils.SSEReader, emit func(ai.StreamPart) error) error {
	d.emit = emit
	if err := emit(ai.StreamStartEvent(d.plan.warnings)); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return ai.NewCancelled(err)
		}

		sse, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return ai.NewError(ai.KindTruncatedStream, "stream ended before message_stop")
		}
		if err != nil {
			if ctx.Err() != nil {
				return ai.NewCancelled(ctx.Err())
			}
			return ai.WrapError(ai.KindProviderTransient, err, "read stream")
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(sse.Data), &event); err != nil {
			return ai.WrapError(ai.KindSchemaViolation, err, "decode stream event: %s", utils.TruncateString(sse.Data, 200))
		}

		switch event.Type {
		case "message_start":
			err = d.messageStart(event)
		case "content_block_start":
			err = d.blockStart(event)
		case "content_block_delta":
			err = d.blockDelta(event)
		case "content_block_stop":
			err = d.blockStop(event.Index)
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				d.stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				d.usage.OutputTokens = event.Usage.OutputTokens
				if event.Usage.InputTokens > 0 {
					d.usage.InputTokens = event.Usage.InputTokens
				}
			}
		case "message_stop":
			return d.finish()
		case "error":
			return d.emit(ai.ErrorEvent(streamError(event.Error)))
		}
		// ping and unknown event types are ignored
		if err != nil {
			return err
		}
	}
}

func (d *streamDecoder) messageStart(event streamEvent) error {
	if event.Message == nil {
		return nil
	}
	d.usage = event.Message.Usage
	return d.emit(ai.ResponseMetadataEvent(ai.ResponseMetadata{
		ID:      event.Message.ID,
		ModelID: event.Message.Model,
		Headers: d.headers,
	}))
}

func (d *streamDecoder) blockStart(event streamEvent) error {
	block := event.ContentBlock
	if block == nil {
		return nil
	}
	id := strconv.Itoa(event.Index)

	switch block.Type {
	case "text":
		d.blocks[event.Index] = openBlock{kind: blockText, id: id}
		if err := d.emit(ai.TextStart(id)); err != nil {
			return err
		}
		if block.Text != "" {
			return d.emit(ai.TextDelta(id, block.Text))
		}
	case "thinking":
		d.blocks[event.Index] = openBlock{kind: blockReasoning, id: id, signature: block.Signature}
		if err := d.emit(ai.ReasoningStart(id)); err != nil {
			return err
		}
		if block.Thinking != "" {
			return d.emit(ai.ReasoningDelta(id, block.Thinking))
		}
	case "tool_use":
		if d.plan.jsonTool && block.Name == jsonToolName {
			d.blocks[event.Index] = openBlock{kind: blockJSON, id: id}
			return d.emit(ai.TextStart(id))
		}
		d.blocks[event.Index] = openBlock{kind: blockToolInput, id: block.ID}
		return d.emit(ai.ToolInputStart(block.ID, block.Name))
	}
	return nil
}

func (d *streamDecoder) blockDelta(event streamEvent) error {
	block, ok := d.blocks[event.Index]
	if !ok || event.Delta == nil {
		return nil
	}
	delta := event.Delta

	switch delta.Type {
	case "text_delta":
		if delta.Text != "" {
			return d.emit(ai.TextDelta(block.id, delta.Text))
		}
	case "thinking_delta":
		if delta.Thinking != "" {
			return d.emit(ai.ReasoningDelta(block.id, delta.Thinking))
		}
	case "signature_delta":
		block.signature += delta.Signature
		d.blocks[event.Index] = block
	case "input_json_delta":
		if delta.PartialJSON == "" {
			return nil
		}
		if block.kind == blockJSON {
			return d.emit(ai.TextDelta(block.id, delta.PartialJSON))
		}
		return d.emit(ai.ToolInputDelta(block.id, delta.PartialJSON))
	}
	return nil
}

func (d *streamDecoder) blockStop(index int) error {
	block, ok := d.blocks[index]
	if !ok {
		return nil
	}
	delete(d.blocks, index)

	switch block.kind {
	case blockReasoning:
		return d.emit(ai.SignedReasoningEnd(block.id, block.signature))
	case blockToolInput:
		return d.emit(ai.ToolInputEnd(block.id))
	default:
		return d.emit(ai.TextEnd(block.id))
	}
}

// finish closes blocks left open by the provider, then emits Finish.
func (d *streamDecoder) finish() error {
	for _, index := range slices.Sorted(maps.Keys(d.blocks)) {
		if err := d.blockStop(index); err != nil {
			return err
		}
	}
	return d.emit(ai.FinishEvent(
		mapStopReason(d.stopReason, d.plan.jsonTool),
		mapUsage(d.usage),
		usageMetadata(d.usage),
	))
}

func streamError(e *apiError) *ai.Error {
	if e == nil {
		return ai.NewError(ai.KindProviderTransient, "stream error without details")
	}
	kind := ai.KindProviderTransient // overloaded_error, api_error
	switch e.Type {
	case "rate_limit_error":
		kind = ai.KindRateLimited
	case "authentication_error", "permission_error":
		kind = ai.KindAuthFailed
	case "invalid_request_error":
		kind = ai.KindInvalidRequest
	}
	return ai.NewError(kind, "%s: %s", e.Type, e.Message)
}
