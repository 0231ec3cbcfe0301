package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
)

/*
	CHAT COMPLETIONS STREAMING API - CHUNK TYPES
*/

type streamChunk struct {
	ID      string          `json:"id"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []streamChoice  `json:"choices"`
	Usage   *chatUsage      `json:"usage,omitempty"` // final chunk only, with include_usage
	Error   json.RawMessage `json:"error,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"` // nil until the choice finishes
}

type streamDelta struct {
	Content          *string          `json:"content,omitempty"`
	Refusal          *string          `json:"refusal,omitempty"`
	Reasoning        *string          `json:"reasoning,omitempty"`
	ReasoningContent *string          `json:"reasoning_content,omitempty"`
	ToolCalls        []streamToolCall `json:"tool_calls,omitempty"`
}

// streamToolCall is an incremental tool call. The first delta for an index
// carries the id and function name; later ones carry argument fragments.
type streamToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

const (
	textBlockID      = "txt-0"
	reasoningBlockID = "rsn-0"
)

// pendingTool tracks one tool call by its index in the choice.
type pendingTool struct {
	id      string
	name    string
	started bool
	// buffered holds argument fragments received before the name.
	buffered strings.Builder
}

// streamDecoder turns chat completion chunks into stream parts. Text and
// reasoning each use a single block; tool calls become tool-input blocks
// closed when the stream ends.
type streamDecoder struct {
	provider string
	warnings []ai.Warning
	headers  map[string]string

	emit          func(ai.StreamPart) error
	sentMetadata  bool
	textOpen      bool
	reasoningOpen bool
	refusal       bool
	tools         map[int]*pendingTool
	finish        *ai.FinishReason
	usage         ai.Usage
}

func newStreamDecoder(provider string, warnings []ai.Warning, header http.Header) *streamDecoder {
	return &streamDecoder{
		provider: provider,
		warnings: warnings,
		headers:  utils.HeaderMap(header),
		tools:    make(map[int]*pendingTool),
	}
}

// run reads SSE events until [DONE] or EOF. The context is checked between
// reads; a stream that ends before any finish_reason is TruncatedStream.
func (d *streamDecoder) run(ctx context.Context, reader *utils.SSEReader, emit func(ai.StreamPart) error) error {
	d.emit = emit
	if err := emit(ai.StreamStartEvent(d.warnings)); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return ai.NewCancelled(err)
		}

		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ai.NewCancelled(ctx.Err())
			}
			return ai.WrapError(ai.KindProviderTransient, err, "read stream")
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
			return ai.WrapError(ai.KindSchemaViolation, err, "decode stream chunk: %s", utils.TruncateString(event.Data, 200))
		}
		if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
			message := utils.ErrorMessageFromBody([]byte(event.Data))
			return d.emit(ai.ErrorEvent(ai.NewError(ai.KindProviderTransient, "%s", message)))
		}
		if err := d.chunk(chunk); err != nil {
			return err
		}
	}

	return d.close()
}

func (d *streamDecoder) chunk(chunk streamChunk) error {
	if !d.sentMetadata && (chunk.ID != "" || chunk.Model != "") {
		d.sentMetadata = true
		err := d.emit(ai.ResponseMetadataEvent(ai.ResponseMetadata{
			ID:        chunk.ID,
			ModelID:   chunk.Model,
			Timestamp: unixTime(chunk.Created),
			Headers:   d.headers,
		}))
		if err != nil {
			return err
		}
	}
	if chunk.Usage != nil {
		d.usage = mapUsage(chunk.Usage)
	}

	for _, choice := range chunk.Choices {
		// only the first choice is surfaced; n > 1 is not requested
		if choice.Index != 0 {
			continue
		}
		if err := d.delta(choice.Delta); err != nil {
			return err
		}
		if choice.FinishReason != nil {
			reason := mapFinishReason(*choice.FinishReason)
			d.finish = &reason
		}
	}
	return nil
}

func (d *streamDecoder) delta(delta streamDelta) error {
	reasoning := utils.Deref(delta.Reasoning, "")
	if reasoning == "" {
		reasoning = utils.Deref(delta.ReasoningContent, "")
	}
	if reasoning != "" {
		if !d.reasoningOpen {
			d.reasoningOpen = true
			if err := d.emit(ai.ReasoningStart(reasoningBlockID)); err != nil {
				return err
			}
		}
		if err := d.emit(ai.ReasoningDelta(reasoningBlockID, reasoning)); err != nil {
			return err
		}
	}

	text := utils.Deref(delta.Content, "")
	if refusal := utils.Deref(delta.Refusal, ""); refusal != "" {
		d.refusal = true
		text += refusal
	}
	if text != "" {
		if !d.textOpen {
			d.textOpen = true
			if err := d.emit(ai.TextStart(textBlockID)); err != nil {
				return err
			}
		}
		if err := d.emit(ai.TextDelta(textBlockID, text)); err != nil {
			return err
		}
	}

	for _, call := range delta.ToolCalls {
		if err := d.toolDelta(call); err != nil {
			return err
		}
	}
	return nil
}

func (d *streamDecoder) toolDelta(call streamToolCall) error {
	tool, ok := d.tools[call.Index]
	if !ok {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", call.Index)
		}
		tool = &pendingTool{id: id}
		d.tools[call.Index] = tool
	}
	if call.Function.Name != "" {
		tool.name = call.Function.Name
	}

	if !tool.started && tool.name != "" {
		tool.started = true
		if err := d.emit(ai.ToolInputStart(tool.id, tool.name)); err != nil {
			return err
		}
		if tool.buffered.Len() > 0 {
			if err := d.emit(ai.ToolInputDelta(tool.id, tool.buffered.String())); err != nil {
				return err
			}
		}
	}

	if call.Function.Arguments == "" {
		return nil
	}
	if !tool.started {
		tool.buffered.WriteString(call.Function.Arguments)
		return nil
	}
	return d.emit(ai.ToolInputDelta(tool.id, call.Function.Arguments))
}

// close ends every open block, tools in index order, then emits Finish.
func (d *streamDecoder) close() error {
	if d.finish == nil {
		return ai.NewError(ai.KindTruncatedStream, "stream ended before a finish reason")
	}

	var parts []ai.StreamPart
	if d.reasoningOpen {
		parts = append(parts, ai.ReasoningEnd(reasoningBlockID))
	}
	if d.textOpen {
		parts = append(parts, ai.TextEnd(textBlockID))
	}
	for _, index := range slices.Sorted(maps.Keys(d.tools)) {
		if tool := d.tools[index]; tool.started {
			parts = append(parts, ai.ToolInputEnd(tool.id))
		}
	}

	var metadata ai.ProviderMetadata
	if d.refusal {
		metadata = ai.ProviderMetadata{d.provider: {"refusal": true}}
	}
	parts = append(parts, ai.FinishEvent(*d.finish, d.usage, metadata))

	for _, part := range parts {
		if err := d.emit(part); err != nil {
			return err
		}
	}
	return nil
}
