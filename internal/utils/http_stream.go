package utils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

// PostStream sends body as JSON and returns the response with its body left
// open for SSE reading. The caller must close the body. On a non-2xx status
// the body is read, closed and classified with ClassifyHTTPError.
func PostStream(ctx context.Context, client *http.Client, url string, body any, headers ...HeaderOption) (*http.Response, error) {
	response, err := send(ctx, client, url, body, "text/event-stream", headers)
	if err != nil {
		return nil, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer CloseWithLog(response.Body)
		errorBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodySize))
		if readErr != nil {
			return nil, ai.WrapError(ai.KindProviderTransient, readErr, "status %d and unreadable body", response.StatusCode)
		}
		return nil, ClassifyHTTPError(response.StatusCode, response.Header, errorBody)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventHTTPStreamStarted,
			observability.Int(observability.AttrHTTPStatusCode, response.StatusCode),
		)
	}
	return response, nil
}

// maxSSELineSize is the largest accepted SSE line (1 MB). bufio.Scanner
// defaults to 64 KiB, which long tool arguments exceed.
const maxSSELineSize = 1 * 1024 * 1024

// doneSentinel closes OpenAI style streams.
const doneSentinel = "[DONE]"

// SSEEvent is one dispatched Server-Sent Event.
type SSEEvent struct {
	// Name is the "event:" field, empty for unnamed events.
	Name string
	ID   string
	// Data joins multiple "data:" lines with newlines.
	Data string
}

// SSEReader reads Server-Sent Events. Events are terminated by a blank line;
// comment lines (":") are skipped; a "data: [DONE]" payload ends the stream.
type SSEReader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewSSEReader returns a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event with a non-empty data payload. It returns
// io.EOF at the end of input or at the [DONE] sentinel. A trailing event
// without the terminating blank line is still returned.
func (reader *SSEReader) Next() (SSEEvent, error) {
	if reader.done {
		return SSEEvent{}, io.EOF
	}

	var (
		event SSEEvent
		data  []string
	)
	for reader.scanner.Scan() {
		line := reader.scanner.Text()

		if line == "" {
			if len(data) > 0 {
				event.Data = strings.Join(data, "\n")
				return event, nil
			}
			event = SSEEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if strings.TrimSpace(value) == doneSentinel {
				reader.done = true
				return SSEEvent{}, io.EOF
			}
			data = append(data, value)
		case "event":
			event.Name = value
		case "id":
			event.ID = value
		}
	}

	if err := reader.scanner.Err(); err != nil {
		return SSEEvent{}, fmt.Errorf("read SSE stream: %w", err)
	}
	if len(data) > 0 {
		event.Data = strings.Join(data, "\n")
		return event, nil
	}
	reader.done = true
	return SSEEvent{}, io.EOF
}
