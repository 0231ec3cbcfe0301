package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

// maxResponseBodySize caps how much of a response body is read (10 MB).
const maxResponseBodySize int64 = 10 * 1024 * 1024

// HeaderOption is a single request header.
type HeaderOption struct {
	Key   string
	Value string
}

// Bearer returns an Authorization header for a bearer token. An empty token
// yields no header.
func Bearer(token string) []HeaderOption {
	if token == "" {
		return nil
	}
	return []HeaderOption{{Key: "Authorization", Value: "Bearer " + token}}
}

// Headers converts a map into header options.
func Headers(m map[string]string) []HeaderOption {
	out := make([]HeaderOption, 0, len(m))
	for k, v := range m {
		out = append(out, HeaderOption{Key: k, Value: v})
	}
	return out
}

// PostJSON sends body as JSON and decodes a 2xx response into Out. It returns
// the raw response bytes for replay alongside the decoded value.
//
// Failures are *ai.Error values: transport errors are ProviderTransient (or
// Cancelled when ctx is done), non-2xx statuses go through ClassifyHTTPError,
// an empty 2xx body is EmptyResponseBody and an undecodable one is
// SchemaViolation. The response body is always closed.
func PostJSON[Out any](ctx context.Context, client *http.Client, url string, body any, headers ...HeaderOption) (*Out, []byte, error) {
	response, err := send(ctx, client, url, body, "application/json", headers)
	if err != nil {
		return nil, nil, err
	}
	defer CloseWithLog(response.Body)

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ai.NewCancelled(ctx.Err())
		}
		return nil, nil, ai.WrapError(ai.KindProviderTransient, err, "read response body")
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventHTTPResponse,
			observability.Int(observability.AttrHTTPStatusCode, response.StatusCode),
			observability.Int(observability.AttrHTTPResponseBodySize, len(raw)),
		)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, raw, ClassifyHTTPError(response.StatusCode, response.Header, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, raw, ai.NewError(ai.KindEmptyResponseBody, "provider returned an empty body")
	}

	var out Out
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, ai.WrapError(ai.KindSchemaViolation, err, "decode response body: %s", TruncateString(string(raw), 200))
	}
	return &out, raw, nil
}

// send marshals body, issues the POST and returns the open response. Only
// transport level failures are reported here.
func send(ctx context.Context, client *http.Client, url string, body any, accept string, headers []HeaderOption) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ai.WrapError(ai.KindInvalidArgument, err, "encode request body")
	}

	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent(observability.EventHTTPRequest,
			observability.String(observability.AttrHTTPMethod, http.MethodPost),
			observability.String(observability.AttrHTTPURL, url),
			observability.Int(observability.AttrHTTPRequestBodySize, len(payload)),
		)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, ai.WrapError(ai.KindInvalidArgument, err, "build request")
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", accept)
	for _, h := range headers {
		request.Header.Set(h.Key, h.Value)
	}

	start := time.Now()
	response, err := client.Do(request)
	if err != nil {
		if span != nil {
			span.AddEvent(observability.EventHTTPError,
				observability.Error(err),
				observability.Duration(observability.AttrHTTPDuration, time.Since(start)),
			)
		}
		if ctx.Err() != nil {
			return nil, ai.NewCancelled(ctx.Err())
		}
		return nil, ai.WrapError(ai.KindProviderTransient, err, "send request")
	}
	return response, nil
}

// CloseWithLog closes c and logs a failure instead of returning it.
func CloseWithLog(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err.Error())
	}
}

// WithProvider stamps the provider name on an *ai.Error and returns err.
func WithProvider(err error, provider string) error {
	if e, ok := err.(*ai.Error); ok && e.Provider == "" {
		e.Provider = provider
	}
	return err
}

// RawJSON marshals v, returning nil on failure. Used to snapshot request bodies.
func RawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// HeaderMap flattens response headers for ResponseMetadata.
func HeaderMap(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
