package openai

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

const (
	// ProviderName is the default key for provider options and metadata.
	ProviderName = "openai"

	defaultBaseURL          = "https://api.openai.com/v1"
	chatCompletionsEndpoint = "/chat/completions"
)

// Adapter talks to an OpenAI-compatible Chat Completions endpoint.
type Adapter struct {
	name         string
	modelID      string
	apiKey       string
	baseURL      string
	client       *http.Client
	profile      hostProfile
	capabilities *ai.Capabilities
}

var _ ai.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithAPIKey sets the API key, overriding OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(a *Adapter) {
		a.apiKey = apiKey
	}
}

// WithBaseURL sets the API base URL, overriding OPENAI_API_BASE_URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

// WithName sets the provider key used for provider options and metadata,
// for example "openrouter" or "ollama".
func WithName(name string) Option {
	return func(a *Adapter) {
		a.name = name
	}
}

// WithCapabilities overrides the capabilities detected from the base URL.
func WithCapabilities(capabilities ai.Capabilities) Option {
	return func(a *Adapter) {
		a.capabilities = &capabilities
	}
}

// New creates an adapter for modelID. Credentials and base URL default to
// the OPENAI_API_KEY and OPENAI_API_BASE_URL environment variables.
func New(modelID string, options ...Option) *Adapter {
	a := &Adapter{
		name:    ProviderName,
		modelID: modelID,
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: os.Getenv("OPENAI_API_BASE_URL"),
		client:  &http.Client{},
	}
	if a.baseURL == "" {
		a.baseURL = defaultBaseURL
	}
	for _, option := range options {
		option(a)
	}
	a.baseURL = strings.TrimSuffix(a.baseURL, "/")
	a.profile = detectCapabilities(a.baseURL)
	if a.capabilities != nil {
		a.profile.capabilities = *a.capabilities
	}
	return a
}

// Factory adapts New to ai.Factory for registry use.
func Factory(options ...Option) ai.Factory {
	return func(modelID string) (ai.Adapter, error) {
		return New(modelID, options...), nil
	}
}

func (a *Adapter) Provider() string              { return a.name }
func (a *Adapter) ModelID() string               { return a.modelID }
func (a *Adapter) Capabilities() ai.Capabilities { return a.profile.capabilities }

// Generate performs a non-streaming chat completion.
func (a *Adapter) Generate(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
	request, warnings, err := a.buildRequest(options)
	if err != nil {
		return nil, utils.WithProvider(err, a.name)
	}
	a.annotate(ctx, request, false)

	response, raw, err := utils.PostJSON[chatResponse](ctx, a.client, a.baseURL+chatCompletionsEndpoint, request, a.headers(options)...)
	if err != nil {
		return nil, utils.WithProvider(err, a.name)
	}
	if len(response.Choices) == 0 {
		return nil, utils.WithProvider(ai.NewError(ai.KindEmptyResponseBody, "response has no choices"), a.name)
	}

	result := a.convertResponse(response, len(options.Tools) > 0)
	result.Warnings = warnings
	result.Request = ai.RequestMetadata{Body: utils.RawJSON(request)}
	result.Response.Body = raw

	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMResponseID, response.ID),
			observability.String(observability.AttrLLMFinishReason, result.FinishReason.String()),
			observability.Int(observability.AttrLLMUsageInput, result.Usage.InputTokens),
			observability.Int(observability.AttrLLMUsageOutput, result.Usage.OutputTokens),
		)
	}
	return result, nil
}

// Stream performs a streaming chat completion. The HTTP status is checked
// before returning; the body is read lazily as the stream is consumed.
func (a *Adapter) Stream(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
	request, warnings, err := a.buildRequest(options)
	if err != nil {
		return nil, utils.WithProvider(err, a.name)
	}
	request.Stream = true
	request.StreamOptions = &streamOptions{IncludeUsage: true}
	a.annotate(ctx, request, true)

	response, err := utils.PostStream(ctx, a.client, a.baseURL+chatCompletionsEndpoint, request, a.headers(options)...)
	if err != nil {
		return nil, utils.WithProvider(err, a.name)
	}

	decoder := newStreamDecoder(a.name, warnings, response.Header)
	stream := ai.StreamFromPush(ctx, func(ctx context.Context, emit func(ai.StreamPart) error) error {
		defer utils.CloseWithLog(response.Body)
		return utils.WithProvider(decoder.run(ctx, utils.NewSSEReader(response.Body), emit), a.name)
	})

	return &ai.StreamResponse{
		Stream:   stream,
		Warnings: warnings,
		Request:  ai.RequestMetadata{Body: utils.RawJSON(request)},
	}, nil
}

func (a *Adapter) headers(options ai.CallOptions) []utils.HeaderOption {
	headers := utils.Bearer(a.apiKey)
	return append(headers, utils.Headers(options.Headers)...)
}

// annotate enriches the span in ctx, if any, with request attributes.
func (a *Adapter) annotate(ctx context.Context, request *chatRequest, streaming bool) {
	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, a.name),
			observability.String(observability.AttrLLMEndpoint, a.baseURL),
			observability.String(observability.AttrLLMModel, a.modelID),
			observability.Bool(observability.AttrLLMStreaming, streaming),
		)
	}
	if observer := observability.ObserverFromContext(ctx); observer != nil {
		observer.Trace(ctx, "openai request prepared",
			observability.String(observability.AttrLLMProvider, a.name),
			observability.String(observability.AttrLLMModel, a.modelID),
			observability.Int(observability.AttrRequestMessages, len(request.Messages)),
			observability.Int(observability.AttrToolsCount, len(request.Tools)),
		)
	}
}

// unixTime converts a created timestamp, zero when absent.
func unixTime(created int64) time.Time {
	if created <= 0 {
		return time.Time{}
	}
	return time.Unix(created, 0).UTC()
}
