package anthropic

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/observability"
)

const (
	// ProviderName is the key for provider options and metadata.
	ProviderName = "anthropic"

	defaultBaseURL   = "https://api.anthropic.com/v1"
	messagesEndpoint = "/messages"
	apiVersion       = "2023-06-01"
)

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	modelID      string
	apiKey       string
	baseURL      string
	client       *http.Client
	betas        []string
	capabilities ai.Capabilities
}

var _ ai.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithAPIKey sets the API key, overriding ANTHROPIC_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(a *Adapter) {
		a.apiKey = apiKey
	}
}

// WithBaseURL sets the API base URL, overriding ANTHROPIC_API_BASE_URL.
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

// WithBeta adds anthropic-beta header values sent on every request.
func WithBeta(betas ...string) Option {
	return func(a *Adapter) {
		a.betas = append(a.betas, betas...)
	}
}

// WithCapabilities overrides the advertised capabilities.
func WithCapabilities(capabilities ai.Capabilities) Option {
	return func(a *Adapter) {
		a.capabilities = capabilities
	}
}

// New creates an adapter for modelID.
func New(modelID string, options ...Option) *Adapter {
	a := &Adapter{
		modelID:      modelID,
		apiKey:       os.Getenv("ANTHROPIC_API_KEY"),
		baseURL:      os.Getenv("ANTHROPIC_API_BASE_URL"),
		client:       &http.Client{},
		capabilities: defaultCapabilities,
	}
	if a.baseURL == "" {
		a.baseURL = defaultBaseURL
	}
	for _, option := range options {
		option(a)
	}
	a.baseURL = strings.TrimSuffix(a.baseURL, "/")
	return a
}

// Factory adapts New to ai.Factory for registry use.
func Factory(options ...Option) ai.Factory {
	return func(modelID string) (ai.Adapter, error) {
		return New(modelID, options...), nil
	}
}

func (a *Adapter) Provider() string              { return ProviderName }
func (a *Adapter) ModelID() string               { return a.modelID }
func (a *Adapter) Capabilities() ai.Capabilities { return a.capabilities }

// Generate sends a non-streaming Messages request.
func (a *Adapter) Generate(ctx context.Context, options ai.CallOptions) (*ai.GenerateResponse, error) {
	request, plan, err := a.buildRequest(options, false)
	if err != nil {
		return nil, utils.WithProvider(err, ProviderName)
	}
	a.annotate(ctx, request, false)

	response, raw, err := utils.PostJSON[messagesResponse](ctx, a.client, a.baseURL+messagesEndpoint, request, a.headers(options, plan)...)
	if err != nil {
		return nil, utils.WithProvider(err, ProviderName)
	}
	if response.Type == "error" || (len(response.Content) == 0 && response.StopReason == "") {
		return nil, utils.WithProvider(ai.NewError(ai.KindEmptyResponseBody, "response has no content"), ProviderName)
	}

	result := convertResponse(response, plan.jsonTool)
	result.Warnings = plan.warnings
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

// Stream sends a streaming Messages request. Errors before the first event
// are returned directly; later ones travel on the stream.
func (a *Adapter) Stream(ctx context.Context, options ai.CallOptions) (*ai.StreamResponse, error) {
	request, plan, err := a.buildRequest(options, true)
	if err != nil {
		return nil, utils.WithProvider(err, ProviderName)
	}
	request.Stream = true
	a.annotate(ctx, request, true)

	response, err := utils.PostStream(ctx, a.client, a.baseURL+messagesEndpoint, request, a.headers(options, plan)...)
	if err != nil {
		return nil, utils.WithProvider(err, ProviderName)
	}

	decoder := newStreamDecoder(plan, response.Header)
	stream := ai.StreamFromPush(ctx, func(ctx context.Context, emit func(ai.StreamPart) error) error {
		defer utils.CloseWithLog(response.Body)
		return utils.WithProvider(decoder.run(ctx, utils.NewSSEReader(response.Body), emit), ProviderName)
	})

	return &ai.StreamResponse{
		Stream:   stream,
		Warnings: plan.warnings,
		Request:  ai.RequestMetadata{Body: utils.RawJSON(request)},
	}, nil
}

func (a *Adapter) headers(options ai.CallOptions, plan *callPlan) []utils.HeaderOption {
	headers := []utils.HeaderOption{
		{Key: "anthropic-version", Value: apiVersion},
	}
	if a.apiKey != "" {
		headers = append(headers, utils.HeaderOption{Key: "x-api-key", Value: a.apiKey})
	}
	if beta := betaHeader(a.betas, plan.betas...); beta != "" {
		headers = append(headers, utils.HeaderOption{Key: "anthropic-beta", Value: beta})
	}
	return append(headers, utils.Headers(options.Headers)...)
}

func (a *Adapter) annotate(ctx context.Context, request *messagesRequest, streaming bool) {
	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, ProviderName),
			observability.String(observability.AttrLLMEndpoint, a.baseURL),
			observability.String(observability.AttrLLMModel, a.modelID),
			observability.Bool(observability.AttrLLMStreaming, streaming),
		)
	}
	if observer := observability.ObserverFromContext(ctx); observer != nil {
		observer.Trace(ctx, "anthropic request prepared",
			observability.String(observability.AttrLLMModel, a.modelID),
			observability.Int(observability.AttrRequestMessages, len(request.Messages)),
			observability.Int(observability.AttrToolsCount, len(request.Tools)),
		)
	}
}
