package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/leofalp/llmkit/internal/utils"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/tool"
)

const (
	// Name is the tool name advertised to the model.
	Name = "web_fetch"

	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "llmkit-webfetch/1.0"
	// DefaultMaxBytes caps the downloaded body.
	DefaultMaxBytes = 2 * 1024 * 1024
	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects = 10
)

// Fetcher downloads pages. Build one with NewFetcher; the zero value is not usable.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	maxBytes  int64
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds each fetch, including reading the body.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithMaxBytes caps the number of body bytes read.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		f.userAgent = userAgent
	}
}

// WithHTTPClient replaces the HTTP client. The redirect policy of the given
// client is kept as is.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher returns a Fetcher with a dedicated transport whose dial, TLS and
// header timeouts are bounded so slow servers cannot stall the agent loop.
func NewFetcher(options ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultTimeout,
		maxBytes:  DefaultMaxBytes,
		userAgent: DefaultUserAgent,
	}
	for _, option := range options {
		option(f)
	}
	if f.client == nil {
		f.client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   10,
				ForceAttemptHTTP2:     true,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		}
	}
	return f
}

// New returns the web fetch tool descriptor.
func New(options ...Option) *tool.Descriptor {
	fetcher := NewFetcher(options...)
	return tool.MustTool(Name, fetcher.Fetch,
		tool.WithDescription("Fetches a web page over HTTP(S) and returns its content as Markdown. "+
			"Partial URLs such as example.com are accepted. Returns the final URL after redirects."),
	)
}

// Input is the tool input.
type Input struct {
	URL         string `json:"url" jsonschema:"description=URL of the page; https:// is added when no scheme is given"`
	IncludeHTML bool   `json:"include_html,omitempty" jsonschema:"description=Also return the raw HTML"`
}

// Output is the tool result.
type Output struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Markdown    string `json:"markdown"`
	HTML        string `json:"html,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// Fetch downloads req.URL. Input problems (empty URL, unsupported scheme)
// are InvalidToolInput errors; network failures and non-2xx statuses are
// ToolExecution errors.
func (f *Fetcher) Fetch(ctx context.Context, req Input) (Output, error) {
	url, err := normalizeURL(req.URL)
	if err != nil {
		return Output{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Output{}, ai.WrapError(ai.KindInvalidToolInput, err, "invalid URL %q", url)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, ai.WrapError(ai.KindToolExecution, err, "fetch %s: timed out or cancelled", url)
		}
		return Output{}, ai.WrapError(ai.KindToolExecution, err, "fetch %s", url)
	}
	defer utils.CloseWithLog(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Output{}, &ai.Error{
			Kind:       ai.KindToolExecution,
			Message:    fmt.Sprintf("fetch %s: unexpected status %s", url, resp.Status),
			StatusCode: resp.StatusCode,
		}
	}

	// one extra byte tells a body of exactly maxBytes from a longer one
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, ai.WrapError(ai.KindToolExecution, err, "fetch %s: timed out reading body", url)
		}
		return Output{}, ai.WrapError(ai.KindToolExecution, err, "fetch %s: read body", url)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	markdown := string(body)
	if isHTML(contentType, body) {
		markdown, err = htmltomarkdown.ConvertString(string(body))
		if err != nil {
			return Output{}, ai.WrapError(ai.KindToolExecution, err, "convert %s to markdown", url)
		}
	}

	out := Output{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Markdown:    strings.TrimSpace(markdown),
		Truncated:   truncated,
	}
	if req.IncludeHTML {
		out.HTML = string(body)
	}
	return out, nil
}

func normalizeURL(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url == "" {
		return "", ai.NewError(ai.KindInvalidToolInput, "url must not be empty")
	}
	scheme, _, hasScheme := strings.Cut(url, "://")
	if !hasScheme {
		return "https://" + url, nil
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return url, nil
	default:
		return "", ai.NewError(ai.KindInvalidToolInput, "unsupported scheme %q", scheme)
	}
}

// isHTML trusts the Content-Type when present and sniffs the body otherwise.
func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return strings.Contains(contentType, "html")
}
