package webfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/tool"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
	<h1>Welcome</h1>
	<p>This is a <strong>test</strong> paragraph.</p>
	<ul><li>Item 1</li><li>Item 2</li></ul>
</body>
</html>`

func htmlServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestFetch_ConvertsHTML(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})

	out, err := NewFetcher().Fetch(context.Background(), Input{URL: server.URL})
	require.NoError(t, err)

	assert.Equal(t, server.URL, out.URL)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Contains(t, out.Markdown, "# Welcome")
	assert.Contains(t, out.Markdown, "**test**")
	assert.Contains(t, out.Markdown, "- Item 1")
	assert.Empty(t, out.HTML)
	assert.False(t, out.Truncated)
}

func TestFetch_IncludeHTML(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	})

	out, err := NewFetcher().Fetch(context.Background(), Input{URL: server.URL, IncludeHTML: true})
	require.NoError(t, err)
	assert.Equal(t, page, out.HTML)
}

func TestFetch_PlainTextIsNotConverted(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "  *literal* <b>text</b>  ")
	})

	out, err := NewFetcher().Fetch(context.Background(), Input{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "*literal* <b>text</b>", out.Markdown)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	var server *httptest.Server
	server = htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, server.URL+"/new", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<p>moved</p>")
	})

	out, err := NewFetcher().Fetch(context.Background(), Input{URL: server.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/new", out.URL)
	assert.Equal(t, "moved", out.Markdown)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	})

	_, err := NewFetcher().Fetch(context.Background(), Input{URL: server.URL + "/"})
	require.Error(t, err)
	assert.Equal(t, ai.KindToolExecution, ai.KindOf(err))
}

func TestFetch_Errors(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	tests := []struct {
		name string
		url  string
		kind ai.ErrorKind
	}{
		{"empty", "", ai.KindInvalidToolInput},
		{"whitespace", "   ", ai.KindInvalidToolInput},
		{"unsupported scheme", "ftp://example.com", ai.KindInvalidToolInput},
		{"not found", server.URL, ai.KindToolExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFetcher().Fetch(context.Background(), Input{URL: tt.url})
			require.Error(t, err)
			assert.Equal(t, tt.kind, ai.KindOf(err))
		})
	}
}

func TestFetch_MaxBytes(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("a", 100))
	})

	out, err := NewFetcher(WithMaxBytes(10)).Fetch(context.Background(), Input{URL: server.URL})
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Equal(t, strings.Repeat("a", 10), out.Markdown)

	out, err = NewFetcher(WithMaxBytes(100)).Fetch(context.Background(), Input{URL: server.URL})
	require.NoError(t, err)
	assert.False(t, out.Truncated, "a body of exactly the limit is complete")
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := NewFetcher(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), Input{URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, ai.KindToolExecution, ai.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetch_CustomUserAgent(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("User-Agent"))
	})

	out, err := NewFetcher(WithUserAgent("probe/2"), WithHTTPClient(server.Client())).
		Fetch(context.Background(), Input{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "probe/2", out.Markdown)
}

func TestNormalizeURL(t *testing.T) {
	got, err := normalizeURL("  example.com/path ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/path", got)

	got, err = normalizeURL("HTTP://example.com")
	require.NoError(t, err)
	assert.Equal(t, "HTTP://example.com", got)
}

func TestNew_RunsThroughExecute(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<h2>Docs</h2>")
	})

	d := New()
	assert.Equal(t, Name, d.Name)
	registry, err := tool.NewRegistry(d)
	require.NoError(t, err)

	input, _ := json.Marshal(Input{URL: server.URL})
	require.NoError(t, registry.ValidateInput(Name, input))

	result := tool.Execute(context.Background(), d, ai.ToolCallPart{ToolCallID: "w1", ToolName: Name, Input: input}, tool.CallContext{}, nil)
	require.Equal(t, ai.OutputJSON, result.Output.Kind)

	var out Output
	require.NoError(t, json.Unmarshal(result.Output.Value, &out))
	assert.Equal(t, "## Docs", out.Markdown)
}
