package mcptool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/tool"
)

// Source is a connection to one MCP server.
type Source struct {
	implementation *mcp.Implementation
	prefix         string
	approval       tool.ApprovalPolicy

	mu      sync.Mutex
	session *mcp.ClientSession
}

// Option configures a Source.
type Option func(*Source)

// WithPrefix prepends prefix to every tool name, keeping tools of several
// servers apart in one registry. Calls use the original name.
func WithPrefix(prefix string) Option {
	return func(s *Source) {
		s.prefix = prefix
	}
}

// WithApproval applies policy to every tool of the server.
func WithApproval(policy tool.ApprovalPolicy) Option {
	return func(s *Source) {
		s.approval = policy
	}
}

// WithImplementation sets the client name and version sent at initialization.
func WithImplementation(name, version string) Option {
	return func(s *Source) {
		s.implementation = &mcp.Implementation{Name: name, Version: version}
	}
}

// New returns an unconnected Source.
func New(options ...Option) *Source {
	s := &Source{implementation: &mcp.Implementation{Name: "llmkit", Version: "0.1.0"}}
	for _, option := range options {
		option(s)
	}
	return s
}

// CommandTransport starts an MCP server subprocess speaking over stdio.
func CommandTransport(command string, args ...string) mcp.Transport {
	return &mcp.CommandTransport{Command: exec.Command(command, args...)}
}

// Connect performs the MCP handshake over transport.
func (s *Source) Connect(ctx context.Context, transport mcp.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return ai.NewError(ai.KindInvalidArgument, "mcptool: already connected")
	}

	client := mcp.NewClient(s.implementation, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcptool: connect: %w", err)
	}
	s.session = session
	return nil
}

// Close ends the session. Closing an unconnected Source is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

func (s *Source) current() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ai.NewError(ai.KindToolExecution, "mcptool: not connected")
	}
	return s.session, nil
}

// Descriptors lists the server tools, following pagination, and maps each
// to a descriptor.
func (s *Source) Descriptors(ctx context.Context) ([]*tool.Descriptor, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}

	var descriptors []*tool.Descriptor
	params := &mcp.ListToolsParams{}
	for {
		result, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("mcptool: list tools: %w", err)
		}
		for _, t := range result.Tools {
			d, err := s.descriptor(t)
			if err != nil {
				return nil, fmt.Errorf("mcptool: tool %q: %w", t.Name, err)
			}
			descriptors = append(descriptors, d)
		}
		if result.NextCursor == "" {
			return descriptors, nil
		}
		params = &mcp.ListToolsParams{Cursor: result.NextCursor}
	}
}

func (s *Source) descriptor(t *mcp.Tool) (*tool.Descriptor, error) {
	var schema json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode input schema: %w", err)
		}
		schema = data
	}

	name := t.Name
	return &tool.Descriptor{
		Name:        s.prefix + name,
		Description: t.Description,
		InputSchema: schema,
		Approval:    s.approval,
		Executor: tool.Single(func(ctx context.Context, input json.RawMessage, _ tool.CallContext) (any, error) {
			return s.call(ctx, name, input)
		}),
	}, nil
}

// call invokes the named tool. Error results become ToolExecution errors
// carrying the server text.
func (s *Source) call(ctx context.Context, name string, input json.RawMessage) (any, error) {
	session, err := s.current()
	if err != nil {
		return nil, err
	}

	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, ai.WrapError(ai.KindInvalidToolInput, err, "arguments must be a JSON object")
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ai.NewCancelled(ctx.Err())
		}
		return nil, ai.WrapError(ai.KindToolExecution, err, "call %s", name)
	}
	if result.IsError {
		message := joinText(result.Content)
		if message == "" {
			message = "tool reported an error"
		}
		return nil, ai.NewError(ai.KindToolExecution, "%s", message)
	}
	return shapeResult(result), nil
}

// shapeResult prefers structured content, then media, then joined text.
func shapeResult(result *mcp.CallToolResult) ai.ToolOutput {
	if result.StructuredContent != nil {
		return ai.JSONOutput(result.StructuredContent)
	}

	var (
		items    []ai.MediaItem
		hasMedia bool
	)
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			items = append(items, ai.MediaItem{Type: "text", Text: c.Text})
		case *mcp.ImageContent:
			hasMedia = true
			items = append(items, ai.MediaItem{Type: "media", Data: base64.StdEncoding.EncodeToString(c.Data), MediaType: c.MIMEType})
		case *mcp.AudioContent:
			hasMedia = true
			items = append(items, ai.MediaItem{Type: "media", Data: base64.StdEncoding.EncodeToString(c.Data), MediaType: c.MIMEType})
		}
	}
	if hasMedia {
		return ai.MediaOutput(items...)
	}
	return ai.TextOutput(joinText(result.Content))
}

func joinText(contents []mcp.Content) string {
	var texts []string
	for _, content := range contents {
		if c, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n")
}
