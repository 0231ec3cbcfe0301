package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leofalp/llmkit/core/agent"
	"github.com/leofalp/llmkit/core/client"
	"github.com/leofalp/llmkit/core/client/middleware"
	"github.com/leofalp/llmkit/core/cost"
	"github.com/leofalp/llmkit/providers/ai"
	"github.com/leofalp/llmkit/providers/ai/anthropic"
	"github.com/leofalp/llmkit/providers/ai/openai"
	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/storage"
	"github.com/leofalp/llmkit/providers/storage/filesystem"
	"github.com/leofalp/llmkit/providers/storage/inmemory"
	"github.com/leofalp/llmkit/providers/storage/pgstorage"
	"github.com/leofalp/llmkit/providers/tool"
	"github.com/leofalp/llmkit/providers/tool/calculator"
	"github.com/leofalp/llmkit/providers/tool/mcptool"
	"github.com/leofalp/llmkit/providers/tool/webfetch"
)

// app holds everything one invocation needs. Tests build it directly with
// a scripted registry and in-memory streams.
type app struct {
	cfg         Config
	registry    *ai.Registry
	observer    observability.Provider
	logger      *slog.Logger
	in          *bufio.Reader
	out         io.Writer
	errOut      io.Writer
	autoApprove bool
}

// newRegistry knows the built-in providers. API keys and base URLs come
// from the environment of each adapter package.
func newRegistry() *ai.Registry {
	registry := ai.NewRegistry()
	registry.Register("openai", func(modelID string) (ai.Adapter, error) {
		return openai.New(modelID), nil
	})
	registry.Register("anthropic", func(modelID string) (ai.Adapter, error) {
		return anthropic.New(modelID), nil
	})
	return registry
}

func (a *app) adapter() (ai.Adapter, error) {
	base, err := a.registry.Adapter(a.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", a.cfg.Model, err)
	}
	var chain []client.MiddlewareConfig
	if a.cfg.Timeout > 0 {
		chain = append(chain, middleware.NewTimeoutMiddleware(a.cfg.Timeout))
	}
	chain = append(chain, client.NewObservabilityMiddleware(a.observer, base))
	return client.New(base, chain...)
}

// tools builds the registry of enabled tools. The returned close function
// stops MCP subprocesses.
func (a *app) tools(ctx context.Context) (*tool.Registry, func(), error) {
	var (
		descriptors []*tool.Descriptor
		sources     []*mcptool.Source
	)
	closeAll := func() {
		for _, source := range sources {
			if err := source.Close(); err != nil {
				a.logger.Warn("close mcp server", "error", err)
			}
		}
	}

	if a.cfg.Tools.Calculator {
		descriptors = append(descriptors, calculator.New())
	}
	if a.cfg.Tools.WebFetch {
		descriptors = append(descriptors, webfetch.New())
	}
	for _, server := range a.cfg.MCP {
		var options []mcptool.Option
		options = append(options, mcptool.WithPrefix(server.Name+"_"))
		if server.RequireApproval {
			options = append(options, mcptool.WithApproval(tool.Always()))
		}
		source := mcptool.New(options...)
		if err := source.Connect(ctx, mcptool.CommandTransport(server.Command, server.Args...)); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
		sources = append(sources, source)
		found, err := source.Descriptors(ctx)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mcp server %s: list tools: %w", server.Name, err)
		}
		a.logger.Info("mcp server connected", "server", server.Name, "tools", len(found))
		descriptors = append(descriptors, found...)
	}

	for _, d := range descriptors {
		if slices.Contains(a.cfg.Tools.RequireApproval, d.Name) {
			d.Approval = tool.Always()
		}
	}
	registry, err := tool.NewRegistry(descriptors...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	for _, name := range a.cfg.Tools.RequireApproval {
		if !registry.Has(name) {
			a.logger.Warn("approval configured for unknown tool", "tool", name)
		}
	}
	return registry, closeAll, nil
}

// openStorage returns nil when storage is disabled.
func openStorage(ctx context.Context, cfg StorageConfig) (storage.SessionStore, func(), error) {
	switch cfg.Kind {
	case "memory":
		return inmemory.New(), func() {}, nil
	case "filesystem":
		store, err := filesystem.New(expandHome(cfg.Dir))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		var options []pgstorage.Option
		if cfg.Table != "" {
			options = append(options, pgstorage.WithTablePrefix(cfg.Table))
		}
		store := pgstorage.New(pool, options...)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// history loads the stored conversation of sessionID. A replay window that
// starts in the middle of a tool exchange is moved to the next user message.
func (a *app) history(ctx context.Context, store storage.Sink, sessionID string) (ai.Prompt, error) {
	messages, err := store.GetMessages(ctx, sessionID, a.cfg.Storage.History)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	for len(messages) > 0 && messages[0].Role != ai.RoleUser {
		messages = messages[1:]
	}
	return storage.ToPrompt(messages), nil
}

// converse sends input as one user turn and answers approval pauses until
// the run completes.
func (a *app) converse(ctx context.Context, input string, store storage.Sink, sessionID string) error {
	adapter, err := a.adapter()
	if err != nil {
		return err
	}
	registry, closeTools, err := a.tools(ctx)
	if err != nil {
		return err
	}
	defer closeTools()

	tracker := cost.NewTracker(a.cfg.Prices, a.cfg.Tools.ToolPrices)
	callOptions := ai.CallOptions{Temperature: a.cfg.Temperature}
	if a.cfg.MaxTokens > 0 {
		callOptions.MaxOutputTokens = &a.cfg.MaxTokens
	}
	options := []agent.Option{
		agent.WithTools(registry),
		agent.WithMaxSteps(a.cfg.MaxSteps),
		agent.WithCallOptions(callOptions),
		agent.WithOnStep(tracker.OnStep),
		agent.WithStreaming(a.cfg.Stream),
		agent.WithObserver(a.observer),
		agent.WithLogger(a.logger),
	}
	if store != nil {
		options = append(options, agent.WithStorage(store, sessionID))
	}
	runner := agent.New(adapter, options...)

	var prompt ai.Prompt
	if a.cfg.System != "" {
		prompt = append(prompt, ai.SystemMessage(a.cfg.System))
	}
	if store != nil {
		past, err := a.history(ctx, store, sessionID)
		if err != nil {
			return err
		}
		prompt = append(prompt, past...)
	}
	prompt = append(prompt, ai.UserText(input))

	for {
		result, err := a.runOnce(ctx, runner, prompt)
		if err != nil {
			return err
		}
		if !result.Paused {
			a.printSummary(result, tracker)
			return nil
		}
		answers, err := a.askApprovals(result)
		if err != nil {
			return err
		}
		prompt = append(result.Prompt, ai.ToolMessage(answers...))
	}
}

func (a *app) runOnce(ctx context.Context, runner *agent.Agent, prompt ai.Prompt) (*agent.Result, error) {
	if !a.cfg.Stream {
		result, err := runner.Run(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if text := result.Text(); text != "" {
			fmt.Fprintln(a.out, text)
		}
		return result, nil
	}

	stream := runner.Stream(ctx, prompt)
	wrote := false
	for event, err := range stream.Iter() {
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case agent.EventTextDelta:
			fmt.Fprint(a.out, event.Delta)
			wrote = wrote || event.Delta != ""
		case agent.EventToolResult:
			if event.ToolResult != nil && !event.ToolResult.Preliminary {
				status := "done"
				if event.ToolResult.Output.IsError() {
					status = "failed"
				}
				fmt.Fprintf(a.errOut, "[tool %s %s]\n", event.ToolResult.ToolName, status)
			}
		case agent.EventStepFinish:
			if wrote {
				fmt.Fprintln(a.out)
				wrote = false
			}
		}
	}
	return stream.Result(), nil
}

// askApprovals prompts once per pending call. An answer other than y/yes
// denies the call; anything longer than "n" is passed on as the reason.
func (a *app) askApprovals(result *agent.Result) ([]ai.Part, error) {
	calls := make(map[string]ai.ToolCallPart)
	for _, part := range result.Content {
		if call, ok := part.(ai.ToolCallPart); ok {
			calls[call.ToolCallID] = call
		}
	}

	answers := make([]ai.Part, 0, len(result.PendingApprovals))
	for _, request := range result.PendingApprovals {
		call := calls[request.ToolCallID]
		if a.autoApprove {
			fmt.Fprintf(a.errOut, "approved %s (--yes)\n", call.ToolName)
			answers = append(answers, ai.ApprovalResponsePart{ApprovalID: request.ApprovalID, Approved: true})
			continue
		}

		fmt.Fprintf(a.errOut, "run %s %s? [y/N] ", call.ToolName, string(call.Input))
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read approval: %w", err)
		}
		answer := strings.TrimSpace(line)
		switch strings.ToLower(answer) {
		case "y", "yes":
			answers = append(answers, ai.ApprovalResponsePart{ApprovalID: request.ApprovalID, Approved: true})
		case "", "n", "no":
			answers = append(answers, ai.ApprovalResponsePart{ApprovalID: request.ApprovalID})
		default:
			answers = append(answers, ai.ApprovalResponsePart{ApprovalID: request.ApprovalID, Reason: answer})
		}
	}
	return answers, nil
}

func (a *app) printSummary(result *agent.Result, tracker *cost.Tracker) {
	for _, warning := range result.Warnings() {
		fmt.Fprintf(a.errOut, "warning: %s\n", warning)
	}
	if result.FinishReason.Kind != ai.FinishKindStop {
		fmt.Fprintf(a.errOut, "finished: %s\n", result.FinishReason)
	}
	if len(a.cfg.Prices) > 0 {
		fmt.Fprintln(a.errOut, tracker.Summary())
	}
}

func listSessions(ctx context.Context, store storage.SessionStore, out io.Writer) error {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		fmt.Fprintf(out, "%s\t%s\t%s\n", session.ID, session.UpdatedAt.Format("2006-01-02 15:04"), session.Title)
	}
	return nil
}
