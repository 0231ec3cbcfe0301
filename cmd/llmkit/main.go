// Command llmkit runs one agent turn against a configured model.
//
//	llmkit "what is 17 * 23?"
//	echo "summarize https://go.dev/blog" | llmkit -m anthropic:claude-sonnet-4-5
//	llmkit --session 0199... "and in French?"
//
// Settings come from llmkit.yaml (see --config); flags override the file.
// A .env file in the working directory is loaded first, so API keys can
// live there.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/leofalp/llmkit/providers/observability"
	"github.com/leofalp/llmkit/providers/observability/promobs"
	"github.com/leofalp/llmkit/providers/observability/slogobs"
	"github.com/leofalp/llmkit/providers/storage"
)

type flags struct {
	config       string
	envFile      string
	model        string
	system       string
	session      string
	listSessions bool
	maxSteps     int
	noStream     bool
	yes          bool
	verbose      bool
	metricsAddr  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "llmkit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (flags, []string, *pflag.FlagSet, error) {
	var f flags
	flagSet := pflag.NewFlagSet("llmkit", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&f.config, "config", "c", "llmkit.yaml", "configuration file")
	flagSet.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	flagSet.StringVarP(&f.model, "model", "m", "", `model reference "provider:model"`)
	flagSet.StringVar(&f.system, "system", "", "system prompt")
	flagSet.StringVarP(&f.session, "session", "s", "", "continue a stored session")
	flagSet.BoolVar(&f.listSessions, "sessions", false, "list stored sessions and exit")
	flagSet.IntVar(&f.maxSteps, "max-steps", 0, "maximum model calls per turn")
	flagSet.BoolVar(&f.noStream, "no-stream", false, "wait for complete responses")
	flagSet.BoolVarP(&f.yes, "yes", "y", false, "approve every tool call")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	flagSet.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	if err := flagSet.Parse(args); err != nil {
		return f, nil, flagSet, err
	}
	return f, flagSet.Args(), flagSet, nil
}

// run is main without the process globals.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, rest, flagSet, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", f.envFile, err)
	}
	cfg, err := LoadConfig(f.config, !flagSet.Changed("config"))
	if err != nil {
		return err
	}
	applyFlags(&cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	observer, logger, shutdownMetrics, err := setupObservability(cfg, stderr)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	store, closeStore, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	if f.listSessions {
		if store == nil {
			return errors.New("--sessions needs storage.kind in the configuration")
		}
		return listSessions(ctx, store, stdout)
	}
	if f.session != "" && store == nil {
		return errors.New("--session needs storage.kind in the configuration")
	}

	in := bufio.NewReader(stdin)
	input := strings.TrimSpace(strings.Join(rest, " "))
	if input == "" {
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		input = strings.TrimSpace(string(data))
		// stdin is spent; approvals cannot be asked interactively
		in = bufio.NewReader(strings.NewReader(""))
	}
	if input == "" {
		fmt.Fprintf(stderr, "usage: llmkit [flags] prompt...\n%s", flagSet.FlagUsages())
		return errors.New("no prompt")
	}

	sessionID := f.session
	if store != nil && sessionID == "" {
		sessionID = storage.NewID()
		fmt.Fprintf(stderr, "session %s\n", sessionID)
	}

	a := &app{
		cfg:         cfg,
		registry:    newRegistry(),
		observer:    observer,
		logger:      logger,
		in:          in,
		out:         stdout,
		errOut:      stderr,
		autoApprove: f.yes,
	}
	return a.converse(ctx, input, store, sessionID)
}

func applyFlags(cfg *Config, f flags) {
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.system != "" {
		cfg.System = f.system
	}
	if f.maxSteps > 0 {
		cfg.MaxSteps = f.maxSteps
	}
	if f.noStream {
		cfg.Stream = false
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

// setupObservability logs to stderr through slogobs. With a metrics address
// the counters and histograms go to a Prometheus registry served over HTTP.
func setupObservability(cfg Config, stderr io.Writer) (observability.Provider, *slog.Logger, func(), error) {
	level, err := slogobs.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	logs := slogobs.New(
		slogobs.WithFormat(slogobs.ParseFormat(cfg.Log.Format)),
		slogobs.WithLevel(level),
		slogobs.WithOutput(stderr),
	)
	if cfg.Metrics.Addr == "" {
		return logs, logs.Logger(), func() {}, nil
	}

	registry := prometheus.NewRegistry()
	metrics := promobs.New(registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Logger().Error("metrics server", "error", err)
		}
	}()
	logs.Logger().Info("serving metrics", "addr", cfg.Metrics.Addr)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
	return observability.Compose(logs, metrics, logs), logs.Logger(), shutdown, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
