// Command fitcoach is the entry point of the fitness-coach AI server.
//
// Usage:
//
//	fitcoach serve  [-config config.yaml]
//	fitcoach stress [-config config.yaml] [-category name]... [-quick] [-out report.md]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fitcoach/internal/app"
	"github.com/MrWong99/fitcoach/internal/config"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/stress"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve(args)
	case "stress":
		return runStress(args)
	case "help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "fitcoach: unknown command %q\n", cmd)
		usage(os.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fitcoach <serve|stress> [flags]")
	fmt.Fprintln(w, "  serve   run the HTTP server")
	fmt.Fprintln(w, "  stress  run the stress-test harness and write a markdown report")
}

// categoryFlags collects repeated -category flags; each value may also be a
// comma-separated list.
type categoryFlags []string

func (c *categoryFlags) String() string { return strings.Join(*c, ",") }

func (c *categoryFlags) Set(v string) error {
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*c = append(*c, part)
		}
	}
	return nil
}

// setup loads the config, installs the default logger and builds providers.
func setup(configPath string) (*config.Config, *slog.LevelVar, *app.Providers, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
		}
		return nil, nil, nil, err
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, level, providers, nil
}

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, level, providers, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fitcoach: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, telemetryConfig(cfg.Server.Telemetry))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(r config.Reload) {
		if r.Diff.LogLevelChanged {
			level.Set(slogLevel(r.Diff.NewLogLevel))
		}
		application.ApplyConfig(r.New)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	code := 0
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// telemetryConfig maps the server.telemetry section onto the OTel setup.
func telemetryConfig(tc config.TelemetryConfig) observe.ProviderConfig {
	return observe.ProviderConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: version,
		Environment:    tc.Environment,
		SampleRatio:    tc.TraceSampleRatio,
	}
}

func runStress(args []string) int {
	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	quick := fs.Bool("quick", false, "run only the first questions of every category")
	out := fs.String("out", "", "write the markdown report to this file instead of stdout")
	var categories categoryFlags
	fs.Var(&categories, "category", "question category to run (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, providers, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fitcoach: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	progress := make(chan stress.Progress)
	go func() {
		for p := range progress {
			slog.Info("stress progress",
				"question", fmt.Sprintf("%d/%d", p.Current, p.Total),
				"category", p.Category,
				"success", p.Success,
				"success_rate", p.SuccessRate,
			)
		}
	}()

	h := application.Stress()
	var outcome *stress.Outcome
	if *quick {
		outcome, err = h.RunQuickSubset(ctx, progress)
	} else {
		outcome, err = h.RunCategories(ctx, categories, progress)
	}
	if err != nil {
		slog.Error("stress test failed", "err", err, "categories", h.Corpus().Categories())
		return 1
	}

	report := stress.ExportMarkdown(outcome.Report)
	if *out == "" {
		fmt.Print(report)
	} else if err := os.WriteFile(*out, []byte(report), 0o644); err != nil {
		slog.Error("failed to write report", "path", *out, "err", err)
		return 1
	}

	sum := outcome.Report.Summary
	slog.Info("stress test finished",
		"total", sum.TotalQuestions,
		"successful", sum.Successful,
		"failed", sum.Failed,
		"success_rate", sum.SuccessRate,
		"aborted", sum.Aborted,
	)
	if sum.Failed > 0 || sum.Aborted {
		return 1
	}
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        fitcoach startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("LLM", cfg.Providers.LLM.Name+" / "+cfg.Providers.LLM.Model)
	printLine("Fallbacks", fmt.Sprint(len(cfg.Providers.LLMFallbacks)))
	printLine("Interaction log", string(cfg.InteractionLog.Backend))
	printLine("MCP servers", fmt.Sprint(len(cfg.MCP.Servers)))
	fitness := "(disabled)"
	if cfg.Fitness.ToolsEnabled() {
		fitness = "demo catalog"
	}
	printLine("Fitness tools", fitness)
	printLine("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(label, value string) {
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
