// Package app wires the fitcoach subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Handler exposes them over HTTP, and Shutdown tears everything
// down in reverse order.
//
// For testing, inject doubles via functional options (WithLogStore,
// WithFitness, WithSleeper). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/fitcoach/internal/config"
	"github.com/MrWong99/fitcoach/internal/health"
	"github.com/MrWong99/fitcoach/internal/interaction"
	"github.com/MrWong99/fitcoach/internal/interaction/postgres"
	"github.com/MrWong99/fitcoach/internal/mcp"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/resilience"
	"github.com/MrWong99/fitcoach/internal/server"
	"github.com/MrWong99/fitcoach/internal/stress"
	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/internal/tools/fitness"
)

// Tool health thresholds for the readiness probe.
const (
	readyMinToolCalls  = 10
	readyMaxToolErrors = 0.5
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics *observe.Metrics
	sleeper resilience.Sleeper
	now     func() time.Time

	store   interaction.LogStore
	log     *interaction.Logger
	tools   *tool.Registry
	mcpHost *mcp.Host
	fitness *fitness.Deps
	orch    *orchestrator.Orchestrator
	stress  *stressSwitch
	health  *health.Handler
	server  *server.Server

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once

	// reloadMu serialises ApplyConfig against itself.
	reloadMu sync.Mutex
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogStore injects an interaction log store instead of creating one from
// config.
func WithLogStore(s interaction.LogStore) Option {
	return func(a *App) { a.store = s }
}

// WithFitness injects the collaborators of the built-in fitness tools instead
// of the demo catalog.
func WithFitness(d fitness.Deps) Option {
	return func(a *App) { a.fitness = &d }
}

// WithMetrics records metrics on m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSleeper replaces the wall-clock sleeper used for retries and stress
// pacing.
func WithSleeper(s resilience.Sleeper) Option {
	return func(a *App) { a.sleeper = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: log store, tool registry (built-in and MCP tools),
// orchestrator, stress harness and HTTP server.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
		sleeper:   resilience.TimerSleeper{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initLog(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init interaction log: %w", err)
	}
	if err := a.initTools(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	if err := a.initStress(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init stress harness: %w", err)
	}
	if err := a.initServer(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

func (a *App) initLog(ctx context.Context) error {
	if a.store == nil {
		lc := a.cfg.InteractionLog
		switch lc.Backend {
		case config.BackendFile:
			fs, err := interaction.OpenFileStore(lc.Path, lc.Capacity)
			if err != nil {
				return err
			}
			a.store = fs
		case config.BackendPostgres:
			ps, err := postgres.NewStore(ctx, lc.PostgresDSN, lc.Capacity)
			if err != nil {
				return err
			}
			a.store = ps
			a.closers = append(a.closers, func() error { ps.Close(); return nil })
		default:
			a.store = interaction.NewMemStore(lc.Capacity)
		}
	}
	a.log = interaction.NewLogger(a.store,
		interaction.WithMetrics(a.metrics),
		interaction.WithClock(a.now),
	)
	slog.Info("interaction log ready", "backend", a.log.Backend())
	return nil
}

func (a *App) initTools(ctx context.Context) error {
	a.tools = tool.NewRegistry(tool.WithClock(a.now))

	if a.cfg.Fitness.ToolsEnabled() {
		deps := a.fitness
		if deps == nil {
			catalog := fitness.NewDemoCatalog(a.cfg.Fitness.DemoUser, a.now())
			deps = &fitness.Deps{Nutrition: catalog, Exercises: catalog, History: catalog}
		}
		if deps.Now == nil {
			deps.Now = a.now
		}
		if err := fitness.Register(a.tools, *deps); err != nil {
			return err
		}
	}

	if len(a.cfg.MCP.Servers) > 0 {
		a.mcpHost = mcp.New()
		a.closers = append(a.closers, a.mcpHost.Close)
		// A failing server only loses its own tools.
		if err := a.mcpHost.ImportAll(ctx, a.tools, a.cfg.MCP.Servers); err != nil {
			slog.Warn("some mcp servers failed to import", "err", err)
		}
	}

	slog.Info("tool registry ready", "tools", a.tools.Len())
	return nil
}

func (a *App) initOrchestrator() error {
	oc := a.cfg.Orchestrator
	orch, err := orchestrator.New(a.providers.LLM, a.tools, a.log, orchestrator.Config{
		Model:         oc.Model,
		MaxToolRounds: oc.MaxToolRounds,
		Backoff: resilience.BackoffPolicy{
			BaseDelay:  oc.BaseDelay,
			MaxDelay:   oc.MaxDelay,
			MaxRetries: oc.MaxRetries,
		},
		Temperature:         oc.Temperature,
		MaxTokens:           oc.MaxTokens,
		DefaultInstructions: oc.DefaultInstructions,
		LongResponseChars:   oc.LongResponseChars,
		VagueResponseChars:  oc.VagueResponseChars,
	},
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithSleeper(a.sleeper),
		orchestrator.WithClock(a.now),
		orchestrator.WithProviderName(a.providers.LLMName),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initStress() error {
	corpus := stress.DefaultCorpus()
	if path := a.cfg.Stress.CorpusFile; path != "" {
		c, err := stress.LoadCorpusFile(path)
		if err != nil {
			return err
		}
		corpus = c
	}
	a.stress = &stressSwitch{
		runner: a.orch,
		corpus: corpus,
		opts: []stress.Option{
			stress.WithMetrics(a.metrics),
			stress.WithSleeper(a.sleeper),
			stress.WithClock(a.now),
		},
	}
	return a.stress.configure(a.cfg.Stress)
}

func (a *App) initServer() error {
	checkers := []health.Checker{
		health.ToolErrorRateChecker(a.tools, readyMinToolCalls, readyMaxToolErrors),
	}
	if p, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("interactions", p))
	}
	if a.mcpHost != nil {
		checkers = append(checkers, health.PingChecker("mcp", a.mcpHost))
	}
	a.health = health.New(checkers...)

	srv, err := server.New(server.Deps{
		Chat:    a.orch,
		Log:     a.log,
		Stress:  a.stress,
		Tools:   a.tools,
		Health:  a.health,
		Metrics: a.metrics,
	})
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// Handler returns the HTTP surface of the application.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Orchestrator returns the conversation orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Interactions returns the interaction logger.
func (a *App) Interactions() *interaction.Logger { return a.log }

// Tools returns the tool registry.
func (a *App) Tools() *tool.Registry { return a.tools }

// Stress returns the current stress harness.
func (a *App) Stress() *stress.Harness { return a.stress.current() }

// ApplyConfig applies the live-reloadable parts of next. Sections that need a
// restart are logged and left untouched.
func (a *App) ApplyConfig(next *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.StressChanged {
		if err := a.stress.configure(next.Stress); err != nil {
			slog.Error("failed to apply stress config", "err", err)
		} else {
			a.cfg.Stress = next.Stress
			slog.Info("stress config reloaded")
		}
	}
	if d.LogLevelChanged {
		a.cfg.Server.LogLevel = d.NewLogLevel
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// Shutdown tears down all subsystems in reverse initialisation order. It is
// safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
