package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/fitcoach/internal/interaction"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr            = ":8080"
	DefaultShutdownTimeout       = 15 * time.Second
	DefaultMaxToolRounds         = 3
	DefaultMaxRetries            = 3
	DefaultBaseDelay             = time.Second
	DefaultDelayBetweenQuestions = 2 * time.Second
	DefaultLogPath               = "interactions.jsonl"
	DefaultDemoUser              = "demo-user"
	DefaultServiceName           = "fitcoach"
)

// ValidProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBytes is [LoadFromReader] over an in-memory document.
func LoadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.Telemetry.ServiceName == "" {
		cfg.Server.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Server.Telemetry.TraceSampleRatio == 0 {
		cfg.Server.Telemetry.TraceSampleRatio = 1
	}

	o := &cfg.Orchestrator
	if o.Model == "" {
		o.Model = cfg.Providers.LLM.Model
	}
	if o.MaxToolRounds == 0 {
		o.MaxToolRounds = DefaultMaxToolRounds
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = DefaultBaseDelay
	}

	l := &cfg.InteractionLog
	if l.Backend == "" {
		l.Backend = BackendMemory
	}
	if l.Capacity == 0 {
		l.Capacity = interaction.MaxEntries
	}
	if l.Backend == BackendFile && l.Path == "" {
		l.Path = DefaultLogPath
	}

	if cfg.Stress.DelayBetweenQuestions == 0 {
		cfg.Stress.DelayBetweenQuestions = DefaultDelayBetweenQuestions
	}

	if cfg.Fitness.DemoUser == "" {
		cfg.Fitness.DemoUser = DefaultDemoUser
	}
	// Stress questions ask about the demo user unless told otherwise.
	if cfg.Stress.Context.UserID == "" {
		cfg.Stress.Context.UserID = cfg.Fitness.DemoUser
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, fb.Name)
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	// Orchestrator
	o := cfg.Orchestrator
	if o.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_tool_rounds %d must not be negative", o.MaxToolRounds))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_retries %d must not be negative", o.MaxRetries))
	}
	if o.BaseDelay < 0 || o.MaxDelay < 0 {
		errs = append(errs, errors.New("orchestrator.base_delay and max_delay must not be negative"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("orchestrator.temperature %.2f is out of range [0, 2]", o.Temperature))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_tokens %d must not be negative", o.MaxTokens))
	}

	// Interaction log
	l := cfg.InteractionLog
	if !l.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("interaction_log.backend %q is invalid; valid values: memory, file, postgres", l.Backend))
	}
	if l.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("interaction_log.capacity %d must be positive", l.Capacity))
	}
	if l.Backend == BackendPostgres && l.PostgresDSN == "" {
		errs = append(errs, errors.New("interaction_log.postgres_dsn is required when backend is postgres"))
	}
	if l.Capacity != interaction.MaxEntries {
		slog.Warn("interaction_log.capacity differs from the standard retention", "capacity", l.Capacity, "standard", interaction.MaxEntries)
	}

	// Stress
	s := cfg.Stress
	if s.SlowThreshold < 0 || s.LongResponseChars < 0 || s.QuickPerCategory < 0 {
		errs = append(errs, errors.New("stress thresholds must not be negative"))
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if err := srv.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if prev, ok := seen[srv.Name]; ok && srv.Name != "" {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		}
		seen[srv.Name] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
