package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied live by swapping the handler level.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// StressChanged is applied live; the next stress run uses the new
	// settings.
	StressChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether the two configs were equivalent.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.StressChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Stress, new.Stress) {
		d.StressChanged = true
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.log_format", old.Server.LogFormat, new.Server.LogFormat},
		{"server.tls", old.Server.TLS, new.Server.TLS},
		{"server.telemetry", old.Server.Telemetry, new.Server.Telemetry},
		{"providers", old.Providers, new.Providers},
		{"orchestrator", old.Orchestrator, new.Orchestrator},
		{"interaction_log", old.InteractionLog, new.InteractionLog},
		{"mcp", old.MCP, new.MCP},
		{"fitness", old.Fitness, new.Fitness},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
