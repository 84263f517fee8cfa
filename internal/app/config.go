package app

import (
	"mcpgate/internal/config"
	"mcpgate/pkg/logging"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// LogLevel is used when Debug is false. Empty means info.
	LogLevel string

	// LogFormat selects text (default) or json log lines.
	LogFormat logging.Format

	// Silent discards log output; used by one-shot commands that render
	// their own output.
	Silent bool

	// ConfigPath is the configuration directory. Empty means
	// ~/.config/mcpgate.
	ConfigPath string

	// Listen overrides config.yaml's listen address when set.
	Listen string

	// Stdio serves the proxy over stdin/stdout instead of HTTP.
	Stdio bool

	// Gateway is the loaded config.yaml. NewApplication fills it unless it
	// is already set.
	Gateway *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug, stdio bool, configPath, listen string) *Config {
	return &Config{
		Debug:      debug,
		Stdio:      stdio,
		ConfigPath: configPath,
		Listen:     listen,
	}
}
