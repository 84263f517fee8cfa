package cmd

import (
	"fmt"

	"mcpgate/internal/app"
	"mcpgate/pkg/logging"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveLogLevel and serveLogFormat tune the log output when --debug is
// not set.
var (
	serveLogLevel  string
	serveLogFormat string
)

// serveListen overrides the listen address from config.yaml.
var serveListen string

// serveStdio exposes the proxy over stdin/stdout for a single client.
var serveStdio bool

// serveCmd starts the gateway.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway",
	Long: `Starts the gateway and connects every configured target.

By default the gateway serves streamable HTTP on the configured listen
address. Each client session gets its own MCP server instance backed by
the shared set of targets.

With --stdio the gateway speaks MCP over stdin/stdout instead, which is
how desktop MCP hosts launch local servers. Logs then go to stderr.

Configuration:
  mcpgate reads config.yaml from ~/.config/mcpgate, or from the directory
  given with --config-path. Targets are defined one per file in the
  targets/ subdirectory:

    targets/issues.yaml:
      url: https://issues.example.com/mcp
      oauth: true
      tools:
        prefix: issues_

  In HTTP mode the targets directory is watched and changes are applied
  without a restart. SIGHUP reloads it and retries failed connections.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveStdio, configPath, serveListen)
	cfg.LogLevel = serveLogLevel
	cfg.LogFormat = logging.Format(serveLogFormat)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(commandContext(cmd))
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", string(logging.FormatText), "Log format (text, json)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address, overrides config.yaml")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
}
