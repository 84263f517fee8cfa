package cmd

import (
	"os"

	"mcpgate/internal/api"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a target needs an OAuth authorization.
	ExitCodeAuthRequired = 2
)

// versionTemplate is shared by --version and the version command.
const versionTemplate = `{{printf "mcpgate version %s\n" .Version}}`

// rootCmd represents the base command for the mcpgate application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "Aggregate many MCP servers behind one endpoint",
	Long: `mcpgate is an MCP proxy. It connects to remote and local MCP servers
(targets) and exposes their tools, prompts and resources through a single
streamable HTTP endpoint or over stdio, handling OAuth authorization for
the targets that require it.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(versionTemplate)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if api.IsUnauthorized(err) {
		return ExitCodeAuthRequired
	}
	return ExitCodeError
}

// configPath is the configuration directory shared by every subcommand.
// It holds config.yaml and the targets/ directory.
var configPath string

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/mcpgate)")
}
