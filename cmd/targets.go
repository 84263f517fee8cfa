package cmd

import (
	"context"
	"time"

	"mcpgate/internal/target"

	"github.com/spf13/cobra"
)

var targetsTimeout time.Duration

// targetsCmd connects every configured target once and reports its state.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Connect the configured targets once and show their status",
	Long: `Loads the target directory, connects every enabled target the same
way 'mcpgate serve' does, prints one row per target and exits.

Targets that need an OAuth authorization show as unauthorized; run
'mcpgate auth login <target>' to authorize them.

Examples:
  mcpgate targets
  mcpgate targets -o yaml
  mcpgate targets --config-path ./deploy/mcpgate`,
	Args: cobra.NoArgs,
	RunE: runTargets,
}

func runTargets(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), targetsTimeout)
	defer cancel()

	warnLoadErrors(cmd, services.LoadTargets(ctx))

	clients := services.Proxy.Targets()
	snaps := make([]target.Snapshot, 0, len(clients))
	for _, c := range clients {
		snaps = append(snaps, c.Snapshot())
	}
	return formatter.Targets(snaps)
}

func init() {
	rootCmd.AddCommand(targetsCmd)

	addOutputFlags(targetsCmd)
	targetsCmd.Flags().DurationVar(&targetsTimeout, "timeout", 2*time.Minute, "Overall time allowed for connecting the targets")
}
