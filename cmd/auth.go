package cmd

import (
	"context"
	"fmt"
	"time"

	"mcpgate/internal/api"
	"mcpgate/internal/config"
	"mcpgate/internal/formatting"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authPollInterval is how often login --wait checks the credential store.
const authPollInterval = 2 * time.Second

var authWait time.Duration

// authCmd groups the OAuth commands.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage OAuth authorizations of targets",
	Long: `Manage the OAuth tokens mcpgate holds for targets configured with
'oauth: true'.

Tokens live in the credential store configured in config.yaml. 'auth login'
prints the authorization URL; the callback is handled by the running
gateway, so the gateway and this command must share a file or redis store.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login <target>",
	Short: "Start the authorization of a target",
	Long: `Starts the OAuth authorization code flow for a target and prints the
URL to open in a browser.

Examples:
  mcpgate auth login issues
  mcpgate auth login issues --wait 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <target>",
	Short: "Delete the stored tokens of a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which OAuth targets have stored tokens",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	if services.Gateway.OAuth.Store == config.StoreMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: the memory credential store is not shared with the gateway; the callback cannot complete this flow.")
	}

	client, err := services.BuildTarget(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx := commandContext(cmd)
	flow, err := client.StartAuthFlow(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if flow.AlreadyAuthorized {
		fmt.Fprintf(out, "%s %s is already authorized.\n", text.FgGreen.Sprint("✓"), client.Name())
		return nil
	}

	fmt.Fprintf(out, "Open this URL to authorize %s:\n\n  %s\n\n", client.Name(), flow.RedirectURL)
	if authWait <= 0 {
		return nil
	}

	fmt.Fprintf(out, "Waiting up to %s for the gateway to receive the callback...\n", authWait)
	if err := waitForTokens(ctx, authWait, func(ctx context.Context) (bool, error) {
		return client.IsAuthenticated(ctx)
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s authorized.\n", text.FgGreen.Sprint("✓"), client.Name())
	return nil
}

// waitForTokens polls check until it reports true or timeout elapses. A
// timeout is reported as Unauthorized so the command exits with the
// auth-required code.
func waitForTokens(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(authPollInterval)
	defer ticker.Stop()
	for {
		ok, err := check(ctx)
		if err != nil {
			return fmt.Errorf("failed to check stored tokens: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return api.New(api.KindUnauthorized, "authorization was not completed within %s", timeout)
		case <-ticker.C:
		}
	}
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	client, err := services.BuildTarget(args[0])
	if err != nil {
		return err
	}
	if err := client.Logout(commandContext(cmd)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted the tokens of %s.\n", client.Name())
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	services, err := openServices()
	if err != nil {
		return err
	}
	defer services.Close()

	targets, loadErr := services.TargetConfigs()
	warnLoadErrors(cmd, loadErr)

	ctx := commandContext(cmd)
	var rows []formatting.AuthStatus
	for _, t := range targets {
		if !t.OAuth {
			continue
		}
		row := formatting.AuthStatus{Target: t.Name, Endpoint: t.URL}
		client, err := services.NewTarget(t)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}
		row.Authenticated, err = client.IsAuthenticated(ctx)
		if err != nil {
			row.Error = err.Error()
		}
		rows = append(rows, row)
	}
	return formatter.AuthStatuses(rows)
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)

	authLoginCmd.Flags().DurationVar(&authWait, "wait", 0, "Wait this long for the authorization to complete")
	addOutputFlags(authStatusCmd)
}
