package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mcpgate/internal/app"
	"mcpgate/internal/config"
	"mcpgate/internal/formatting"

	"github.com/spf13/cobra"
)

// Output flags shared by the listing commands.
var (
	outputFormat string
	noColor      bool
)

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", string(formatting.FormatTable), "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored table output")
}

// newFormatter builds a formatter writing to the command's stdout.
// NO_COLOR in the environment disables colors as well.
func newFormatter(cmd *cobra.Command) (*formatting.Formatter, error) {
	format, err := formatting.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	_, envNoColor := os.LookupEnv("NO_COLOR")
	return formatting.New(formatting.Options{
		Format: format,
		Output: cmd.OutOrStdout(),
		Color:  !noColor && !envNoColor,
	}), nil
}

// openServices bootstraps the gateway components without serving them.
// Logs are discarded so that only the command's own output is printed.
func openServices() (*app.Services, error) {
	application, err := app.NewApplication(&app.Config{ConfigPath: configPath, Silent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Services(), nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// warnLoadErrors prints target loading problems to stderr. Broken target
// files get the detailed report with suggestions.
func warnLoadErrors(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			warnLoadErrors(cmd, e)
		}
		return
	}
	var fileErrs *config.FileErrors
	if errors.As(err, &fileErrs) {
		fmt.Fprintln(cmd.ErrOrStderr(), fileErrs.Report())
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
}
