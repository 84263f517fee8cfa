// Package formatting renders command output as a table, JSON or YAML.
//
// Tables are drawn with go-pretty; the structured formats serialise the
// same values the table summarises, so scripts see every field.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mcpgate/internal/api"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates a --output flag value. Empty means table.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", api.New(api.KindBadRequest, "unsupported output format %q (use table, json or yaml)", s)
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Output io.Writer
	Color  bool // Enable colored status cells
}

// Formatter writes command output in the configured format.
type Formatter struct {
	options Options
}

// New creates a formatter. A nil Output writes to stdout.
func New(options Options) *Formatter {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.Format == "" {
		options.Format = FormatTable
	}
	return &Formatter{options: options}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (f *Formatter) structured(v interface{}) (bool, error) {
	switch f.options.Format {
	case FormatJSON:
		_, err := fmt.Fprintln(f.options.Output, PrettyJSON(v))
		return true, err
	case FormatYAML:
		enc := yaml.NewEncoder(f.options.Output)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}
