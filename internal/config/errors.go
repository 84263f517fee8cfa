package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error types reported in FileError.ErrorType.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// FileError represents a configuration file that could not be used
type FileError struct {
	FilePath    string   `json:"filePath"`    // Full path to the file that caused the error
	FileName    string   `json:"fileName"`    // Base name of the file
	ErrorType   string   `json:"errorType"`   // Type of error (parse, validation, io)
	Message     string   `json:"message"`     // Human-readable error message
	LineNumber  int      `json:"lineNumber"`  // Line number where error occurred (if available)
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error
	Err         error    `json:"-"`
}

// Error implements the error interface
func (fe FileError) Error() string {
	if fe.LineNumber > 0 {
		return fmt.Sprintf("%s:%d: %s", fe.FileName, fe.LineNumber, fe.Message)
	}
	return fmt.Sprintf("%s: %s", fe.FileName, fe.Message)
}

// Unwrap returns the underlying error.
func (fe FileError) Unwrap() error { return fe.Err }

// DetailedError returns a detailed error message with all context
func (fe FileError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration error in %s", fe.FileName),
		fmt.Sprintf("  File: %s", fe.FilePath),
		fmt.Sprintf("  Type: %s", fe.ErrorType),
	}
	if fe.LineNumber > 0 {
		parts = append(parts, fmt.Sprintf("  Line: %d", fe.LineNumber))
	}
	parts = append(parts, fmt.Sprintf("  Error: %s", fe.Message))
	if len(fe.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, s := range fe.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", s))
		}
	}
	return strings.Join(parts, "\n")
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// newFileError classifies err for the file at path.
func newFileError(path, errorType string, err error) FileError {
	fe := FileError{
		FilePath:  path,
		FileName:  filepath.Base(path),
		ErrorType: errorType,
		Message:   err.Error(),
		Err:       err,
	}
	if errorType == ErrorTypeParse {
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			fe.LineNumber, _ = strconv.Atoi(m[1])
		}
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			fe.Suggestions = append(fe.Suggestions, "check the field types against the documented target format")
		} else {
			fe.Suggestions = append(fe.Suggestions, "check the YAML indentation and quoting")
		}
	}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		suggest := func(s string) {
			if !slices.Contains(fe.Suggestions, s) {
				fe.Suggestions = append(fe.Suggestions, s)
			}
		}
		for _, v := range verrs {
			switch {
			case strings.Contains(v.Message, "environment variable"):
				suggest("export the referenced environment variable before starting mcpgate")
			case v.Field == "url" || v.Field == "command":
				suggest("set exactly one of url, command or catalog")
			}
		}
	}
	return fe
}

// FileErrors holds the errors of every configuration file that was skipped
type FileErrors struct {
	Errors []FileError `json:"errors"`
}

// Error implements the error interface for the collection
func (fe *FileErrors) Error() string {
	switch len(fe.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return fe.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(fe.Errors), fe.Errors[0].Error(), len(fe.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (fe *FileErrors) HasErrors() bool {
	return len(fe.Errors) > 0
}

// Add adds a new error to the collection
func (fe *FileErrors) Add(err FileError) {
	fe.Errors = append(fe.Errors, err)
}

// Report returns a detailed report of all errors
func (fe *FileErrors) Report() string {
	if len(fe.Errors) == 0 {
		return "No configuration errors to report"
	}
	parts := []string{fmt.Sprintf("Configuration error report (%d errors):", len(fe.Errors))}
	for _, e := range fe.Errors {
		parts = append(parts, e.DetailedError())
	}
	return strings.Join(parts, "\n\n")
}

// errOrNil returns nil for an empty collection so callers can return it
// directly.
func (fe *FileErrors) errOrNil() error {
	if fe.HasErrors() {
		return fe
	}
	return nil
}
