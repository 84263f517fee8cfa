// Package template expands {{ }} expressions in configuration values.
//
// Values are Go text/templates with the sprig function library. The env
// functions read from the engine's lookup instead of the process
// environment directly, and requiredEnv fails for unset variables:
//
//	headers:
//	  Authorization: 'Bearer {{ requiredEnv "ISSUES_TOKEN" }}'
//	url: 'https://{{ env "ISSUES_HOST" | default "issues.example.com" }}/mcp'
//
// Strings without "{{" are returned unchanged.
package template

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(name string) (string, bool)

// Engine handles value templating for target configurations
type Engine struct {
	funcs template.FuncMap
}

// New creates a template engine reading variables through lookup. A nil
// lookup uses os.LookupEnv.
func New(lookup LookupFunc) *Engine {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	funcs := sprig.TxtFuncMap()
	funcs["env"] = func(name string) string {
		v, _ := lookup(name)
		return v
	}
	funcs["requiredEnv"] = func(name string) (string, error) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil
	}
	funcs["expandenv"] = func(s string) string {
		return os.Expand(s, func(name string) string {
			v, _ := lookup(name)
			return v
		})
	}
	return &Engine{funcs: funcs}
}

// Expand renders s.
func (e *Engine) Expand(s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New("value").Option("missingkey=error").Funcs(e.funcs).Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", s, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, nil); err != nil {
		return "", fmt.Errorf("failed to render %q: %w", s, err)
	}
	return b.String(), nil
}

// ExpandSlice renders every element of values into a new slice.
func (e *Engine) ExpandSlice(values []string) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		r, err := e.Expand(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// ExpandMap renders every value of m into a new map. Keys are kept as is.
func (e *Engine) ExpandMap(m map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		r, err := e.Expand(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
