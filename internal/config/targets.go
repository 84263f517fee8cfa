package config

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"mcpgate/internal/catalog"
	"mcpgate/internal/target"
	"mcpgate/internal/template"
)

// TargetConfig is one file under <configDir>/targets.
//
//	name: github
//	catalog: github        # or url/command
//	headers:
//	  X-Team: platform
//	tools:
//	  prefix: gh_
//	oauth: true
type TargetConfig struct {
	Name    string `yaml:"name"`
	Catalog string `yaml:"catalog,omitempty"`

	URL       string            `yaml:"url,omitempty"`
	Transport string            `yaml:"transport,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`

	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	Tools    target.NameFilter `yaml:"tools,omitempty"`
	Prompts  target.NameFilter `yaml:"prompts,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`

	// OAuth attaches the gateway's OAuth provider to the target.
	OAuth bool `yaml:"oauth,omitempty"`

	// Path is the file the target was read from.
	Path string `yaml:"-"`
}

// IsRemote reports whether the target is reached over HTTP.
func (t TargetConfig) IsRemote() bool { return t.URL != "" }

// Expand renders templates in the transport fields (url, headers, command,
// args and env). See package template for the syntax.
func (t TargetConfig) Expand(e *template.Engine) (TargetConfig, error) {
	var (
		errs ValidationErrors
		err  error
	)
	if t.URL, err = e.Expand(t.URL); err != nil {
		errs.Add("url", err.Error())
	}
	if t.Headers, err = e.ExpandMap(t.Headers); err != nil {
		errs.Add("headers", err.Error())
	}
	if t.Command, err = e.Expand(t.Command); err != nil {
		errs.Add("command", err.Error())
	}
	if t.Args, err = e.ExpandSlice(t.Args); err != nil {
		errs.Add("args", err.Error())
	}
	if t.Env, err = e.ExpandMap(t.Env); err != nil {
		errs.Add("env", err.Error())
	}
	return t, errs.errOrNil()
}

// Validate checks a target after catalog resolution.
func (t TargetConfig) Validate() error {
	var errs ValidationErrors
	errs.Check("name", validName(t.Name))
	switch {
	case t.URL == "" && t.Command == "":
		errs.Add("url", "one of url, command or catalog is required")
	case t.URL != "" && t.Command != "":
		errs.Add("command", "cannot be combined with url")
	}
	if t.Transport != "" {
		errs.Check("transport", oneOf(t.Transport,
			string(target.TransportAuto), string(target.TransportStreamableHTTP), string(target.TransportSSE)))
		if t.Command != "" {
			errs.Add("transport", "only applies to url targets")
		}
	}
	if len(t.Headers) > 0 && t.Command != "" {
		errs.Add("headers", "only apply to url targets")
	}
	if len(t.Args) > 0 && t.URL != "" {
		errs.Add("args", "only apply to command targets")
	}
	if t.Timeout < 0 {
		errs.Add("timeout", "must not be negative")
	}
	errs.Check("tools", t.Tools.Validate())
	errs.Check("prompts", t.Prompts.Validate())
	return errs.errOrNil()
}

// ResolveCatalog fills the transport fields from the referenced catalog
// entry. Values set on the target take precedence; maps are merged.
func (t TargetConfig) ResolveCatalog(r catalog.Resolver) (TargetConfig, error) {
	if t.Catalog == "" {
		return t, nil
	}
	if r == nil {
		return t, fmt.Errorf("target %q references catalog entry %q but no catalog is configured", t.Name, t.Catalog)
	}
	e, err := r.Resolve(t.Catalog)
	if err != nil {
		return t, err
	}
	if t.URL == "" && t.Command == "" {
		t.URL = e.URL
		t.Command = e.Command
		if len(t.Args) == 0 {
			t.Args = e.Args
		}
	}
	if t.Transport == "" {
		t.Transport = e.Transport
	}
	t.Headers = merge(e.Headers, t.Headers)
	t.Env = merge(e.Env, t.Env)
	t.OAuth = t.OAuth || e.OAuth
	return t, nil
}

// SameTransport reports whether two configs dial the backend the same way,
// so that only the policy fields differ.
func (t TargetConfig) SameTransport(o TargetConfig) bool {
	return t.URL == o.URL &&
		t.Transport == o.Transport &&
		maps.Equal(t.Headers, o.Headers) &&
		t.Command == o.Command &&
		slices.Equal(t.Args, o.Args) &&
		maps.Equal(t.Env, o.Env) &&
		t.Timeout == o.Timeout &&
		t.OAuth == o.OAuth
}

func merge(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

// NewClient builds the unconnected target described by t. opts are applied
// after the ones derived from t.
func (t TargetConfig) NewClient(opts ...target.Option) (*target.Client, error) {
	source := t.Path
	if t.Catalog != "" {
		source = "catalog:" + t.Catalog
	}
	base := []target.Option{
		target.WithSource(source),
		target.WithTools(t.Tools),
		target.WithPrompts(t.Prompts),
		target.WithDisabled(t.Disabled),
	}
	if t.Timeout > 0 {
		base = append(base, target.WithTimeout(t.Timeout))
	}
	opts = append(base, opts...)

	if t.IsRemote() {
		return target.NewHTTP(t.Name, target.HTTPConfig{
			URL:       t.URL,
			Headers:   t.Headers,
			Transport: target.HTTPTransport(t.Transport),
		}, opts...)
	}
	return target.NewStdio(t.Name, target.StdioConfig{
		Command: t.Command,
		Args:    t.Args,
		Env:     t.Env,
	}, opts...)
}
