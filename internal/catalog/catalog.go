// Package catalog resolves human-friendly server names into concrete
// transport settings.
//
// A catalog file is YAML:
//
//	servers:
//	  github:
//	    description: GitHub issues and pull requests
//	    url: https://api.githubcopilot.com/mcp/
//	    tags: [scm]
//	  filesystem:
//	    command: npx
//	    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//
// Target configurations reference an entry with `catalog: github` and may
// override any of its fields.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mcpgate/internal/api"
	"mcpgate/pkg/logging"
)

// Entry is the transport data of one catalog server. Exactly one of URL
// and Command is set.
type Entry struct {
	Name        string            `yaml:"-" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	URL         string            `yaml:"url,omitempty" json:"url,omitempty"`
	Transport   string            `yaml:"transport,omitempty" json:"transport,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Command     string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args        []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// OAuth marks servers that expect an OAuth authorization.
	OAuth bool `yaml:"oauth,omitempty" json:"oauth,omitempty"`
}

// IsRemote reports whether the entry is reached over HTTP.
func (e Entry) IsRemote() bool { return e.URL != "" }

// Validate checks that exactly one transport is described.
func (e Entry) Validate() error {
	switch {
	case e.URL == "" && e.Command == "":
		return api.New(api.KindBadRequest, "catalog entry %q has neither url nor command", e.Name)
	case e.URL != "" && e.Command != "":
		return api.New(api.KindBadRequest, "catalog entry %q sets both url and command", e.Name)
	}
	return nil
}

// Resolver looks catalog entries up by name.
type Resolver interface {
	// Resolve returns the named entry or a NotFound error.
	Resolve(name string) (Entry, error)
}

// Catalog is an in-memory Resolver, usually loaded from a file.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

type catalogFile struct {
	Servers map[string]Entry `yaml:"servers"`
}

// New builds a catalog from entries keyed by name. Names are compared
// case-insensitively.
func New(entries map[string]Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for name, e := range entries {
		e.Name = name
		if err := e.Validate(); err != nil {
			return nil, err
		}
		c.entries[strings.ToLower(name)] = e
	}
	return c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	c, err := New(f.Servers)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	logging.Info("Catalog", "Loaded %d catalog entries from %s", len(c.entries), path)
	return c, nil
}

// Resolve implements Resolver.
func (c *Catalog) Resolve(name string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[strings.ToLower(name)]
	if !ok {
		return Entry{}, api.NewNotFoundError("catalog entry", name)
	}
	return e.clone(), nil
}

// List returns every entry sorted by name.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns the entries whose name, description or tags contain
// query, ignoring case.
func (c *Catalog) Search(query string) []Entry {
	query = strings.ToLower(query)
	var out []Entry
	for _, e := range c.List() {
		if matches(e, query) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e Entry, query string) bool {
	if strings.Contains(strings.ToLower(e.Name), query) ||
		strings.Contains(strings.ToLower(e.Description), query) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func (e Entry) clone() Entry {
	out := e
	out.Tags = append([]string(nil), e.Tags...)
	out.Args = append([]string(nil), e.Args...)
	out.Headers = cloneMap(e.Headers)
	out.Env = cloneMap(e.Env)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
