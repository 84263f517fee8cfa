package target

import "time"

// TransportSnapshot is the serialisable transport data of a target. Header
// and environment values are redacted; only their names are kept.
type TransportSnapshot struct {
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Transport HTTPTransport     `json:"transport,omitempty" yaml:"transport,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Snapshot is a point-in-time, serialisable view of a target for display
// and persistence by the owner.
type Snapshot struct {
	Name            string            `json:"name" yaml:"name"`
	Source          string            `json:"source,omitempty" yaml:"source,omitempty"`
	Kind            Kind              `json:"kind" yaml:"kind"`
	Transport       TransportSnapshot `json:"transport" yaml:"transport"`
	Tools           NameFilter        `json:"tools" yaml:"tools"`
	Prompts         NameFilter        `json:"prompts" yaml:"prompts"`
	Status          Status            `json:"status" yaml:"status"`
	LastConnectedAt *time.Time        `json:"lastConnectedAt,omitempty" yaml:"lastConnectedAt,omitempty"`
	LastError       string            `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	Disabled        bool              `json:"disabled" yaml:"disabled"`
}

// Snapshot returns the current state of the target.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Name:      c.name,
		Source:    c.source,
		Kind:      c.conn.kind(),
		Transport: c.conn.snapshot(),
		Tools:     c.tools.Clone(),
		Prompts:   c.prompts.Clone(),
		Status:    c.status,
		LastError: c.lastError,
		Disabled:  c.disabled,
	}
	if c.lastConnectedAt != nil {
		t := *c.lastConnectedAt
		s.LastConnectedAt = &t
	}
	return s
}
