package target

import (
	"encoding/json"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"mcpgate/internal/api"
)

// NameFilter is the per-target policy applied to tool and prompt names.
// At most one of Include, Exclude and Prefix may be set; the zero value
// exposes every name unchanged.
//
// Include is a pointer so that an explicitly empty include list (expose
// nothing) stays distinct from an unset one.
type NameFilter struct {
	Include *[]string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string  `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Prefix  string    `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// IncludeOnly returns a filter exposing exactly names.
func IncludeOnly(names ...string) NameFilter {
	list := append([]string{}, names...)
	return NameFilter{Include: &list}
}

// ExcludeNames returns a filter hiding names.
func ExcludeNames(names ...string) NameFilter {
	return NameFilter{Exclude: append([]string{}, names...)}
}

// WithPrefix returns a filter that prefixes every exposed name.
func WithPrefix(prefix string) NameFilter {
	return NameFilter{Prefix: prefix}
}

// IsZero reports whether the filter exposes every name unchanged.
func (f NameFilter) IsZero() bool {
	return f.Include == nil && f.Exclude == nil && f.Prefix == ""
}

// Validate rejects filters that set more than one form.
func (f NameFilter) Validate() error {
	forms := 0
	if f.Include != nil {
		forms++
	}
	if f.Exclude != nil {
		forms++
	}
	if f.Prefix != "" {
		forms++
	}
	if f.Include != nil && f.Exclude != nil {
		return api.New(api.KindBadRequest, "name filter cannot set both include and exclude")
	}
	if forms > 1 {
		return api.New(api.KindBadRequest, "name filter must set at most one of include, exclude or prefix")
	}
	return nil
}

// Expose maps an upstream name to the name presented to proxy clients.
// ok is false when the policy hides the name.
func (f NameFilter) Expose(name string) (exposed string, ok bool) {
	switch {
	case f.Include != nil:
		return name, slices.Contains(*f.Include, name)
	case f.Exclude != nil:
		return name, !slices.Contains(f.Exclude, name)
	case f.Prefix != "":
		return f.Prefix + name, true
	default:
		return name, true
	}
}

// Resolve maps a name used by a proxy client back to the upstream name.
// kind is used in error messages ("tool", "prompt").
//
// A name lacking the configured prefix is unknown (NotFound). A name the
// policy hides is Disabled, whether or not the upstream actually has it.
func (f NameFilter) Resolve(kind, name string) (string, error) {
	switch {
	case f.Prefix != "":
		upstream, found := strings.CutPrefix(name, f.Prefix)
		if !found {
			return "", api.New(api.KindNotFound, "unknown %s %q", kind, name)
		}
		return upstream, nil
	case f.Include != nil:
		if !slices.Contains(*f.Include, name) {
			return "", api.New(api.KindDisabled, "%s %q is disabled", kind, name)
		}
	case f.Exclude != nil:
		if slices.Contains(f.Exclude, name) {
			return "", api.New(api.KindDisabled, "%s %q is disabled", kind, name)
		}
	}
	return name, nil
}

// Clone returns a deep copy.
func (f NameFilter) Clone() NameFilter {
	out := NameFilter{Prefix: f.Prefix}
	if f.Include != nil {
		list := slices.Clone(*f.Include)
		if list == nil {
			list = []string{}
		}
		out.Include = &list
	}
	if f.Exclude != nil {
		out.Exclude = slices.Clone(f.Exclude)
		if out.Exclude == nil {
			out.Exclude = []string{}
		}
	}
	return out
}

// UnmarshalJSON decodes and validates a filter.
func (f *NameFilter) UnmarshalJSON(data []byte) error {
	type plain NameFilter
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := NameFilter(raw)
	// an explicit "exclude": [] must stay distinct from an absent key
	if decoded.Exclude == nil && jsonHasKey(data, "exclude") {
		decoded.Exclude = []string{}
	}
	if decoded.Include != nil && *decoded.Include == nil {
		*decoded.Include = []string{}
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*f = decoded
	return nil
}

// UnmarshalYAML decodes and validates a filter.
func (f *NameFilter) UnmarshalYAML(value *yaml.Node) error {
	type plain NameFilter
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	decoded := NameFilter(raw)
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			switch value.Content[i].Value {
			case "include":
				if decoded.Include == nil {
					decoded.Include = &[]string{}
				} else if *decoded.Include == nil {
					*decoded.Include = []string{}
				}
			case "exclude":
				if decoded.Exclude == nil {
					decoded.Exclude = []string{}
				}
			}
		}
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*f = decoded
	return nil
}

func jsonHasKey(data []byte, key string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
