package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"mcpgate/internal/api"
	"mcpgate/internal/proxy"
	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
)

// Builder turns a resolved target configuration into an unconnected client.
type Builder func(TargetConfig) (*target.Client, error)

// Reconciler applies the on-disk target set to a proxy. It remembers what
// it applied last so a reload only touches what changed:
//
//   - files that disappeared remove their target
//   - new files add a target
//   - a change limited to tools, prompts or disabled updates in place
//   - any other change replaces the target
type Reconciler struct {
	proxy *proxy.Server
	build Builder

	mu      sync.Mutex
	applied map[string]TargetConfig
}

// NewReconciler creates a Reconciler for p.
func NewReconciler(p *proxy.Server, build Builder) *Reconciler {
	return &Reconciler{proxy: p, build: build, applied: make(map[string]TargetConfig)}
}

// Apply makes the proxy match desired. Failures for single targets are
// logged and joined into the returned error; the others are still applied.
func (r *Reconciler) Apply(ctx context.Context, desired []TargetConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]TargetConfig, len(desired))
	for _, t := range desired {
		want[strings.ToLower(t.Name)] = t
	}

	var errs []error
	for k, old := range r.applied {
		if _, ok := want[k]; ok {
			continue
		}
		if err := r.remove(ctx, old.Name); err != nil {
			errs = append(errs, err)
		}
		delete(r.applied, k)
	}

	for _, t := range desired {
		k := strings.ToLower(t.Name)
		old, ok := r.applied[k]
		switch {
		case !ok:
			if err := r.add(ctx, t); err != nil {
				errs = append(errs, err)
				continue
			}
		case old.Name == t.Name && old.SameTransport(t):
			if err := r.update(ctx, old, t); err != nil {
				errs = append(errs, err)
				continue
			}
		default:
			logging.Info("Reconciler", "Replacing target %s", t.Name)
			if err := r.remove(ctx, old.Name); err != nil {
				errs = append(errs, err)
				continue
			}
			delete(r.applied, k)
			if err := r.add(ctx, t); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		r.applied[k] = t
	}
	return errors.Join(errs...)
}

// Applied returns the names of the targets the reconciler manages.
func (r *Reconciler) Applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.applied))
	for _, t := range r.applied {
		names = append(names, t.Name)
	}
	return names
}

func (r *Reconciler) add(ctx context.Context, t TargetConfig) error {
	c, err := r.build(t)
	if err != nil {
		logging.Warn("Reconciler", "Cannot build target %s: %v", t.Name, err)
		return fmt.Errorf("target %s: %w", t.Name, err)
	}
	if err := r.proxy.AddTarget(ctx, c, proxy.AddOptions{}); err != nil {
		logging.Warn("Reconciler", "Cannot add target %s: %v", t.Name, err)
		return fmt.Errorf("target %s: %w", t.Name, err)
	}
	return nil
}

func (r *Reconciler) remove(ctx context.Context, name string) error {
	err := r.proxy.RemoveTarget(ctx, name)
	if err != nil && !api.IsBadRequest(err) {
		logging.Warn("Reconciler", "Cannot remove target %s: %v", name, err)
		return fmt.Errorf("target %s: %w", name, err)
	}
	return nil
}

func (r *Reconciler) update(ctx context.Context, old, t TargetConfig) error {
	var upd proxy.TargetUpdate
	changed := false
	if !filterEqual(old.Tools, t.Tools) {
		tools := t.Tools
		upd.Tools = &tools
		changed = true
	}
	if !filterEqual(old.Prompts, t.Prompts) {
		prompts := t.Prompts
		upd.Prompts = &prompts
		changed = true
	}
	if old.Disabled != t.Disabled {
		disabled := t.Disabled
		upd.Disabled = &disabled
		changed = true
	}
	if !changed {
		return nil
	}
	logging.Info("Reconciler", "Updating target %s", t.Name)
	if err := r.proxy.UpdateTarget(ctx, t.Name, upd); err != nil {
		// The update is applied even when re-enabling fails to connect.
		if upd.Disabled != nil && !*upd.Disabled {
			logging.Warn("Reconciler", "Target %s enabled but not connected: %v", t.Name, err)
			return nil
		}
		return fmt.Errorf("target %s: %w", t.Name, err)
	}
	return nil
}

func filterEqual(a, b target.NameFilter) bool {
	if (a.Include == nil) != (b.Include == nil) {
		return false
	}
	if a.Include != nil && !slices.Equal(*a.Include, *b.Include) {
		return false
	}
	return (a.Exclude == nil) == (b.Exclude == nil) && slices.Equal(a.Exclude, b.Exclude) && a.Prefix == b.Prefix
}
