package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/api"
	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
)

// fanOut calls list on every target in registration order and collects the
// results. Targets that are disconnected, disabled or lack the capability
// are skipped silently; other failures are logged and skipped. An error is
// returned only when every attempted target failed.
//
// Targets are queried one after another. Each call gets its own deadline
// from the target's timeout, so an unreachable target costs at most that
// budget.
func fanOut[T any](ctx context.Context, s *Server, family string, list func(*target.Client, context.Context) ([]T, error), collect func(*target.Client, []T)) error {
	var (
		failures  int
		successes int
		lastErr   error
	)
	for _, t := range s.Targets() {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		items, err := list(t, ctx)
		if err != nil {
			if skippable(err) {
				logging.Debug("Proxy", "Skipping %s for %s: %v", t.Name(), family, err)
				continue
			}
			failures++
			lastErr = err
			s.metrics.ObserveList(s.id, t.Name(), family, time.Since(start), true)
			logging.Warn("Proxy", "Failed to list %s on %s: %v", family, t.Name(), err)
			continue
		}
		successes++
		s.metrics.ObserveList(s.id, t.Name(), family, time.Since(start), false)
		collect(t, items)
	}

	if failures > 0 && successes == 0 {
		return fmt.Errorf("failed to list %s on every target: %w", family, lastErr)
	}
	return nil
}

func skippable(err error) bool {
	return target.IsNotSupported(err) ||
		errors.Is(err, target.ErrNotConnected) ||
		api.IsDisabled(err)
}

// ListTools returns the tools of every target under their exposed names and
// rebuilds the tool routing table. When two targets expose the same name
// the target registered last wins the route.
func (s *Server) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	routes := make(map[string]*target.Client)
	err := fanOut(ctx, s, "tools", (*target.Client).ListTools, func(t *target.Client, items []mcp.Tool) {
		for _, tool := range items {
			routes[tool.Name] = t
			tools = append(tools, tool)
		}
	})
	s.setToolRoutes(routes)
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// ListPrompts is ListTools for prompts.
func (s *Server) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	var prompts []mcp.Prompt
	routes := make(map[string]*target.Client)
	err := fanOut(ctx, s, "prompts", (*target.Client).ListPrompts, func(t *target.Client, items []mcp.Prompt) {
		for _, p := range items {
			routes[p.Name] = t
			prompts = append(prompts, p)
		}
	})
	s.setPromptRoutes(routes)
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

// ListResources returns the resources of every target, tagged with the
// target name in their name and description.
func (s *Server) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	var resources []mcp.Resource
	routes := make(map[string]*target.Client)
	err := fanOut(ctx, s, "resources", (*target.Client).ListResources, func(t *target.Client, items []mcp.Resource) {
		for _, r := range items {
			routes[r.URI] = t
			r.Name = decorate(r.Name, t.Name())
			r.Description = decorate(r.Description, t.Name())
			resources = append(resources, r)
		}
	})
	s.setResourceRoutes(routes)
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// ListResourceTemplates returns the resource templates of every target.
// Templates that cannot be parsed are listed but not routed.
func (s *Server) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	var templates []mcp.ResourceTemplate
	var routes []templateRoute
	err := fanOut(ctx, s, "resource templates", (*target.Client).ListResourceTemplates, func(t *target.Client, items []mcp.ResourceTemplate) {
		for _, tmpl := range items {
			if parsed, err := parseTemplate(tmpl); err != nil {
				logging.Warn("Proxy", "Ignoring template route from %s: %v", t.Name(), err)
			} else {
				routes = append(routes, templateRoute{target: t, template: parsed})
			}
			tmpl.Name = decorate(tmpl.Name, t.Name())
			tmpl.Description = decorate(tmpl.Description, t.Name())
			templates = append(templates, tmpl)
		}
	})
	s.setTemplateRoutes(routes)
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// CallTool routes a tool call by the name returned from the last ListTools.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	t, ok := s.toolRoute(name)
	if !ok {
		return nil, api.New(api.KindNotFound, "unknown tool %q", name)
	}
	result, err := t.CallTool(ctx, name, args)
	s.metrics.ObserveCall(s.id, t.Name(), "tool", err)
	return result, err
}

// GetPrompt routes a prompt request by the name returned from the last
// ListPrompts.
func (s *Server) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	t, ok := s.promptRoute(name)
	if !ok {
		return nil, api.New(api.KindNotFound, "unknown prompt %q", name)
	}
	result, err := t.GetPrompt(ctx, name, args)
	s.metrics.ObserveCall(s.id, t.Name(), "prompt", err)
	return result, err
}

// ReadResource routes a read by exact URI from the last ListResources, or
// by template from the last ListResourceTemplates.
func (s *Server) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	t, ok := s.resourceRoute(uri)
	if !ok {
		return nil, api.New(api.KindNotFound, "unknown resource %q", uri)
	}
	result, err := t.ReadResource(ctx, uri)
	s.metrics.ObserveCall(s.id, t.Name(), "resource", err)
	return result, err
}
