package proxy

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yosida95/uritemplate/v3"

	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
)

// templateRoute maps an RFC 6570 template onto the target that advertised it.
type templateRoute struct {
	target   *target.Client
	template *uritemplate.Template
}

// parseTemplate recovers a matchable template from a listed one.
func parseTemplate(t mcp.ResourceTemplate) (*uritemplate.Template, error) {
	if t.URITemplate == nil || t.URITemplate.Template == nil {
		return nil, fmt.Errorf("resource template %q has no URI template", t.Name)
	}
	return uritemplate.New(t.URITemplate.Raw())
}

// decorate tags a display string with the owning target.
func decorate(s, targetName string) string {
	if s == "" {
		return s
	}
	return fmt.Sprintf("%s [%s]", s, targetName)
}

func (s *Server) setToolRoutes(routes map[string]*target.Client) {
	s.mu.Lock()
	s.tools = routes
	s.mu.Unlock()
}

func (s *Server) setPromptRoutes(routes map[string]*target.Client) {
	s.mu.Lock()
	s.prompts = routes
	s.mu.Unlock()
}

func (s *Server) setResourceRoutes(routes map[string]*target.Client) {
	s.mu.Lock()
	s.resources = routes
	s.mu.Unlock()
}

func (s *Server) setTemplateRoutes(routes []templateRoute) {
	s.mu.Lock()
	s.templates = routes
	s.mu.Unlock()
}

// dropRoutesLocked forgets every route pointing at t. Caller holds mu.
func (s *Server) dropRoutesLocked(t *target.Client) {
	for _, table := range []map[string]*target.Client{s.tools, s.prompts, s.resources} {
		for name, owner := range table {
			if owner == t {
				delete(table, name)
			}
		}
	}
	kept := s.templates[:0:0]
	for _, r := range s.templates {
		if r.target != t {
			kept = append(kept, r)
		}
	}
	s.templates = kept
}

func (s *Server) toolRoute(name string) (*target.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

func (s *Server) promptRoute(name string) (*target.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.prompts[name]
	return t, ok
}

// resourceRoute resolves uri against exact resource routes first, then
// against template routes. Later templates shadow earlier ones, matching
// the last-wins rule of the other tables.
func (s *Server) resourceRoute(uri string) (*target.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.resources[uri]; ok {
		return t, true
	}
	for i := len(s.templates) - 1; i >= 0; i-- {
		r := s.templates[i]
		if r.template.Match(uri) != nil {
			logging.Debug("Proxy", "Resource %s matched template %s of %s", uri, r.template.Raw(), r.target.Name())
			return r.target, true
		}
	}
	return nil, false
}
