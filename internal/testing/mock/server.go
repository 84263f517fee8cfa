package mock

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

// Server is a mock upstream MCP server.
type Server struct {
	name      string
	mcpServer *server.MCPServer

	mu    sync.Mutex
	calls map[string]int
}

// NewServer builds a mock server from cfg.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}

	s := &Server{
		name:  cfg.Name,
		calls: make(map[string]int),
	}

	opts := []server.ServerOption{}
	if len(cfg.Tools) > 0 {
		opts = append(opts, server.WithToolCapabilities(true))
	}
	if len(cfg.Prompts) > 0 {
		opts = append(opts, server.WithPromptCapabilities(true))
	}
	if len(cfg.Resources) > 0 || len(cfg.Templates) > 0 {
		opts = append(opts, server.WithResourceCapabilities(false, true))
	}
	s.mcpServer = server.NewMCPServer(fmt.Sprintf("mock-%s", cfg.Name), "1.0.0", opts...)

	for _, tc := range cfg.Tools {
		s.AddTool(tc)
	}
	for _, pc := range cfg.Prompts {
		s.AddPrompt(pc)
	}
	for _, rc := range cfg.Resources {
		rc := rc
		s.mcpServer.AddResource(mcp.NewResource(rc.URI, rc.Name),
			func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{mcp.TextResourceContents{URI: rc.URI, MIMEType: "text/plain", Text: rc.Text}}, nil
			})
	}
	for _, tc := range cfg.Templates {
		s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(tc.URITemplate, tc.Name),
			func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: req.Params.URI}}, nil
			})
	}
	return s
}

// NewServerFromFile creates a new mock MCP server from a YAML file.
func NewServerFromFile(configPath string) (*Server, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock config file %s: %w", configPath, err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mock config file %s: %w", configPath, err)
	}
	return NewServer(cfg), nil
}

// Tools returns a config with one default-answering tool per name.
func Tools(names ...string) []ToolConfig {
	out := make([]ToolConfig, 0, len(names))
	for _, n := range names {
		out = append(out, ToolConfig{Name: n, Description: "mock tool " + n})
	}
	return out
}

// Prompts returns a config with one prompt per name.
func Prompts(names ...string) []PromptConfig {
	out := make([]PromptConfig, 0, len(names))
	for _, n := range names {
		out = append(out, PromptConfig{Name: n, Text: "prompt " + n})
	}
	return out
}

// AddTool registers a tool. If the server advertises listChanged, connected
// clients are notified.
func (s *Server) AddTool(tc ToolConfig) {
	handler := NewToolHandler(s.name, tc)
	s.mcpServer.AddTool(mcp.NewTool(tc.Name, mcp.WithDescription(tc.Description)),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			s.mu.Lock()
			s.calls[tc.Name]++
			s.mu.Unlock()

			text, isError := handler.HandleCall(req.GetArguments())
			if isError {
				return mcp.NewToolResultError(text), nil
			}
			return mcp.NewToolResultText(text), nil
		})
}

// AddPrompt registers a prompt.
func (s *Server) AddPrompt(pc PromptConfig) {
	s.mcpServer.AddPrompt(mcp.NewPrompt(pc.Name, mcp.WithPromptDescription(pc.Description)),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			s.mu.Lock()
			s.calls["prompt:"+pc.Name]++
			s.mu.Unlock()
			return mcp.NewGetPromptResult(pc.Description, []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(pc.Text)),
			}), nil
		})
}

// Name returns the configured server name.
func (s *Server) Name() string { return s.name }

// MCPServer returns the underlying server, for in-process targets.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Calls returns how often a tool was called. Prompts are counted under
// "prompt:<name>".
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// ServeStdio serves the mock server on stdin and stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
