package session

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcpgate/internal/proxy"
	"mcpgate/pkg/logging"
)

// ServerVersion is reported in the initialize response.
var ServerVersion = "dev"

// bridge exposes one proxy as an MCP server for one session.
//
// The MCP server holds no capabilities of its own: every list request runs
// a hook that lists the proxy and installs the result, so the handlers
// always mirror the proxy's latest routing tables. listChanged is not
// advertised, which keeps the Set* calls in those hooks from emitting
// notifications on every list.
type bridge struct {
	proxy  *proxy.Server
	server *server.MCPServer
}

func newBridge(p *proxy.Server) *bridge {
	b := &bridge{proxy: p}

	hooks := &server.Hooks{}
	hooks.AddBeforeListTools(func(ctx context.Context, _ any, _ *mcp.ListToolsRequest) {
		b.syncTools(ctx)
	})
	hooks.AddBeforeListPrompts(func(ctx context.Context, _ any, _ *mcp.ListPromptsRequest) {
		b.syncPrompts(ctx)
	})
	hooks.AddBeforeListResources(func(ctx context.Context, _ any, _ *mcp.ListResourcesRequest) {
		b.syncResources(ctx)
	})
	hooks.AddBeforeListResourceTemplates(func(ctx context.Context, _ any, _ *mcp.ListResourceTemplatesRequest) {
		b.syncResourceTemplates(ctx)
	})

	b.server = server.NewMCPServer(p.ID(), ServerVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)
	return b
}

func (b *bridge) syncTools(ctx context.Context) {
	tools, err := b.proxy.ListTools(ctx)
	if err != nil {
		logging.Warn("Session", "Listing tools of %s failed: %v", b.proxy.ID(), err)
	}
	entries := make([]server.ServerTool, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, server.ServerTool{Tool: t, Handler: b.callTool})
	}
	b.server.SetTools(entries...)
}

func (b *bridge) syncPrompts(ctx context.Context) {
	prompts, err := b.proxy.ListPrompts(ctx)
	if err != nil {
		logging.Warn("Session", "Listing prompts of %s failed: %v", b.proxy.ID(), err)
	}
	entries := make([]server.ServerPrompt, 0, len(prompts))
	for _, p := range prompts {
		entries = append(entries, server.ServerPrompt{Prompt: p, Handler: b.getPrompt})
	}
	b.server.SetPrompts(entries...)
}

func (b *bridge) syncResources(ctx context.Context) {
	resources, err := b.proxy.ListResources(ctx)
	if err != nil {
		logging.Warn("Session", "Listing resources of %s failed: %v", b.proxy.ID(), err)
	}
	entries := make([]server.ServerResource, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, server.ServerResource{Resource: r, Handler: b.readResource})
	}
	b.server.SetResources(entries...)
}

func (b *bridge) syncResourceTemplates(ctx context.Context) {
	templates, err := b.proxy.ListResourceTemplates(ctx)
	if err != nil {
		logging.Warn("Session", "Listing resource templates of %s failed: %v", b.proxy.ID(), err)
	}
	entries := make([]server.ServerResourceTemplate, 0, len(templates))
	for _, t := range templates {
		entries = append(entries, server.ServerResourceTemplate{Template: t, Handler: b.readResource})
	}
	b.server.SetResourceTemplates(entries...)
}

func (b *bridge) callTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return b.proxy.CallTool(ctx, req.Params.Name, req.GetArguments())
}

func (b *bridge) getPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return b.proxy.GetPrompt(ctx, req.Params.Name, req.Params.Arguments)
}

func (b *bridge) readResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	result, err := b.proxy.ReadResource(ctx, req.Params.URI)
	if err != nil {
		return nil, err
	}
	return result.Contents, nil
}

var listChangedMethods = map[proxy.Family]string{
	proxy.FamilyTools:     mcp.MethodNotificationToolsListChanged,
	proxy.FamilyPrompts:   mcp.MethodNotificationPromptsListChanged,
	proxy.FamilyResources: mcp.MethodNotificationResourcesListChanged,
}

// forward relays a proxy list change to the session's client.
func (b *bridge) forward(change proxy.ListChange) {
	for _, family := range change.Families {
		if method, ok := listChangedMethods[family]; ok {
			b.server.SendNotificationToAllClients(method, nil)
		}
	}
}
