package target

import (
	"context"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/api"
	"mcpgate/internal/testing/mock"
)

func newInProcess(t *testing.T, cfg mock.ServerConfig, opts ...Option) (*Client, *mock.Server) {
	t.Helper()
	srv := mock.NewServer(cfg)
	c, err := NewInProcess(cfg.Name, InProcessConfig{Server: srv.MCPServer()}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func toolNames(tools []mcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNew_Validation(t *testing.T) {
	_, err := NewHTTP("x", HTTPConfig{URL: "ftp://example.com"})
	assert.True(t, api.IsBadRequest(err))

	_, err = NewHTTP("x", HTTPConfig{URL: "http://example.com", Transport: "grpc"})
	assert.True(t, api.IsBadRequest(err))

	_, err = NewHTTP("", HTTPConfig{URL: "http://example.com"})
	assert.True(t, api.IsBadRequest(err))

	_, err = NewStdio("x", StdioConfig{})
	assert.True(t, api.IsBadRequest(err))

	_, err = NewInProcess("x", InProcessConfig{})
	assert.True(t, api.IsBadRequest(err))

	bad := IncludeOnly("a")
	bad.Prefix = "p_"
	_, err = NewInProcess("x", InProcessConfig{Server: server.NewMCPServer("x", "1")}, WithTools(bad))
	assert.True(t, api.IsBadRequest(err))
}

func TestClient_ConnectInProcess(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{Name: "local", Tools: mock.Tools("a", "b")})

	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Nil(t, c.LastConnectedAt())

	ok, err := c.Connect(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusConnected, c.Status())
	assert.Empty(t, c.LastError())
	require.NotNil(t, c.LastConnectedAt())

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, toolNames(tools))

	result, err := c.CallTool(ctx, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "local:a", textOf(t, result))

	require.NoError(t, c.Close())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_NotConnected(t *testing.T) {
	c, _ := newInProcess(t, mock.ServerConfig{Name: "idle", Tools: mock.Tools("a")})

	_, err := c.RawListTools(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ToolPolicy(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		filter    NameFilter
		wantList  []string
		call      string
		wantText  string
		wantKind  api.Kind
		upstreams []string
	}{
		{
			name:     "prefix",
			filter:   WithPrefix("gh_"),
			wantList: []string{"gh_search", "gh_delete"},
			call:     "gh_search",
			wantText: "srv:search",
		},
		{
			name:     "prefix missing is unknown",
			filter:   WithPrefix("gh_"),
			wantList: []string{"gh_search", "gh_delete"},
			call:     "search",
			wantKind: api.KindNotFound,
		},
		{
			name:     "include",
			filter:   IncludeOnly("search"),
			wantList: []string{"search"},
			call:     "delete",
			wantKind: api.KindDisabled,
		},
		{
			name:     "empty include",
			filter:   IncludeOnly(),
			wantList: []string{},
			call:     "search",
			wantKind: api.KindDisabled,
		},
		{
			name:     "exclude",
			filter:   ExcludeNames("delete"),
			wantList: []string{"search"},
			call:     "delete",
			wantKind: api.KindDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newInProcess(t, mock.ServerConfig{Name: "srv", Tools: mock.Tools("search", "delete")}, WithTools(tt.filter))
			_, err := c.Connect(ctx, true)
			require.NoError(t, err)

			tools, err := c.ListTools(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantList, toolNames(tools))

			result, err := c.CallTool(ctx, tt.call, nil)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, api.KindOf(err))
				var apiErr *api.Error
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "srv", apiErr.Target)
				assert.Zero(t, srv.Calls("delete"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, textOf(t, result))
		})
	}
}

func TestClient_RawBypassesPolicy(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{Name: "srv", Tools: mock.Tools("search", "delete")}, WithTools(IncludeOnly()))
	_, err := c.Connect(ctx, true)
	require.NoError(t, err)

	tools, err := c.RawListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"search", "delete"}, toolNames(tools))

	result, err := c.RawCallTool(ctx, "delete", nil)
	require.NoError(t, err)
	assert.Equal(t, "srv:delete", textOf(t, result))
}

func TestClient_PromptPolicy(t *testing.T) {
	ctx := context.Background()
	c, srv := newInProcess(t, mock.ServerConfig{Name: "srv", Prompts: mock.Prompts("greet", "farewell")},
		WithPrompts(WithPrefix("p_")))
	_, err := c.Connect(ctx, true)
	require.NoError(t, err)

	prompts, err := c.ListPrompts(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, p := range prompts {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"p_greet", "p_farewell"}, names)

	result, err := c.GetPrompt(ctx, "p_greet", nil)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, 1, srv.Calls("prompt:greet"))

	_, err = c.GetPrompt(ctx, "greet", nil)
	assert.True(t, api.IsNotFound(err))
}

func TestClient_UnsupportedFamilies(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{Name: "tools-only", Tools: mock.Tools("a")})
	_, err := c.Connect(ctx, true)
	require.NoError(t, err)

	prompts, err := c.RawListPrompts(ctx)
	require.NoError(t, err)
	assert.Empty(t, prompts)

	resources, err := c.ListResources(ctx)
	require.NoError(t, err)
	assert.Empty(t, resources)

	_, err = c.RawGetPrompt(ctx, "missing", nil)
	assert.True(t, IsNotSupported(err))
}

func TestClient_Resources(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{
		Name:      "docs",
		Resources: []mock.ResourceConfig{{URI: "file:///readme", Name: "readme", Text: "hello"}},
		Templates: []mock.TemplateConfig{{URITemplate: "docs://{page}", Name: "page"}},
	}, WithTools(IncludeOnly()))
	_, err := c.Connect(ctx, true)
	require.NoError(t, err)

	resources, err := c.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "file:///readme", resources[0].URI)

	templates, err := c.ListResourceTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	result, err := c.ReadResource(ctx, "file:///readme")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	text, ok := result.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
}

func TestClient_Disabled(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{Name: "srv", Tools: mock.Tools("a")}, WithDisabled(true))

	ok, err := c.Connect(ctx, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusDisconnected, c.Status())

	_, err = c.ListTools(ctx)
	assert.True(t, api.IsDisabled(err))

	require.NoError(t, c.SetDisabled(ctx, false))
	assert.Equal(t, StatusConnected, c.Status())
	assert.False(t, c.Disabled())

	require.NoError(t, c.SetDisabled(ctx, true))
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.True(t, c.Disabled())
	_, err = c.CallTool(ctx, "a", nil)
	assert.True(t, api.IsDisabled(err))
}

func TestClient_StatusHook(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Status
	)
	c, _ := newInProcess(t, mock.ServerConfig{Name: "srv", Tools: mock.Tools("a")},
		WithStatusHook(func(name string, s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}))

	_, err := c.Connect(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusConnected, StatusDisconnected}, seen)
}

func TestClient_Snapshot(t *testing.T) {
	c, err := NewHTTP("remote", HTTPConfig{
		URL:     "https://mcp.example.com/mcp",
		Headers: map[string]string{"Authorization": "Bearer secret"},
	}, WithSource("catalog:example"), WithTools(WithPrefix("ex_")))
	require.NoError(t, err)

	s := c.Snapshot()
	assert.Equal(t, "remote", s.Name)
	assert.Equal(t, "catalog:example", s.Source)
	assert.Equal(t, KindHTTP, s.Kind)
	assert.Equal(t, TransportAuto, s.Transport.Transport)
	assert.Equal(t, map[string]string{"Authorization": redactedValue}, s.Transport.Headers)
	assert.Equal(t, "ex_", s.Tools.Prefix)
	assert.Equal(t, StatusDisconnected, s.Status)
	assert.Nil(t, s.LastConnectedAt)

	st, err := NewStdio("cmd", StdioConfig{Command: "server", Args: []string{"--flag"}, Env: map[string]string{"TOKEN": "x"}})
	require.NoError(t, err)
	snap := st.Snapshot()
	assert.Equal(t, "server", snap.Transport.Command)
	assert.Equal(t, []string{"--flag"}, snap.Transport.Args)
	assert.Equal(t, redactedValue, snap.Transport.Env["TOKEN"])
}

func TestClient_NoAuthenticator(t *testing.T) {
	ctx := context.Background()
	c, _ := newInProcess(t, mock.ServerConfig{Name: "srv"})

	_, err := c.StartAuthFlow(ctx)
	assert.True(t, api.IsBadRequest(err))
	assert.True(t, api.IsBadRequest(c.CompleteAuthFlow(ctx, "code")))
	assert.True(t, api.IsBadRequest(c.Logout(ctx)))

	ok, err := c.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
