package proxy

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/api"
	"mcpgate/internal/metrics"
	"mcpgate/internal/target"
	"mcpgate/internal/testing/mock"
)

func inProcess(t *testing.T, cfg mock.ServerConfig, opts ...target.Option) (*target.Client, *mock.Server) {
	t.Helper()
	srv := mock.NewServer(cfg)
	c, err := target.NewInProcess(cfg.Name, target.InProcessConfig{Server: srv.MCPServer()}, opts...)
	require.NoError(t, err)
	return c, srv
}

func newProxy(t *testing.T, opts ...Option) *Server {
	t.Helper()
	p := New("test", opts...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func refusedTarget(t *testing.T, name string) *target.Client {
	t.Helper()
	url, err := mock.RefusedURL()
	require.NoError(t, err)
	c, err := target.NewHTTP(name, target.HTTPConfig{URL: url, Transport: target.TransportStreamableHTTP})
	require.NoError(t, err)
	return c
}

func names(p *Server) []string {
	var out []string
	for _, t := range p.Targets() {
		out = append(out, t.Name())
	}
	return out
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestAddTarget_Duplicate(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{Name: "github", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{ThrowOnError: true}))

	for _, name := range []string{"github", "GitHub", "GITHUB"} {
		dup, _ := inProcess(t, mock.ServerConfig{Name: name})
		err := p.AddTarget(ctx, dup, AddOptions{ThrowOnError: true})
		assert.True(t, api.IsDuplicate(err), "name %s", name)
		assert.Equal(t, target.StatusDisconnected, dup.Status(), "duplicate must not be connected")
	}
	assert.Equal(t, []string{"github"}, names(p))
}

func TestAddTarget_Unreachable(t *testing.T) {
	ctx := context.Background()

	t.Run("tolerated without throw", func(t *testing.T) {
		p := newProxy(t)
		c := refusedTarget(t, "down")
		require.NoError(t, p.AddTarget(ctx, c, AddOptions{}))

		got, err := p.GetTarget("down")
		require.NoError(t, err)
		assert.Equal(t, target.StatusError, got.Status())
		assert.Contains(t, got.LastError(), "connection refused")
	})

	t.Run("rejected with throw", func(t *testing.T) {
		p := newProxy(t)
		c := refusedTarget(t, "down")
		err := p.AddTarget(ctx, c, AddOptions{ThrowOnError: true})
		assert.True(t, api.IsConnectionRefused(err))
		assert.Empty(t, p.Targets())

		// the name is free again
		retry := refusedTarget(t, "down")
		require.NoError(t, p.AddTarget(ctx, retry, AddOptions{}))
	})
}

func TestAddTarget_UnauthorizedIsRegistered(t *testing.T) {
	ctx := context.Background()
	as := mock.NewOAuthServer(mock.OAuthServerConfig{})
	require.NoError(t, as.Start())
	t.Cleanup(func() { _ = as.Stop() })

	upstream := mock.NewServer(mock.ServerConfig{Name: "secure", Tools: mock.Tools("whoami")})
	protected := mock.NewProtectedMCPServer(upstream, as, mock.HTTPTransportStreamableHTTP, "mcp:read")
	require.NoError(t, protected.Start())
	t.Cleanup(func() { _ = protected.Stop(context.Background()) })

	c, err := target.NewHTTP("secure", target.HTTPConfig{URL: protected.URL()})
	require.NoError(t, err)

	p := newProxy(t)
	require.NoError(t, p.AddTarget(ctx, c, AddOptions{ThrowOnError: true}))

	got, err := p.GetTarget("secure")
	require.NoError(t, err)
	assert.Equal(t, target.StatusUnauthorized, got.Status())

	// an unauthorized target is skipped by the fan-out
	tools, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestRemoveTarget(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	b, _ := inProcess(t, mock.ServerConfig{Name: "b", Tools: mock.Tools("y")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.NoError(t, p.AddTarget(ctx, b, AddOptions{}))

	err := p.RemoveTarget(ctx, "missing")
	assert.True(t, api.IsBadRequest(err))
	assert.Equal(t, []string{"a", "b"}, names(p))

	_, err = p.ListTools(ctx)
	require.NoError(t, err)

	require.NoError(t, p.RemoveTarget(ctx, "A"))
	assert.Equal(t, []string{"b"}, names(p))
	assert.Equal(t, target.StatusDisconnected, a.Status())

	_, err = p.CallTool(ctx, "x", nil)
	assert.True(t, api.IsNotFound(err), "routes of a removed target are dropped")
}

func TestUpdateTarget(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x", "y")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	err := p.UpdateTarget(ctx, "missing", TargetUpdate{})
	assert.True(t, api.IsNotFound(err))

	prefix := target.WithPrefix("a__")
	require.NoError(t, p.UpdateTarget(ctx, "a", TargetUpdate{Tools: &prefix}))
	tools, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a__x", "a__y"}, toolNames(tools))

	disabled := true
	require.NoError(t, p.UpdateTarget(ctx, "a", TargetUpdate{Disabled: &disabled}))
	assert.True(t, a.Disabled())
	tools, err = p.ListTools(ctx)
	require.NoError(t, err, "disabled targets are skipped, not failed")
	assert.Empty(t, tools)

	enabled := false
	require.NoError(t, p.UpdateTarget(ctx, "a", TargetUpdate{Disabled: &enabled}))
	assert.Equal(t, target.StatusConnected, a.Status())

	// enabling an enabled target reconnects it
	require.NoError(t, a.Close())
	require.Equal(t, target.StatusDisconnected, a.Status())
	require.NoError(t, p.UpdateTarget(ctx, "a", TargetUpdate{Disabled: &enabled}))
	assert.Equal(t, target.StatusConnected, a.Status())

	bad := target.NameFilter{Prefix: "p", Exclude: []string{"x"}}
	err = p.UpdateTarget(ctx, "a", TargetUpdate{Tools: &bad})
	assert.True(t, api.IsBadRequest(err))
}

func TestUpdateTarget_RejectedUpdateChangesNothing(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)
	l := newListener()

	p.SetListChangeListener(l.handle)
	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.Eventually(t, func() bool { return l.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	tools := target.WithPrefix("a__")
	prompts := target.NameFilter{Prefix: "p", Exclude: []string{"x"}}
	err := p.UpdateTarget(ctx, "a", TargetUpdate{Tools: &tools, Prompts: &prompts})
	require.True(t, api.IsBadRequest(err))

	assert.True(t, a.Tools().IsZero(), "tool policy must not change")
	assert.True(t, a.Prompts().IsZero())

	listed, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, toolNames(listed))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, l.count(), "a rejected update is not announced")
}

func TestAddTarget_ProxyClosedWhileConnecting(t *testing.T) {
	upstream := mock.NewServer(mock.ServerConfig{Name: "slow", Tools: mock.Tools("x")})
	srv := mock.NewHTTPServer(upstream.MCPServer(), mock.HTTPTransportStreamableHTTP).
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
				next.ServeHTTP(w, r)
			})
		})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	slow, err := target.NewHTTP("slow", target.HTTPConfig{URL: srv.URL(), Transport: target.TransportStreamableHTTP})
	require.NoError(t, err)

	p := New("closing")
	errCh := make(chan error, 1)
	go func() { errCh <- p.AddTarget(context.Background(), slow, AddOptions{ThrowOnError: true}) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errCh:
		assert.True(t, api.IsBadRequest(err), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("AddTarget did not return")
	}
	assert.Empty(t, p.Targets())
	assert.NotEqual(t, target.StatusConnected, slow.Status())
}

func TestGetTarget_CaseInsensitive(t *testing.T) {
	p := newProxy(t)
	a, _ := inProcess(t, mock.ServerConfig{Name: "Linear"})
	require.NoError(t, p.AddTarget(context.Background(), a, AddOptions{}))

	got, err := p.GetTarget("linear")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = p.GetTarget("jira")
	assert.True(t, api.IsNotFound(err))
}

func toolNames(tools []mcp.Tool) []string {
	out := make([]string, 0, len(tools))
	for _, tool := range tools {
		out = append(out, tool.Name)
	}
	return out
}

func TestListTools_LastRegistrationWins(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, srvA := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	b, srvB := inProcess(t, mock.ServerConfig{Name: "b", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.NoError(t, p.AddTarget(ctx, b, AddOptions{}))

	tools, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x"}, toolNames(tools), "no dedup across targets")

	result, err := p.CallTool(ctx, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "b:x", textOf(t, result))
	assert.Equal(t, 0, srvA.Calls("x"))
	assert.Equal(t, 1, srvB.Calls("x"))
}

func TestCallTool_RequiresList(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	_, err := p.CallTool(ctx, "x", nil)
	assert.True(t, api.IsNotFound(err))
	assert.Contains(t, err.Error(), "unknown tool")

	_, err = p.ListTools(ctx)
	require.NoError(t, err)
	result, err := p.CallTool(ctx, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "a:x", textOf(t, result))
}

func TestCallTool_ExcludedToolHasNoRoute(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x", "y")},
		target.WithTools(target.ExcludeNames("y")))
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	tools, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, toolNames(tools))

	_, err = p.CallTool(ctx, "y", nil)
	assert.True(t, api.IsNotFound(err), "excluded tools never get a route")
}

func TestListTools_BrokenTargetIsSkipped(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	require.NoError(t, p.AddTarget(ctx, refusedTarget(t, "down"), AddOptions{}))
	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	tools, err := p.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, toolNames(tools))
}

func TestListTools_Empty(t *testing.T) {
	p := newProxy(t)
	tools, err := p.ListTools(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestPrompts(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, srv := inProcess(t, mock.ServerConfig{Name: "a", Prompts: mock.Prompts("greet")},
		target.WithPrompts(target.WithPrefix("a_")))
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	_, err := p.GetPrompt(ctx, "a_greet", nil)
	assert.True(t, api.IsNotFound(err))

	prompts, err := p.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "a_greet", prompts[0].Name)

	result, err := p.GetPrompt(ctx, "a_greet", nil)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, 1, srv.Calls("prompt:greet"))
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	a, _ := inProcess(t, mock.ServerConfig{
		Name:      "docs",
		Resources: []mock.ResourceConfig{{URI: "file:///readme", Name: "readme", Text: "hello"}},
		Templates: []mock.TemplateConfig{{URITemplate: "logs://{service}/{day}", Name: "logs"}},
	})
	b, _ := inProcess(t, mock.ServerConfig{
		Name:      "wiki",
		Templates: []mock.TemplateConfig{{URITemplate: "wiki://pages/{page}", Name: "page"}},
	})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.NoError(t, p.AddTarget(ctx, b, AddOptions{}))

	_, err := p.ReadResource(ctx, "file:///readme")
	assert.True(t, api.IsNotFound(err))

	resources, err := p.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "readme [docs]", resources[0].Name)
	assert.Equal(t, "file:///readme", resources[0].URI)

	templates, err := p.ListResourceTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "logs [docs]", templates[0].Name)
	assert.Equal(t, "page [wiki]", templates[1].Name)

	result, err := p.ReadResource(ctx, "file:///readme")
	require.NoError(t, err)
	text, ok := result.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)

	result, err = p.ReadResource(ctx, "wiki://pages/home")
	require.NoError(t, err)
	text, ok = result.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "wiki://pages/home", text.Text)

	result, err = p.ReadResource(ctx, "logs://api/monday")
	require.NoError(t, err)
	text, ok = result.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "logs://api/monday", text.Text)

	_, err = p.ReadResource(ctx, "ftp://elsewhere")
	assert.True(t, api.IsNotFound(err))
}

func TestConnectTargets(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t, WithConnectConcurrency(2))

	var clients []*target.Client
	for _, name := range []string{"a", "b", "c"} {
		c, _ := inProcess(t, mock.ServerConfig{Name: name, Tools: mock.Tools("t")})
		require.NoError(t, p.AddTarget(ctx, c, AddOptions{}))
		require.NoError(t, c.Close())
		clients = append(clients, c)
	}
	down := refusedTarget(t, "down")
	require.NoError(t, p.AddTarget(ctx, down, AddOptions{}))

	p.ConnectTargets(ctx)
	for _, c := range clients {
		assert.Equal(t, target.StatusConnected, c.Status(), c.Name())
	}
	assert.Equal(t, target.StatusError, down.Status())
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	p := newProxy(t, WithMetrics(m))

	a, _ := inProcess(t, mock.ServerConfig{Name: "a", Tools: mock.Tools("x")})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	_, err := p.ListTools(ctx)
	require.NoError(t, err)
	_, err = p.CallTool(ctx, "x", nil)
	require.NoError(t, err)

	assert.Greater(t, testutil.CollectAndCount(m.Registry(), "mcpgate_target_status"), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "mcpgate_routed_calls_total"))
}

// listener records deliveries for the notification tests.
type listener struct {
	mu     sync.Mutex
	events []ListChange
	ch     chan struct{}
}

func newListener() *listener {
	return &listener{ch: make(chan struct{}, 16)}
}

func (l *listener) handle(c ListChange) {
	l.mu.Lock()
	l.events = append(l.events, c)
	l.mu.Unlock()
	l.ch <- struct{}{}
}

func (l *listener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestListChange_AfterMutation(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	var sawTarget atomic.Bool
	done := make(chan ListChange, 1)
	p.SetListChangeListener(func(c ListChange) {
		_, err := p.GetTarget("a")
		sawTarget.Store(err == nil)
		select {
		case done <- c:
		default:
		}
	})

	a, _ := inProcess(t, mock.ServerConfig{Name: "a"})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))

	select {
	case c := <-done:
		assert.True(t, sawTarget.Load(), "listener runs after the target is registered")
		assert.Equal(t, []Family{FamilyTools, FamilyPrompts, FamilyResources}, c.Families)
	case <-time.After(2 * time.Second):
		t.Fatal("no list change delivered")
	}
}

func TestListChange_Coalesces(t *testing.T) {
	p := newProxy(t)
	l := newListener()

	release := make(chan struct{})
	first := true
	p.SetListChangeListener(func(c ListChange) {
		if first {
			first = false
			<-release
		}
		l.handle(c)
	})

	p.notifier.schedule()
	// wait until the first delivery is blocked in the listener
	require.Eventually(t, func() bool { return len(p.notifier.pending) == 0 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		p.notifier.schedule()
	}
	close(release)

	require.Eventually(t, func() bool { return l.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, l.count(), "bursts collapse into one delivery")
}

func TestListChange_ListenerPanicRecovered(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t)

	var calls atomic.Int32
	p.SetListChangeListener(func(ListChange) {
		calls.Add(1)
		panic("boom")
	})

	a, _ := inProcess(t, mock.ServerConfig{Name: "a"})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	b, _ := inProcess(t, mock.ServerConfig{Name: "b"})
	require.NoError(t, p.AddTarget(ctx, b, AddOptions{}))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClose_WithoutChanges(t *testing.T) {
	p := New("idle")
	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a notifier that never started")
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	p := New("closing")

	var calls atomic.Int32
	p.SetListChangeListener(func(ListChange) { calls.Add(1) })

	a, _ := inProcess(t, mock.ServerConfig{Name: "a"})
	require.NoError(t, p.AddTarget(ctx, a, AddOptions{}))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	assert.Equal(t, target.StatusDisconnected, a.Status())
	assert.Empty(t, p.Targets())

	b, _ := inProcess(t, mock.ServerConfig{Name: "b"})
	err := p.AddTarget(ctx, b, AddOptions{})
	assert.True(t, api.IsBadRequest(err))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "no deliveries after close")
}
