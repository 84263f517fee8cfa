package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/api"
	"mcpgate/pkg/logging"
)

// Status is the connection state of a target.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusUnauthorized Status = "unauthorized"
	StatusError        Status = "error"
)

// DefaultTimeout bounds a single transport operation when the caller's
// context has no deadline.
const DefaultTimeout = 30 * time.Second

const unauthorizedMessage = "unauthorized, please re-authenticate"

// Option configures a Client.
type Option func(*Client)

// WithSource records where the target definition came from, for example
// "catalog:github".
func WithSource(source string) Option {
	return func(c *Client) { c.source = source }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAuthenticator attaches an OAuth provider. Only HTTP targets use it.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) { c.auth = a }
}

// WithTools sets the initial tool policy.
func WithTools(f NameFilter) Option {
	return func(c *Client) { c.tools = f.Clone() }
}

// WithPrompts sets the initial prompt policy.
func WithPrompts(f NameFilter) Option {
	return func(c *Client) { c.prompts = f.Clone() }
}

// WithDisabled creates the target in the disabled state.
func WithDisabled(disabled bool) Option {
	return func(c *Client) { c.disabled = disabled }
}

// WithStatusHook registers fn to be called after every status change.
func WithStatusHook(fn func(name string, status Status)) Option {
	return func(c *Client) { c.statusHook = fn }
}

// Client is one backend of the proxy. The transport variant is fixed at
// construction; everything else is runtime state.
//
// Transport operations are serialised by opMu in call order. mu guards the
// fields read by Snapshot and the policy getters, so those never wait on
// network I/O.
type Client struct {
	name    string
	source  string
	conn    connector
	auth    Authenticator
	timeout time.Duration

	opMu    sync.Mutex
	session *client.Client
	cancel  context.CancelFunc

	mu              sync.RWMutex
	tools           NameFilter
	prompts         NameFilter
	status          Status
	lastConnectedAt *time.Time
	lastError       string
	disabled        bool
	statusHook      func(name string, status Status)
	onListChanged   func()
}

func newClient(name string, conn connector, opts ...Option) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, api.New(api.KindBadRequest, "target name must not be empty")
	}
	c := &Client{
		name:    name,
		conn:    conn,
		timeout: DefaultTimeout,
		status:  StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.tools.Validate(); err != nil {
		return nil, err
	}
	if err := c.prompts.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the target name.
func (c *Client) Name() string { return c.name }

// Source returns the provenance recorded with WithSource.
func (c *Client) Source() string { return c.source }

// Kind returns the transport variant.
func (c *Client) Kind() Kind { return c.conn.kind() }

// Endpoint returns the URL, command or in-process marker of the target.
func (c *Client) Endpoint() string { return c.conn.endpoint() }

// HasAuthenticator reports whether the target is OAuth-aware.
func (c *Client) HasAuthenticator() bool { return c.auth != nil }

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) LastConnectedAt() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastConnectedAt == nil {
		return nil
	}
	t := *c.lastConnectedAt
	return &t
}

func (c *Client) Disabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disabled
}

func (c *Client) Tools() NameFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools.Clone()
}

func (c *Client) SetTools(f NameFilter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tools = f.Clone()
	c.mu.Unlock()
	return nil
}

func (c *Client) Prompts() NameFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts.Clone()
}

func (c *Client) SetPrompts(f NameFilter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.prompts = f.Clone()
	c.mu.Unlock()
	return nil
}

// OnListChanged registers fn to be called when the backend announces that
// its tool, prompt or resource list changed. Replaces any earlier callback.
func (c *Client) OnListChanged(fn func()) {
	c.mu.Lock()
	c.onListChanged = fn
	c.mu.Unlock()
}

func (c *Client) setStatus(status Status, lastError string) {
	c.mu.Lock()
	c.status = status
	c.lastError = lastError
	if status == StatusConnected {
		now := time.Now()
		c.lastConnectedAt = &now
	}
	hook := c.statusHook
	c.mu.Unlock()

	if hook != nil {
		hook(c.name, status)
	}
}

// opContext applies the per-client timeout unless ctx already carries a
// deadline.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) apiError(kind api.Kind, msg string, cause error) *api.Error {
	return &api.Error{
		Kind:     kind,
		Target:   c.name,
		Endpoint: c.conn.endpoint(),
		Message:  msg,
		Cause:    cause,
	}
}

// Connect opens a session to the backend.
//
// A disabled target is left disconnected and reports (false, nil). On an
// authorization challenge the target becomes unauthorized and, when an
// Authenticator is attached, the OAuth flow is started. Any other failure
// leaves the target in the error state. With throwOnError the failure is
// also returned as an Unauthorized or ConnectionRefused api error;
// otherwise it is only recorded.
func (c *Client) Connect(ctx context.Context, throwOnError bool) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.connectLocked(ctx, c.auth, throwOnError)
}

func (c *Client) connectLocked(ctx context.Context, auth Authenticator, throwOnError bool) (bool, error) {
	if c.Disabled() {
		c.closeLocked()
		c.setStatus(StatusDisconnected, "")
		return false, nil
	}
	if c.session != nil {
		c.closeLocked()
	}

	opCtx, cancelOp := c.opContext(ctx)
	defer cancelOp()
	life, cancelLife := context.WithCancel(context.Background())

	session, err := c.conn.dial(dialParams{ctx: opCtx, life: life, auth: auth})
	if err != nil {
		cancelLife()
		return false, c.handleDialError(opCtx, auth, err, throwOnError)
	}

	session.OnNotification(c.handleNotification)
	c.session = session
	c.cancel = cancelLife
	c.setStatus(StatusConnected, "")

	logging.Info("Target", "Connected to %s (%s)", c.name, c.conn.endpoint())
	return true, nil
}

func (c *Client) handleDialError(ctx context.Context, auth Authenticator, err error, throwOnError bool) error {
	var authErr *authRequiredError
	if errors.As(err, &authErr) {
		logging.Info("Target", "Target %s requires authorization", c.name)
		if auth != nil {
			if aerr := auth.Authorize(ctx, c.conn.endpoint(), authErr.challenge); aerr != nil {
				logging.Error("Target", aerr, "Failed to start authorization for %s", c.name)
			}
		}
		c.setStatus(StatusUnauthorized, unauthorizedMessage)
		if throwOnError {
			return c.apiError(api.KindUnauthorized, unauthorizedMessage, err)
		}
		return nil
	}

	msg := c.conn.describe(err)
	logging.Warn("Target", "Failed to connect %s: %s", c.name, msg)
	c.setStatus(StatusError, msg)
	if throwOnError {
		return c.apiError(api.KindConnectionRefused, msg, err)
	}
	return nil
}

func (c *Client) handleNotification(n mcp.JSONRPCNotification) {
	switch n.Method {
	case mcp.MethodNotificationToolsListChanged,
		mcp.MethodNotificationPromptsListChanged,
		mcp.MethodNotificationResourcesListChanged:
	default:
		return
	}
	c.mu.RLock()
	fn := c.onListChanged
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Close releases the transport. unauthorized and error are kept so the
// owner can still see why the target is not usable; connected becomes
// disconnected.
func (c *Client) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.Status() == StatusConnected {
		c.setStatus(StatusDisconnected, "")
	}
	return err
}

// SetDisabled toggles the target. Disabling closes the session first;
// enabling reconnects and returns the connection error, if any.
func (c *Client) SetDisabled(ctx context.Context, disabled bool) error {
	if disabled {
		if err := c.Close(); err != nil {
			logging.Debug("Target", "Error closing %s: %v", c.name, err)
		}
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.disabled = false
	c.mu.Unlock()
	_, err := c.Connect(ctx, true)
	return err
}

// sessionLocked returns the live session. Caller holds opMu.
func (c *Client) sessionLocked() (*client.Client, error) {
	if c.Disabled() {
		return nil, c.apiError(api.KindDisabled, "target is disabled", nil)
	}
	if c.session == nil {
		return nil, fmt.Errorf("%s: %w", c.name, ErrNotConnected)
	}
	return c.session, nil
}

// ListTools returns the upstream tools allowed by the tool policy, renamed
// according to it.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tools, err := c.RawListTools(ctx)
	if err != nil {
		return nil, err
	}
	filter := c.Tools()
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		name, ok := filter.Expose(t.Name)
		if !ok {
			continue
		}
		t.Name = name
		out = append(out, t)
	}
	return out, nil
}

// ListPrompts is ListTools for prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	prompts, err := c.RawListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	filter := c.Prompts()
	out := make([]mcp.Prompt, 0, len(prompts))
	for _, p := range prompts {
		name, ok := filter.Expose(p.Name)
		if !ok {
			continue
		}
		p.Name = name
		out = append(out, p)
	}
	return out, nil
}

// CallTool invokes a tool by its exposed name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	upstream, err := c.Tools().Resolve("tool", name)
	if err != nil {
		return nil, c.annotate(err)
	}
	return c.RawCallTool(ctx, upstream, args)
}

// GetPrompt fetches a prompt by its exposed name.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	upstream, err := c.Prompts().Resolve("prompt", name)
	if err != nil {
		return nil, c.annotate(err)
	}
	return c.RawGetPrompt(ctx, upstream, args)
}

func (c *Client) annotate(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.ForTarget(c.name, c.conn.endpoint())
	}
	return err
}

// RawListTools lists upstream tools without applying the policy. A backend
// without tool support yields an empty list.
func (c *Client) RawListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Tools == nil {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		if IsNotSupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tools on %s: %w", c.name, err)
	}
	return result.Tools, nil
}

// RawListPrompts lists upstream prompts without applying the policy.
func (c *Client) RawListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Prompts == nil {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		if IsNotSupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list prompts on %s: %w", c.name, err)
	}
	return result.Prompts, nil
}

// RawCallTool invokes an upstream tool by its upstream name.
func (c *Client) RawCallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Tools == nil {
		return nil, fmt.Errorf("%s: tools: %w", c.name, ErrNotSupported)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s on %s: %w", name, c.name, err)
	}
	return result, nil
}

// RawGetPrompt fetches an upstream prompt by its upstream name.
func (c *Client) RawGetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Prompts == nil {
		return nil, fmt.Errorf("%s: prompts: %w", c.name, ErrNotSupported)
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s on %s: %w", name, c.name, err)
	}
	return result, nil
}

// ListResources lists upstream resources. Resources are never filtered.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Resources == nil {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		if IsNotSupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list resources on %s: %w", c.name, err)
	}
	return result.Resources, nil
}

// ListResourceTemplates lists upstream resource templates.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}
	if session.GetServerCapabilities().Resources == nil {
		return nil, nil
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		if IsNotSupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list resource templates on %s: %w", c.name, err)
	}
	return result.ResourceTemplates, nil
}

// ReadResource reads an upstream resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session, err := c.sessionLocked()
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := session.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s on %s: %w", uri, c.name, err)
	}
	return result, nil
}

// StartAuthFlow attempts a connection with a provider that captures the
// authorization URL instead of handing it to the default redirect handler.
func (c *Client) StartAuthFlow(ctx context.Context) (AuthFlowResult, error) {
	if c.auth == nil {
		return AuthFlowResult{}, c.apiError(api.KindBadRequest, "target has no OAuth provider", nil)
	}

	var (
		capMu    sync.Mutex
		captured string
	)
	capturing := c.auth.WithRedirectHandler(func(authURL string) {
		capMu.Lock()
		captured = authURL
		capMu.Unlock()
	})

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ok, err := c.connectLocked(ctx, capturing, true)
	if err == nil {
		if !ok {
			return AuthFlowResult{}, c.apiError(api.KindDisabled, "target is disabled", nil)
		}
		return AuthFlowResult{AlreadyAuthorized: true}, nil
	}
	if !api.IsUnauthorized(err) {
		return AuthFlowResult{}, err
	}

	capMu.Lock()
	defer capMu.Unlock()
	if captured == "" {
		return AuthFlowResult{}, fmt.Errorf("unexpected: %s requested authorization but no redirect URL was produced: %w", c.name, err)
	}
	return AuthFlowResult{RedirectURL: captured}, nil
}

// CompleteAuthFlow exchanges the authorization code and reconnects.
func (c *Client) CompleteAuthFlow(ctx context.Context, code string) error {
	if c.auth == nil {
		return c.apiError(api.KindBadRequest, "target has no OAuth provider", nil)
	}
	if code == "" {
		return c.apiError(api.KindBadRequest, "authorization code must not be empty", nil)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.auth.ExchangeCode(opCtx, c.conn.endpoint(), code); err != nil {
		return c.apiError(api.KindUnauthorized, "authorization code exchange failed", err)
	}
	_, err := c.connectLocked(ctx, c.auth, true)
	return err
}

// Logout closes the session, deletes the stored tokens and marks the
// target unauthorized so it reads differently from one that never
// connected.
func (c *Client) Logout(ctx context.Context) error {
	if c.auth == nil {
		return c.apiError(api.KindBadRequest, "target has no OAuth provider", nil)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.closeLocked(); err != nil {
		logging.Debug("Target", "Error closing %s: %v", c.name, err)
	}
	if err := c.auth.Logout(ctx); err != nil {
		return fmt.Errorf("failed to delete tokens for %s: %w", c.name, err)
	}
	c.setStatus(StatusUnauthorized, "logged out")
	return nil
}

// IsAuthenticated reports whether OAuth tokens are stored for the target.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	if c.auth == nil {
		return false, nil
	}
	return c.auth.HasTokens(ctx)
}
