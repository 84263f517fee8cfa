package target

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"mcpgate/internal/api"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// HTTPTransport selects the wire protocol of an HTTP target.
type HTTPTransport string

const (
	// TransportAuto tries streamable HTTP first and falls back to SSE.
	TransportAuto           HTTPTransport = "auto"
	TransportStreamableHTTP HTTPTransport = "streamable-http"
	TransportSSE            HTTPTransport = "sse"
)

// HTTPConfig describes a remote target.
type HTTPConfig struct {
	URL       string
	Headers   map[string]string
	Transport HTTPTransport

	// Base is the round tripper requests are sent through. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
}

type httpConnector struct {
	cfg HTTPConfig
}

// NewHTTP creates a target for a streamable HTTP or SSE backend.
func NewHTTP(name string, cfg HTTPConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, api.New(api.KindBadRequest, "invalid target url %q", cfg.URL)
	}
	switch cfg.Transport {
	case "":
		cfg.Transport = TransportAuto
	case TransportAuto, TransportStreamableHTTP, TransportSSE:
	default:
		return nil, api.New(api.KindBadRequest, "unknown http transport %q", cfg.Transport)
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers
	return newClient(name, &httpConnector{cfg: cfg}, opts...)
}

func (h *httpConnector) kind() Kind { return KindHTTP }

func (h *httpConnector) endpoint() string { return h.cfg.URL }

func (h *httpConnector) dial(p dialParams) (*client.Client, error) {
	base := h.cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if p.auth != nil {
		base = p.auth.RoundTripper(base)
	}
	rec := &challengeRecorder{next: base}
	httpClient := &http.Client{Transport: rec}

	var (
		cl  *client.Client
		err error
	)
	switch h.cfg.Transport {
	case TransportSSE:
		cl, err = h.dialSSE(p, httpClient)
	case TransportStreamableHTTP:
		cl, err = h.dialStreamable(p, httpClient)
	default:
		cl, err = h.dialStreamable(p, httpClient)
		if err != nil && rec.last() == nil && !isAuthFailure(err) && !isRefused(err) {
			logging.Debug("HTTPTarget", "Streamable HTTP failed for %s, falling back to SSE: %v", h.cfg.URL, err)
			cl, err = h.dialSSE(p, httpClient)
		}
	}
	if err == nil {
		return cl, nil
	}

	if ch := rec.last(); ch != nil {
		return nil, &authRequiredError{challenge: ch, cause: err}
	}
	if isAuthFailure(err) {
		return nil, &authRequiredError{challenge: &oauth.AuthChallenge{Scheme: "Bearer"}, cause: err}
	}
	return nil, err
}

func (h *httpConnector) dialStreamable(p dialParams, httpClient *http.Client) (*client.Client, error) {
	opts := []transport.StreamableHTTPCOption{transport.WithHTTPBasicClient(httpClient)}
	if len(h.cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(h.cfg.Headers))
	}

	cl, err := client.NewStreamableHttpClient(h.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}
	if err := cl.Start(p.life); err != nil {
		return nil, err
	}
	if err := initialize(p.ctx, cl, "HTTPTarget", h.cfg.URL); err != nil {
		return nil, err
	}
	return cl, nil
}

func (h *httpConnector) dialSSE(p dialParams, httpClient *http.Client) (*client.Client, error) {
	opts := []transport.ClientOption{transport.WithHTTPClient(httpClient)}
	if len(h.cfg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(h.cfg.Headers))
	}

	cl, err := client.NewSSEMCPClient(h.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE client: %w", err)
	}
	// The SSE stream lives as long as the context given to Start.
	if err := cl.Start(p.life); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("failed to start SSE client: %w", err)
	}
	if err := initialize(p.ctx, cl, "HTTPTarget", h.cfg.URL); err != nil {
		return nil, err
	}
	return cl, nil
}

func (h *httpConnector) describe(err error) string {
	if isRefused(err) {
		return "connection refused: " + h.cfg.URL
	}
	return fmt.Sprintf("failed to connect to %s: %v", h.cfg.URL, err)
}

func (h *httpConnector) snapshot() TransportSnapshot {
	return TransportSnapshot{
		URL:       h.cfg.URL,
		Transport: h.cfg.Transport,
		Headers:   redact(h.cfg.Headers),
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, transport.ErrOAuthAuthorizationRequired) || oauth.LooksUnauthorized(err)
}

func redact(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = redactedValue
	}
	return out
}

const redactedValue = "<redacted>"
