package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMetadataTTL = 30 * time.Minute

	protectedResourcePath = "/.well-known/oauth-protected-resource"

	// maxBody bounds discovery and registration response bodies.
	maxBody = 1 << 20
)

// ErrRegistrationNotSupported is returned by RegisterClient when the
// authorization server does not advertise a registration endpoint.
var ErrRegistrationNotSupported = errors.New("authorization server does not support dynamic client registration")

// Client handles the OAuth 2.1 discovery and registration steps that
// golang.org/x/oauth2 does not cover: RFC 9728 protected resource metadata,
// RFC 8414 authorization server metadata and RFC 7591 dynamic client
// registration. Token exchange and refresh go through oauth2.Config.
//
// Authorization server metadata is cached per issuer. Concurrent lookups of
// the same issuer share one request.
type Client struct {
	http   *http.Client
	logger *slog.Logger
	ttl    time.Duration

	mu       sync.Mutex
	metadata map[string]cachedMetadata
	inflight singleflight.Group
}

type cachedMetadata struct {
	*Metadata
	expires time.Time
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMetadataTTL sets how long discovered server metadata is reused.
func WithMetadataTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.ttl = ttl }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: DefaultHTTPTimeout},
		logger:   slog.Default(),
		ttl:      DefaultMetadataTTL,
		metadata: map[string]cachedMetadata{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the HTTP client used for discovery and registration.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// ResolveIssuer determines the authorization server for an MCP server URL.
//
// The order is: the RFC 9728 document named by the challenge's
// resource_metadata parameter, the well-known protected resource document at
// the server origin, the challenge realm when it is a URL, and finally the
// server origin itself (the MCP 2025-03-26 fallback).
func (c *Client) ResolveIssuer(ctx context.Context, serverURL string, challenge *AuthChallenge) string {
	candidates := make([]string, 0, 2)
	if challenge != nil && challenge.ResourceMetadataURL != "" {
		candidates = append(candidates, challenge.ResourceMetadataURL)
	}
	if origin := Origin(serverURL); origin != "" {
		candidates = append(candidates, origin+protectedResourcePath)
	}

	for _, metadataURL := range candidates {
		prm, err := c.DiscoverProtectedResource(ctx, metadataURL)
		if err != nil {
			c.logger.Debug("Protected resource metadata unavailable",
				"url", metadataURL,
				"error", err)
			continue
		}
		if len(prm.AuthorizationServers) > 0 {
			return strings.TrimSuffix(prm.AuthorizationServers[0], "/")
		}
	}

	if issuer := challenge.IssuerURL(); issuer != "" {
		return strings.TrimSuffix(issuer, "/")
	}
	return Origin(serverURL)
}

// DiscoverProtectedResource fetches an RFC 9728 protected resource metadata
// document.
func (c *Client) DiscoverProtectedResource(ctx context.Context, metadataURL string) (*ProtectedResourceMetadata, error) {
	var prm ProtectedResourceMetadata
	if err := c.getJSON(ctx, metadataURL, &prm); err != nil {
		return nil, err
	}
	return &prm, nil
}

// DiscoverMetadata returns the authorization server metadata of issuer. It
// reads /.well-known/oauth-authorization-server (RFC 8414) and falls back to
// /.well-known/openid-configuration.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")
	if m := c.lookup(issuer); m != nil {
		return m, nil
	}
	v, err, _ := c.inflight.Do(issuer, func() (interface{}, error) {
		if m := c.lookup(issuer); m != nil {
			return m, nil
		}
		m, err := c.fetchMetadata(ctx, issuer)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.metadata[issuer] = cachedMetadata{Metadata: m, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

// InvalidateMetadata drops the cached metadata of issuer.
func (c *Client) InvalidateMetadata(issuer string) {
	c.mu.Lock()
	delete(c.metadata, strings.TrimSuffix(issuer, "/"))
	c.mu.Unlock()
}

func (c *Client) lookup(issuer string) *Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.metadata[issuer]; ok && time.Now().Before(e.expires) {
		return e.Metadata
	}
	return nil
}

func (c *Client) fetchMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	var m Metadata
	for _, path := range []string{"/.well-known/oauth-authorization-server", "/.well-known/openid-configuration"} {
		m = Metadata{}
		err := c.getJSON(ctx, issuer+path, &m)
		if err == nil {
			break
		}
		c.logger.Debug("Metadata document unavailable", "url", issuer+path, "error", err)
		if path == "/.well-known/openid-configuration" {
			return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, err)
		}
	}
	if m.AuthorizationEndpoint == "" || m.TokenEndpoint == "" {
		return nil, fmt.Errorf("OAuth metadata for %s is missing authorization or token endpoint", issuer)
	}
	c.logger.Debug("Discovered OAuth metadata", "issuer", issuer, "token_endpoint", m.TokenEndpoint)
	return &m, nil
}

// RegisterClient performs RFC 7591 dynamic client registration against the
// registration endpoint advertised in metadata.
func (c *Client) RegisterClient(ctx context.Context, metadata *Metadata, client ClientMetadata) (*ClientInformation, error) {
	if metadata.RegistrationEndpoint == "" {
		return nil, ErrRegistrationNotSupported
	}

	body, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, metadata.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		c.logger.Debug("Client registration failed",
			"status", resp.StatusCode,
			"body", string(respBody))
		return nil, fmt.Errorf("registration request failed with status %d", resp.StatusCode)
	}

	var info ClientInformation
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	if info.ClientID == "" {
		return nil, fmt.Errorf("registration response is missing client_id")
	}
	if len(info.RedirectURIs) == 0 {
		info.RedirectURIs = client.RedirectURIs
	}

	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	return nil
}
