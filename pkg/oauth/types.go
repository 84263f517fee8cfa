package oauth

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// expiryMargin treats tokens that are about to expire as already expired, so
// a request does not race the expiry on its way to the server.
const expiryMargin = 30 * time.Second

// NormalizeServerURL strips the /mcp or /sse endpoint suffix and trailing
// slashes from an MCP server URL.
func NormalizeServerURL(serverURL string) string {
	serverURL = strings.TrimSuffix(serverURL, "/")
	for _, suffix := range []string{"/mcp", "/sse"} {
		serverURL = strings.TrimSuffix(serverURL, suffix)
	}
	return serverURL
}

// Origin returns scheme://host[:port] of rawURL, or "" if it is not absolute.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Token is the persisted form of an OAuth token set.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	// Scope is space separated.
	Scope string `json:"scope,omitempty"`
}

// IsExpired reports whether the access token expires within the next 30
// seconds. Tokens without an expiry never expire.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(t.ExpiresAt) < expiryMargin
}

func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// TokenFromOAuth2 converts tok, reading the granted scope from the token
// response extras.
func TokenFromOAuth2(tok *oauth2.Token) *Token {
	if tok == nil {
		return nil
	}
	scope, _ := tok.Extra("scope").(string)
	return &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
	}
}

// Metadata is the subset of RFC 8414 authorization server metadata mcpgate
// reads.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE reports whether the server accepts S256 challenges. OAuth 2.1
// servers must, so an empty method list counts as support.
func (m *Metadata) SupportsPKCE() bool {
	return len(m.CodeChallengeMethodsSupported) == 0 || slices.Contains(m.CodeChallengeMethodsSupported, "S256")
}

func (m *Metadata) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: m.AuthorizationEndpoint, TokenURL: m.TokenEndpoint}
}

// ProtectedResourceMetadata is an RFC 9728 protected resource document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// AuthChallenge holds the parameters of a Bearer WWW-Authenticate header.
type AuthChallenge struct {
	Scheme string
	Realm  string
	// Issuer is set when the realm is itself an issuer URL.
	Issuer              string
	ResourceMetadataURL string
	Scope               string
	Error               string
	ErrorDescription    string
}

// IsBearer reports whether c is an OAuth bearer challenge.
func (c *AuthChallenge) IsBearer() bool {
	return c != nil && strings.EqualFold(c.Scheme, "Bearer")
}

// IssuerURL returns the explicit issuer, or the realm when it is a URL.
func (c *AuthChallenge) IssuerURL() string {
	switch {
	case c == nil:
		return ""
	case c.Issuer != "":
		return c.Issuer
	case strings.HasPrefix(c.Realm, "https://"), strings.HasPrefix(c.Realm, "http://"):
		return c.Realm
	}
	return ""
}

// ClientMetadata is an RFC 7591 client registration request.
type ClientMetadata struct {
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// ClientInformation is an RFC 7591 registration response: the issued
// credentials plus the metadata the server accepted.
type ClientInformation struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64  `json:"client_secret_expires_at,omitempty"`

	ClientMetadata
}
