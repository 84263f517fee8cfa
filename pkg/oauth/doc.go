// Package oauth provides the OAuth 2.1 protocol helpers mcpgate needs to
// authenticate against protected MCP backends.
//
// # Core Components
//
//   - Token: OAuth token representation with expiry checking and
//     conversion to and from golang.org/x/oauth2 tokens
//   - Metadata: authorization server metadata (RFC 8414)
//   - ProtectedResourceMetadata: protected resource metadata (RFC 9728)
//   - ClientMetadata / ClientInformation: dynamic client registration (RFC 7591)
//   - AuthChallenge: parsed WWW-Authenticate header information
//   - authorization state generation (the PKCE verifier comes from golang.org/x/oauth2)
//   - Client: discovery and registration with a TTL cache
//
// Code exchange and token refresh are delegated to golang.org/x/oauth2; this
// package covers the discovery steps that library leaves to the caller.
//
//	c := oauth.NewClient()
//	issuer := c.ResolveIssuer(ctx, "https://mcp.example.com/mcp", challenge)
//	metadata, err := c.DiscoverMetadata(ctx, issuer)
package oauth
