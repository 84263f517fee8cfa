// Package oauth implements the authorization code + PKCE flow mcpgate runs
// against OAuth-protected targets.
//
// # Components
//
//   - Factory: issues per-target providers bound to a callback URL and a
//     credential store. Providers are cheap and never cached.
//   - Provider: implements target.Authenticator. Authorize discovers the
//     authorization server (RFC 9728, RFC 8414), registers a client when
//     needed (RFC 7591), saves a PKCE verifier and hands the authorization
//     URL to a redirect handler. ExchangeCode trades the code for tokens.
//     RoundTripper injects the bearer token and refreshes it through
//     golang.org/x/oauth2.
//   - Router: the chi router serving /{factoryID}/{providerID}, normally
//     mounted at /oauth/callback. It gates callbacks on a session lookup and
//     hands codes and errors to caller-supplied continuations.
//
// # Flow
//
//  1. A target connects and the backend answers 401
//  2. The target calls Provider.Authorize, which produces the authorization URL
//  3. The user authorizes in a browser and is redirected to the Router
//  4. The success continuation calls CompleteAuthFlow on the target, which
//     runs Provider.ExchangeCode and reconnects
//
// # Security
//
// Tokens and client secrets live only in the credential store and are never
// logged. The callback pages escape every value they render and are served
// with restrictive security headers.
package oauth
