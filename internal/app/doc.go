// Package app bootstraps and runs an mcpgate gateway.
//
// # Components
//
//   - Bootstrap (bootstrap.go): logging setup, config.yaml loading and
//     command line overrides
//   - Services (services.go): builds the credential store, the OAuth
//     factory, the proxy, the target reconciler and watcher, and the
//     session multiplexer
//   - Router (router.go): the chi router serving the MCP endpoint, the
//     OAuth callback, /metrics and /healthz
//   - Modes (modes.go): HTTP and stdio execution with graceful shutdown
//
// # OAuth callbacks
//
// The callback router only accepts requests whose user header
// (auth.userHeader, X-Forwarded-User by default) is set by a fronting
// authenticating proxy. A successful callback resolves the target named in
// the path and completes its authorization flow.
//
// # Signals
//
// SIGINT and SIGTERM shut the gateway down: sessions are closed first,
// then the HTTP server drains. SIGHUP reloads the target directory and
// retries every target connection.
package app
