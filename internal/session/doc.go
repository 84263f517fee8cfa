// Package session serves aggregating proxies over the streamable HTTP
// transport, one MCP session at a time.
//
// The Multiplexer keeps a process-local map of session id to a dedicated
// mcp-go StreamableHTTPServer. Each of those servers fronts a bridge: an
// MCP server whose tools, prompts and resources are reinstalled from the
// bound proxy on every list request.
//
// Session lifecycle:
//
//   - POST without Mcp-Session-Id carrying initialize: a new session is
//     bound to the proxy picked by the ProxyResolver and registered once
//     the initialize response succeeded
//   - DELETE with a known id: the session is terminated and removed
//   - the connection the session was initialized on closes: the session
//     is removed (wire ConnContext and ConnState into the http.Server)
//   - optional idle eviction with WithIdleTTL
//   - Shutdown closes every session
//
// Because the map lives in one process, horizontally scaled deployments
// must route a client to the same instance for the whole session.
package session
