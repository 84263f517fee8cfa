package mock

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
)

// HTTPServer serves an MCP server over streamable HTTP (at /mcp) or SSE
// (at /sse and /message) on a random local port.
type HTTPServer struct {
	mcpServer  *server.MCPServer
	transport  HTTPTransportType
	middleware func(http.Handler) http.Handler

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	port       int
	running    bool
	requests   int
}

// NewHTTPServer creates an HTTP host for mcpServer.
func NewHTTPServer(mcpServer *server.MCPServer, transport HTTPTransportType) *HTTPServer {
	if transport == "" {
		transport = HTTPTransportStreamableHTTP
	}
	return &HTTPServer{mcpServer: mcpServer, transport: transport}
}

// WithMiddleware wraps the MCP handler, for example to demand a bearer
// token. Must be called before Start.
func (s *HTTPServer) WithMiddleware(mw func(http.Handler) http.Handler) *HTTPServer {
	s.middleware = mw
	return s
}

// Start starts the HTTP server on a dynamically allocated port.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to find available port: %w", err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	var handler http.Handler
	switch s.transport {
	case HTTPTransportSSE:
		handler = server.NewSSEServer(
			s.mcpServer,
			server.WithBaseURL(fmt.Sprintf("http://127.0.0.1:%d", s.port)),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
		)
	default:
		mux := http.NewServeMux()
		mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer))
		handler = mux
	}
	if s.middleware != nil {
		handler = s.middleware(handler)
	}

	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		handler.ServeHTTP(w, r)
	})

	srv := &http.Server{Handler: counted}
	s.httpServer = srv
	go func() {
		// ErrServerClosed after Stop
		_ = srv.Serve(listener)
	}()

	s.running = true
	return nil
}

// Stop shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	// Close rather than Shutdown: SSE streams never go idle.
	if err := s.httpServer.Close(); err != nil {
		return err
	}
	return ctx.Err()
}

// URL returns the MCP endpoint URL for the configured transport.
func (s *HTTPServer) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.transport == HTTPTransportSSE {
		return fmt.Sprintf("http://127.0.0.1:%d/sse", s.port)
	}
	return fmt.Sprintf("http://127.0.0.1:%d/mcp", s.port)
}

// Requests returns the number of HTTP requests served so far.
func (s *HTTPServer) Requests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests
}

// RefusedURL returns an http URL on a local port nothing listens on.
func RefusedURL() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("http://127.0.0.1:%d/mcp", port), nil
}
