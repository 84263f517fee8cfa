package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcpgate/internal/api"
	"mcpgate/internal/metrics"
	"mcpgate/internal/proxy"
	"mcpgate/pkg/logging"
)

// HeaderSessionID carries the session id on every request after initialize.
const HeaderSessionID = server.HeaderKeySessionID

const (
	// DefaultMaxSessions bounds the number of live sessions.
	DefaultMaxSessions = 10000

	// maxBodyBytes bounds the body read while looking for an initialize
	// request.
	maxBodyBytes = 4 << 20

	// minCleanupInterval is the shortest interval between idle sweeps.
	minCleanupInterval = time.Second
)

// ProxyResolver picks the proxy a new session is bound to.
type ProxyResolver func(r *http.Request) (*proxy.Server, error)

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithIdleTTL evicts sessions that have seen no request for d. Zero, the
// default, disables eviction: sessions then only end on DELETE, on socket
// close or at Shutdown.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Multiplexer) { m.idleTTL = d }
}

// WithMaxSessions bounds the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *Multiplexer) { m.maxSessions = n }
}

// WithSessionClosed registers fn to be called after a session ends, with
// the proxy it was bound to.
func WithSessionClosed(fn func(id string, p *proxy.Server)) Option {
	return func(m *Multiplexer) { m.onClosed = fn }
}

// WithMetrics records session counts on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Multiplexer) { m.metrics = mt }
}

// entry is one live session.
type entry struct {
	id      string
	proxy   *proxy.Server
	bridge  *bridge
	handler *server.StreamableHTTPServer
	conn    net.Conn

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *entry) touch() {
	e.mu.Lock()
	e.lastSeen = time.Now()
	e.mu.Unlock()
}

func (e *entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// Multiplexer routes streamable HTTP requests to per-session MCP servers.
//
// A POST without a session id that carries an initialize request opens a
// session: the multiplexer resolves a proxy, builds an MCP server for it
// and registers the session once initialization succeeded. Every later
// request must carry the id in the Mcp-Session-Id header.
//
// Sessions live in process memory. Running several instances therefore
// needs session-affine routing in front of them.
//
// The multiplexer owns the list change listener of every proxy it serves
// and fans changes out to the sessions bound to that proxy.
type Multiplexer struct {
	resolver    ProxyResolver
	idleTTL     time.Duration
	maxSessions int
	onClosed    func(id string, p *proxy.Server)
	metrics     *metrics.Metrics

	mu          sync.Mutex
	sessions    map[string]*entry
	subscribers map[*proxy.Server]map[string]*bridge
	closed      bool

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMultiplexer creates a multiplexer binding new sessions to the proxy
// returned by resolver.
//
// When an idle TTL is configured a background goroutine sweeps idle
// sessions; callers must call Shutdown to stop it.
func NewMultiplexer(resolver ProxyResolver, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		resolver:    resolver,
		maxSessions: DefaultMaxSessions,
		sessions:    make(map[string]*entry),
		subscribers: make(map[*proxy.Server]map[string]*bridge),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.idleTTL > 0 {
		go m.cleanupLoop()
	} else {
		close(m.cleanupDone)
	}
	return m
}

type connKey struct{}

// ConnContext is meant for http.Server.ConnContext. It records the
// connection so sessions can be dropped when it closes.
func (m *Multiplexer) ConnContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

// ConnState is meant for http.Server.ConnState. It ends every session that
// was initialized on a connection once that connection closes.
func (m *Multiplexer) ConnState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	m.mu.Lock()
	var ids []string
	for id, e := range m.sessions {
		if e.conn == c {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.closeSession(id, "connection closed")
	}
}

// Len returns the number of live sessions.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Proxy returns the proxy bound to a live session.
func (m *Multiplexer) Proxy(id string) (*proxy.Server, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.proxy, true
}

func (m *Multiplexer) lookup(id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return e, ok
}

// ServeHTTP implements http.Handler.
func (m *Multiplexer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(HeaderSessionID)

	switch r.Method {
	case http.MethodPost:
		if id != "" {
			e, ok := m.lookup(id)
			if !ok {
				writeJSONRPCError(w, http.StatusBadRequest, "Bad Request: unknown session id")
				return
			}
			e.touch()
			e.handler.ServeHTTP(w, r)
			return
		}
		m.initialize(w, r)

	case http.MethodGet, http.MethodDelete:
		if id == "" {
			writeJSONRPCError(w, http.StatusBadRequest, "Bad Request: missing session id")
			return
		}
		e, ok := m.lookup(id)
		if !ok {
			writeJSONRPCError(w, http.StatusNotFound, "Session not found")
			return
		}
		e.touch()
		e.handler.ServeHTTP(w, r)
		if r.Method == http.MethodDelete {
			m.closeSession(id, "terminated by client")
		}

	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeJSONRPCError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// initialize opens a session for a POST without a session id. Anything
// other than an initialize request is rejected.
func (m *Multiplexer) initialize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, "Bad Request: failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeJSONRPCError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	if !isInitializeRequest(body) {
		writeJSONRPCError(w, http.StatusBadRequest, "Bad Request: no valid session id provided")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	closed := m.closed
	full := m.maxSessions > 0 && len(m.sessions) >= m.maxSessions
	m.mu.Unlock()
	if closed {
		writeJSONRPCError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if full {
		logging.Warn("Session", "Session limit reached (%d), rejecting initialize", m.maxSessions)
		writeJSONRPCError(w, http.StatusServiceUnavailable, "Too many sessions")
		return
	}

	p, err := m.resolver(r)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case api.IsNotFound(err):
			status = http.StatusNotFound
		case api.IsBadRequest(err):
			status = http.StatusBadRequest
		case api.IsUnauthorized(err):
			status = http.StatusUnauthorized
		}
		logging.Warn("Session", "No proxy for new session: %v", err)
		writeJSONRPCError(w, status, err.Error())
		return
	}

	id := uuid.NewString()
	b := newBridge(p)
	e := &entry{
		id:       id,
		proxy:    p,
		bridge:   b,
		handler:  server.NewStreamableHTTPServer(b.server, server.WithSessionIdManager(newFixedIDManager(id))),
		lastSeen: time.Now(),
	}
	if c, ok := r.Context().Value(connKey{}).(net.Conn); ok {
		e.conn = c
	}

	rec := &statusRecorder{ResponseWriter: w}
	e.handler.ServeHTTP(rec, r)
	if rec.status() < 200 || rec.status() >= 300 {
		logging.Debug("Session", "Initialize failed with status %d, session %s not registered", rec.status(), logging.TruncateSessionID(id))
		return
	}
	m.register(e)
}

func (m *Multiplexer) register(e *entry) {
	m.mu.Lock()
	m.sessions[e.id] = e
	subs, ok := m.subscribers[e.proxy]
	if !ok {
		subs = make(map[string]*bridge)
		m.subscribers[e.proxy] = subs
		p := e.proxy
		p.SetListChangeListener(func(change proxy.ListChange) { m.broadcast(p, change) })
	}
	subs[e.id] = e.bridge
	total := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionOpened()
	logging.Info("Session", "Opened session %s on proxy %s (total: %d)", logging.TruncateSessionID(e.id), e.proxy.ID(), total)
}

func (m *Multiplexer) broadcast(p *proxy.Server, change proxy.ListChange) {
	m.mu.Lock()
	bridges := make([]*bridge, 0, len(m.subscribers[p]))
	for _, b := range m.subscribers[p] {
		bridges = append(bridges, b)
	}
	m.mu.Unlock()

	for _, b := range bridges {
		b.forward(change)
	}
}

// closeSession removes a session. It is a no-op for unknown ids.
func (m *Multiplexer) closeSession(id, reason string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	if subs := m.subscribers[e.proxy]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(m.subscribers, e.proxy)
			e.proxy.SetListChangeListener(nil)
		}
	}
	m.mu.Unlock()

	m.metrics.SessionClosed()
	logging.Info("Session", "Closed session %s: %s", logging.TruncateSessionID(id), reason)
	if m.onClosed != nil {
		m.onClosed(id, e.proxy)
	}
}

func (m *Multiplexer) cleanupLoop() {
	defer close(m.cleanupDone)

	interval := m.idleTTL / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(time.Now())
		case <-m.stopCleanup:
			return
		}
	}
}

// evictIdle closes sessions idle for longer than the TTL as of now.
func (m *Multiplexer) evictIdle(now time.Time) int {
	m.mu.Lock()
	var idle []string
	for id, e := range m.sessions {
		if now.Sub(e.idleSince()) > m.idleTTL {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.closeSession(id, "idle timeout")
	}
	if len(idle) > 0 {
		logging.Debug("Session", "Evicted %d idle sessions", len(idle))
	}
	return len(idle)
}

// Shutdown stops accepting sessions and closes every live one.
func (m *Multiplexer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	close(m.stopCleanup)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("session shutdown interrupted: %w", err)
		}
		m.closeSession(id, "shutdown")
	}

	select {
	case <-m.cleanupDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isInitializeRequest reports whether body is a single JSON-RPC
// initialize request.
func isInitializeRequest(body []byte) bool {
	var msg struct {
		Method mcp.MCPMethod   `json:"method"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return false
	}
	return msg.Method == mcp.MethodInitialize && len(msg.ID) > 0
}

func writeJSONRPCError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := mcp.NewJSONRPCError(mcp.NewRequestId(nil), mcp.INVALID_REQUEST, message, nil)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Debug("Session", "Failed to write error response: %v", err)
	}
}

// statusRecorder captures the status code while keeping streaming and
// hijacking available to the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}
