package proxy

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mcpgate/internal/api"
	"mcpgate/internal/metrics"
	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
)

// DefaultConnectConcurrency bounds ConnectTargets.
const DefaultConnectConcurrency = 4

// AddOptions controls AddTarget.
type AddOptions struct {
	// ThrowOnError makes AddTarget fail, without registering the target,
	// when the first connection fails for a reason other than a pending
	// authorization.
	ThrowOnError bool
}

// TargetUpdate is a partial policy update. Nil fields are left unchanged.
type TargetUpdate struct {
	Tools    *target.NameFilter
	Prompts  *target.NameFilter
	Disabled *bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records target status and fan-out latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithConnectConcurrency bounds how many targets ConnectTargets dials at
// once.
func WithConnectConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.connectConcurrency = n
		}
	}
}

// Server aggregates a set of targets into one virtual MCP server.
//
// The target list and the routing tables are guarded by mu. CRUD holds the
// write lock only while mutating the slice, never across network I/O; the
// pending set reserves a name while its target connects so that duplicate
// checks stay atomic.
//
// Routing tables are rebuilt by every list call and are authoritative only
// as of the most recent one. Invoking a tool, prompt or resource before it
// was listed fails as unknown.
type Server struct {
	id                 string
	metrics            *metrics.Metrics
	connectConcurrency int
	notifier           *notifier

	mu        sync.RWMutex
	targets   []*target.Client
	pending   map[string]struct{}
	tools     map[string]*target.Client
	prompts   map[string]*target.Client
	resources map[string]*target.Client
	templates []templateRoute
	closed    bool
}

// New creates an empty proxy. id is used as the MCP server name.
func New(id string, opts ...Option) *Server {
	s := &Server{
		id:                 id,
		connectConcurrency: DefaultConnectConcurrency,
		notifier:           newNotifier(),
		pending:            make(map[string]struct{}),
		tools:              make(map[string]*target.Client),
		prompts:            make(map[string]*target.Client),
		resources:          make(map[string]*target.Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the proxy id.
func (s *Server) ID() string { return s.id }

// SetListChangeListener installs fn as the receiver of list change
// notifications. fn runs on the notifier goroutine; a panic in fn is
// recovered and logged.
func (s *Server) SetListChangeListener(fn func(ListChange)) {
	s.notifier.setListener(fn)
}

func key(name string) string { return strings.ToLower(name) }

// indexLocked returns the position of the named target or -1. Caller holds mu.
func (s *Server) indexLocked(name string) int {
	k := key(name)
	for i, t := range s.targets {
		if key(t.Name()) == k {
			return i
		}
	}
	return -1
}

// AddTarget connects t and registers it.
//
// A target whose name is already taken (compared case-insensitively) is
// rejected with a Duplicate error and nothing changes. A connection that
// ends unauthorized, or any failure when opts.ThrowOnError is false, still
// registers the target so it can be re-authenticated or retried later.
func (s *Server) AddTarget(ctx context.Context, t *target.Client, opts AddOptions) error {
	k := key(t.Name())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return api.New(api.KindBadRequest, "proxy %s is closed", s.id)
	}
	if _, busy := s.pending[k]; busy || s.indexLocked(t.Name()) >= 0 {
		s.mu.Unlock()
		return api.NewDuplicateError(t.Name())
	}
	s.pending[k] = struct{}{}
	s.mu.Unlock()

	_, err := t.Connect(ctx, opts.ThrowOnError)
	if err != nil && !api.IsUnauthorized(err) {
		s.mu.Lock()
		delete(s.pending, k)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	delete(s.pending, k)
	if s.closed {
		s.mu.Unlock()
		if cerr := t.Close(); cerr != nil {
			logging.Debug("Proxy", "Error closing %s: %v", t.Name(), cerr)
		}
		return api.New(api.KindBadRequest, "proxy %s is closed", s.id)
	}
	s.targets = append(s.targets, t)
	s.mu.Unlock()

	t.OnListChanged(s.notifier.schedule)
	s.metrics.SetTargetStatus(s.id, t.Name(), string(t.Status()))
	logging.Info("Proxy", "Added target %s to %s (status %s)", t.Name(), s.id, t.Status())

	s.notifier.schedule()
	return nil
}

// RemoveTarget logs the target out when it holds OAuth tokens, closes it
// and drops it from the proxy.
func (s *Server) RemoveTarget(ctx context.Context, name string) error {
	s.mu.RLock()
	i := s.indexLocked(name)
	var t *target.Client
	if i >= 0 {
		t = s.targets[i]
	}
	s.mu.RUnlock()
	if t == nil {
		return api.New(api.KindBadRequest, "target %q is not part of proxy %s", name, s.id)
	}

	if t.HasAuthenticator() {
		if authenticated, err := t.IsAuthenticated(ctx); err != nil {
			logging.Warn("Proxy", "Could not check tokens of %s: %v", t.Name(), err)
		} else if authenticated {
			if err := t.Logout(ctx); err != nil {
				logging.Error("Proxy", err, "Failed to log out %s", t.Name())
			}
		}
	}
	t.OnListChanged(nil)
	if err := t.Close(); err != nil {
		logging.Debug("Proxy", "Error closing %s: %v", t.Name(), err)
	}

	s.mu.Lock()
	for j, cur := range s.targets {
		if cur == t {
			s.targets = append(s.targets[:j:j], s.targets[j+1:]...)
			break
		}
	}
	s.dropRoutesLocked(t)
	s.mu.Unlock()

	s.metrics.ForgetTarget(s.id, t.Name())
	logging.Info("Proxy", "Removed target %s from %s", t.Name(), s.id)

	s.notifier.schedule()
	return nil
}

// UpdateTarget applies a partial policy update. Both filters are validated
// before either is applied, so a rejected update changes nothing. A present
// Disabled always goes through SetDisabled: false reconnects the target even
// when it is already enabled. The connection error, if any, is returned
// after the update has been applied.
func (s *Server) UpdateTarget(ctx context.Context, name string, upd TargetUpdate) error {
	t, err := s.GetTarget(name)
	if err != nil {
		return err
	}

	for _, f := range []*target.NameFilter{upd.Tools, upd.Prompts} {
		if f == nil {
			continue
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if upd.Tools != nil {
		if err := t.SetTools(*upd.Tools); err != nil {
			return err
		}
	}
	if upd.Prompts != nil {
		if err := t.SetPrompts(*upd.Prompts); err != nil {
			return err
		}
	}

	var connErr error
	if upd.Disabled != nil {
		connErr = t.SetDisabled(ctx, *upd.Disabled)
		s.metrics.SetTargetStatus(s.id, t.Name(), string(t.Status()))
	}

	s.notifier.schedule()
	return connErr
}

// GetTarget looks a target up by name, ignoring case.
func (s *Server) GetTarget(name string) (*target.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(name)
	if i < 0 {
		return nil, api.NewNotFoundError("target", name)
	}
	return s.targets[i], nil
}

// Targets returns the targets in registration order.
func (s *Server) Targets() []*target.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*target.Client, len(s.targets))
	copy(out, s.targets)
	return out
}

// ConnectTargets connects every target without failing on errors; each
// target records its own status.
func (s *Server) ConnectTargets(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.connectConcurrency)
	for _, t := range s.Targets() {
		t := t
		g.Go(func() error {
			if _, err := t.Connect(gctx, false); err != nil {
				logging.Warn("Proxy", "Failed to connect %s: %v", t.Name(), err)
			}
			s.metrics.SetTargetStatus(s.id, t.Name(), string(t.Status()))
			return nil
		})
	}
	_ = g.Wait()
	s.notifier.schedule()
}

// Close stops notifications and closes every target. The listener is
// detached first so target shutdown cannot re-enter it.
func (s *Server) Close() error {
	s.notifier.stop()

	s.mu.Lock()
	s.closed = true
	targets := s.targets
	s.targets = nil
	s.mu.Unlock()

	for _, t := range targets {
		t.OnListChanged(nil)
		if err := t.Close(); err != nil {
			logging.Debug("Proxy", "Error closing %s: %v", t.Name(), err)
		}
	}
	logging.Debug("Proxy", "Closed proxy %s", s.id)
	return nil
}
