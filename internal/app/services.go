package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"mcpgate/internal/api"
	"mcpgate/internal/catalog"
	"mcpgate/internal/config"
	"mcpgate/internal/credstore"
	"mcpgate/internal/metrics"
	"mcpgate/internal/oauth"
	"mcpgate/internal/proxy"
	"mcpgate/internal/session"
	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
)

// Services holds every component of a running gateway.
//
// Initialization order follows the dependencies:
//  1. Metrics registry and catalog
//  2. Credential store and OAuth factory
//  3. Proxy and reconciler
//  4. Session multiplexer and HTTP handler
//  5. Target directory watcher (HTTP mode only)
type Services struct {
	Gateway   config.Config
	ConfigDir string

	// Metrics is nil when metrics are disabled.
	Metrics *metrics.Metrics

	// Catalog is nil when no catalog file is configured.
	Catalog *catalog.Catalog

	Store       credstore.Store
	OAuth       *oauth.Factory
	Proxy       *proxy.Server
	Reconciler  *config.Reconciler
	Multiplexer *session.Multiplexer
	Watcher     *config.Watcher

	// Handler serves the MCP endpoint, OAuth callbacks and /metrics.
	Handler http.Handler

	closers []func() error
}

// InitializeServices builds the services for cfg. cfg.Gateway must be set.
func InitializeServices(cfg *Config) (*Services, error) {
	gw := *cfg.Gateway
	s := &Services{Gateway: gw, ConfigDir: cfg.ConfigPath}

	if gw.Metrics.Enabled {
		s.Metrics = metrics.New()
	}

	if gw.CatalogFile != "" {
		cat, err := catalog.Load(gw.CatalogFile)
		if err != nil {
			return nil, err
		}
		s.Catalog = cat
	}

	store, closeStore, err := newCredentialStore(gw.OAuth)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}
	s.Store = store
	if closeStore != nil {
		s.closers = append(s.closers, closeStore)
	}

	s.OAuth, err = oauth.NewFactory(oauth.FactoryConfig{
		ID:              gw.OAuth.FactoryID,
		CallbackBaseURL: gw.CallbackBaseURL(),
		Store:           store,
		ClientName:      gw.OAuth.ClientName,
		ClientID:        gw.OAuth.ClientID,
		Scopes:          gw.OAuth.Scopes,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create oauth factory: %w", err)
	}

	s.Proxy = proxy.New(gw.ProxyID,
		proxy.WithMetrics(s.Metrics),
		proxy.WithConnectConcurrency(gw.ConnectConcurrency),
	)
	s.closers = append(s.closers, s.Proxy.Close)
	s.Reconciler = config.NewReconciler(s.Proxy, s.NewTarget)

	s.Multiplexer = session.NewMultiplexer(s.resolveProxy,
		session.WithIdleTTL(gw.SessionIdleTTL),
		session.WithMaxSessions(gw.MaxSessions),
		session.WithMetrics(s.Metrics),
	)
	s.Handler = s.newRouter()

	if !cfg.Stdio {
		s.Watcher, err = config.NewWatcher(config.WatcherConfig{
			Dir:      filepath.Join(cfg.ConfigPath, config.TargetsDir),
			OnChange: s.reload,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	logging.Info("Services", "Initialized proxy %s (credential store: %s)", gw.ProxyID, gw.OAuth.Store)
	return s, nil
}

// newCredentialStore creates the configured backend. The returned closer,
// if any, releases backend connections.
func newCredentialStore(cfg config.OAuthConfig) (credstore.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return credstore.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		client := credstore.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), credstore.DefaultRedisDialTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logging.Warn("Services", "Redis at %s is not reachable yet: %v", cfg.RedisAddr, err)
		}
		return credstore.NewKVStore(credstore.NewRedisKV(client), cfg.RedisPrefix), client.Close, nil
	default:
		store, err := credstore.NewFileStore(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// NewTarget builds the client for t with the gateway-wide options. It is
// the reconciler's Builder.
func (s *Services) NewTarget(t config.TargetConfig) (*target.Client, error) {
	opts := []target.Option{
		target.WithStatusHook(func(name string, status target.Status) {
			s.Metrics.SetTargetStatus(s.Gateway.ProxyID, name, string(status))
		}),
	}
	if t.Timeout == 0 && s.Gateway.TargetTimeout > 0 {
		opts = append(opts, target.WithTimeout(s.Gateway.TargetTimeout))
	}
	if t.OAuth {
		opts = append(opts, target.WithAuthenticator(s.OAuth.Authenticator(t.Name)))
	}
	return t.NewClient(opts...)
}

func (s *Services) resolveProxy(*http.Request) (*proxy.Server, error) {
	return s.Proxy, nil
}

// catalogResolver avoids handing a typed nil to LoadTargets.
func (s *Services) catalogResolver() catalog.Resolver {
	if s.Catalog == nil {
		return nil
	}
	return s.Catalog
}

// LoadTargets reads the target directory and applies it to the proxy.
func (s *Services) LoadTargets(ctx context.Context) error {
	targets, loadErr := s.TargetConfigs()
	applyErr := s.Reconciler.Apply(ctx, targets)
	return errors.Join(loadErr, applyErr)
}

// TargetConfigs reads the target directory without applying it. Files
// that fail to load are reported in the returned error.
func (s *Services) TargetConfigs() ([]config.TargetConfig, error) {
	return config.LoadTargets(s.ConfigDir, s.catalogResolver())
}

// BuildTarget creates an unconnected client for the configured target
// name. One-shot commands use it instead of connecting every target.
func (s *Services) BuildTarget(name string) (*target.Client, error) {
	targets, loadErr := s.TargetConfigs()
	for _, t := range targets {
		if strings.EqualFold(t.Name, name) {
			return s.NewTarget(t)
		}
	}
	if loadErr != nil {
		return nil, fmt.Errorf("target %s not found: %w", name, loadErr)
	}
	return nil, api.NewNotFoundError("target", name)
}

// reload runs after the watcher saw target files change.
func (s *Services) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.LoadTargets(ctx); err != nil {
		logging.Warn("Services", "Reload finished with errors: %v", err)
		return
	}
	logging.Info("Services", "Reloaded targets from %s", filepath.Join(s.ConfigDir, config.TargetsDir))
}

// Reconnect reloads the targets and retries every connection.
func (s *Services) Reconnect(ctx context.Context) {
	if err := s.LoadTargets(ctx); err != nil {
		logging.Warn("Services", "Reload finished with errors: %v", err)
	}
	s.Proxy.ConnectTargets(ctx)
}

// Close releases everything in reverse order of creation.
func (s *Services) Close() {
	if s.Watcher != nil {
		_ = s.Watcher.Stop()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logging.Debug("Services", "Error during close: %v", err)
		}
	}
	s.closers = nil
}
