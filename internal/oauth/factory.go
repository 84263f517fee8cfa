package oauth

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"mcpgate/internal/api"
	"mcpgate/internal/credstore"
	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
	pkgoauth "mcpgate/pkg/oauth"
)

// DefaultClientName is registered with authorization servers when
// FactoryConfig.ClientName is empty.
const DefaultClientName = "mcpgate"

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// ID is the first callback path segment. It lets several factories
	// share one callback router.
	ID string

	// CallbackBaseURL is the externally reachable URL the callback router is
	// mounted at, e.g. "http://localhost:8090/oauth/callback".
	CallbackBaseURL string

	// Store persists client registrations, tokens and PKCE verifiers.
	Store credstore.Store

	// ClientName is sent with dynamic client registration.
	ClientName string

	// ClientID skips dynamic registration when the authorization server
	// only knows pre-registered public clients.
	ClientID string

	// Scopes are requested when the backend's challenge names none.
	Scopes []string

	// HTTPClient is used for discovery, registration and token requests.
	HTTPClient *http.Client
}

// Factory issues Providers that share configuration, a discovery cache and
// a credential store.
type Factory struct {
	cfg       FactoryConfig
	discovery *pkgoauth.Client

	// issuers remembers the authorization server resolved for each
	// provider so that code exchange and refresh need no new discovery.
	issuers sync.Map
}

// NewFactory validates cfg and creates a Factory.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.ID == "" {
		return nil, api.New(api.KindBadRequest, "oauth factory id must not be empty")
	}
	if cfg.Store == nil {
		return nil, api.New(api.KindBadRequest, "oauth factory needs a credential store")
	}
	u, err := url.Parse(cfg.CallbackBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, api.New(api.KindBadRequest, "invalid oauth callback base url %q", cfg.CallbackBaseURL)
	}
	cfg.CallbackBaseURL = strings.TrimSuffix(cfg.CallbackBaseURL, "/")
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}

	opts := []pkgoauth.ClientOption{pkgoauth.WithLogger(logging.Logger("OAuth"))}
	if cfg.HTTPClient != nil {
		opts = append(opts, pkgoauth.WithHTTPClient(cfg.HTTPClient))
	}
	return &Factory{
		cfg:       cfg,
		discovery: pkgoauth.NewClient(opts...),
	}, nil
}

// ID returns the factory id.
func (f *Factory) ID() string { return f.cfg.ID }

// Store returns the credential store shared by all providers.
func (f *Factory) Store() credstore.Store { return f.cfg.Store }

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithRedirectHandler makes Authorize report the authorization URL to fn.
func WithRedirectHandler(fn func(authURL string)) ProviderOption {
	return func(p *Provider) { p.redirect = fn }
}

// Provider returns a provider for the target named providerID.
func (f *Factory) Provider(providerID string, opts ...ProviderOption) *Provider {
	p := &Provider{id: providerID, factory: f, redirect: defaultRedirect(providerID)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticator returns the provider for providerID as a target.Authenticator.
func (f *Factory) Authenticator(providerID string) target.Authenticator {
	return f.Provider(providerID)
}

// RedirectURL returns the callback URL for providerID.
func (f *Factory) RedirectURL(providerID string) string {
	return f.cfg.CallbackBaseURL + "/" + url.PathEscape(f.cfg.ID) + "/" + url.PathEscape(providerID)
}

func (f *Factory) httpClient() *http.Client {
	return f.discovery.HTTPClient()
}

func defaultRedirect(providerID string) func(string) {
	return func(authURL string) {
		logging.Info("OAuth", "Target %s requires authorization. Visit: %s", providerID, authURL)
	}
}
