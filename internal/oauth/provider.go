package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"mcpgate/internal/target"
	"mcpgate/pkg/logging"
	pkgoauth "mcpgate/pkg/oauth"
)

var (
	errNoTokens       = errors.New("no tokens stored")
	errNotRefreshable = errors.New("token expired and no refresh token is stored")
)

// refreshGroup collapses concurrent refreshes of the same provider's token.
var refreshGroup singleflight.Group

// Provider runs the OAuth flow for a single target. It holds no state of
// its own: everything that must survive lives in the factory's store.
type Provider struct {
	id       string
	factory  *Factory
	redirect func(string)
}

var _ target.Authenticator = (*Provider)(nil)

// ProviderID returns the target name the provider serves.
func (p *Provider) ProviderID() string { return p.id }

// RedirectURL returns the callback URL registered for this provider.
func (p *Provider) RedirectURL() string { return p.factory.RedirectURL(p.id) }

// WithRedirectHandler returns a copy that reports authorization URLs to fn.
func (p *Provider) WithRedirectHandler(fn func(authURL string)) target.Authenticator {
	cp := *p
	cp.redirect = fn
	return &cp
}

// Authorize starts the authorization code + PKCE flow for serverURL, which
// answered with challenge. It ends by passing the authorization URL to the
// redirect handler.
func (p *Provider) Authorize(ctx context.Context, serverURL string, challenge *pkgoauth.AuthChallenge) error {
	issuer := p.factory.discovery.ResolveIssuer(ctx, serverURL, challenge)
	p.factory.issuers.Store(p.id, issuer)

	metadata, err := p.factory.discovery.DiscoverMetadata(ctx, issuer)
	if err != nil {
		return err
	}
	if !metadata.SupportsPKCE() {
		return fmt.Errorf("authorization server %s does not support S256 PKCE", issuer)
	}

	scopes := p.factory.cfg.Scopes
	if challenge != nil && challenge.Scope != "" {
		scopes = strings.Fields(challenge.Scope)
	}

	info, err := p.clientInformation(ctx, metadata, scopes)
	if err != nil {
		return err
	}

	verifier := oauth2.GenerateVerifier()
	if err := p.factory.cfg.Store.SaveCodeVerifier(ctx, p.id, verifier); err != nil {
		return fmt.Errorf("failed to save code verifier: %w", err)
	}
	state, err := pkgoauth.NewState()
	if err != nil {
		return err
	}

	cfg := p.config(metadata, info, scopes)
	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("resource", pkgoauth.NormalizeServerURL(serverURL)))

	logging.Debug("OAuth", "Authorization URL created for %s (issuer %s)", p.id, issuer)
	if p.redirect != nil {
		p.redirect(authURL)
	}
	return nil
}

// clientInformation returns the stored registration, registering a new
// client when none is stored.
func (p *Provider) clientInformation(ctx context.Context, metadata *pkgoauth.Metadata, scopes []string) (*pkgoauth.ClientInformation, error) {
	store := p.factory.cfg.Store
	info, err := store.ClientInformation(ctx, p.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load client information: %w", err)
	}
	if info != nil {
		return info, nil
	}

	if id := p.factory.cfg.ClientID; id != "" {
		info = &pkgoauth.ClientInformation{ClientID: id}
		info.RedirectURIs = []string{p.RedirectURL()}
	} else {
		info, err = p.factory.discovery.RegisterClient(ctx, metadata, pkgoauth.ClientMetadata{
			ClientName:              p.factory.cfg.ClientName,
			RedirectURIs:            []string{p.RedirectURL()},
			GrantTypes:              []string{"authorization_code", "refresh_token"},
			ResponseTypes:           []string{"code"},
			TokenEndpointAuthMethod: "none",
			Scope:                   strings.Join(scopes, " "),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register client for %s: %w", p.id, err)
		}
		logging.Info("OAuth", "Registered OAuth client for %s", p.id)
	}

	if err := store.SaveClientInformation(ctx, p.id, info); err != nil {
		return nil, fmt.Errorf("failed to save client information: %w", err)
	}
	return info, nil
}

func (p *Provider) config(metadata *pkgoauth.Metadata, info *pkgoauth.ClientInformation, scopes []string) *oauth2.Config {
	endpoint := metadata.Endpoint()
	if info.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  p.RedirectURL(),
		Scopes:       scopes,
	}
}

// tokenConfig rebuilds the oauth2 configuration for token requests from
// the stored registration and the issuer resolved for serverURL.
func (p *Provider) tokenConfig(ctx context.Context, serverURL string) (*oauth2.Config, error) {
	info, err := p.factory.cfg.Store.ClientInformation(ctx, p.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load client information: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("no OAuth client registered for %s", p.id)
	}

	issuer, ok := p.factory.issuers.Load(p.id)
	if !ok {
		issuer = p.factory.discovery.ResolveIssuer(ctx, serverURL, nil)
		p.factory.issuers.Store(p.id, issuer)
	}
	metadata, err := p.factory.discovery.DiscoverMetadata(ctx, issuer.(string))
	if err != nil {
		return nil, err
	}
	return p.config(metadata, info, p.factory.cfg.Scopes), nil
}

// ExchangeCode trades an authorization code for tokens and stores them.
func (p *Provider) ExchangeCode(ctx context.Context, serverURL, code string) error {
	store := p.factory.cfg.Store
	verifier, err := store.CodeVerifier(ctx, p.id)
	if err != nil {
		return fmt.Errorf("failed to load code verifier for %s: %w", p.id, err)
	}
	cfg, err := p.tokenConfig(ctx, serverURL)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.factory.httpClient())
	tok, err := cfg.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("resource", pkgoauth.NormalizeServerURL(serverURL)))
	if err != nil {
		logging.Audit("token_exchange_failed", slog.String("provider", p.id))
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := store.SaveTokens(ctx, p.id, pkgoauth.TokenFromOAuth2(tok)); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	// a verifier is single use
	if err := store.SaveCodeVerifier(ctx, p.id, ""); err != nil {
		logging.Warn("OAuth", "Failed to clear code verifier for %s: %v", p.id, err)
	}
	logging.Info("OAuth", "Stored tokens for %s", p.id)
	return nil
}

// Logout deletes the stored tokens. The client registration is kept.
func (p *Provider) Logout(ctx context.Context) error {
	return p.factory.cfg.Store.DeleteTokens(ctx, p.id)
}

// HasTokens reports whether tokens are stored.
func (p *Provider) HasTokens(ctx context.Context) (bool, error) {
	tok, err := p.factory.cfg.Store.Tokens(ctx, p.id)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// RoundTripper wraps base so requests carry the stored access token.
// Requests pass through unchanged while no token is stored, so the backend
// can answer with its challenge.
func (p *Provider) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{provider: p, base: base}
}

type bearerTransport struct {
	provider *Provider
	base     http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	src := &storeTokenSource{ctx: req.Context(), provider: t.provider, serverURL: req.URL.String()}
	tok, err := src.Token()
	if err != nil {
		if !errors.Is(err, errNoTokens) {
			logging.Warn("OAuth", "No usable token for %s: %v", t.provider.id, err)
		}
		return t.base.RoundTrip(req)
	}
	return (&oauth2.Transport{Source: oauth2.StaticTokenSource(tok), Base: t.base}).RoundTrip(req)
}

// storeTokenSource is an oauth2.TokenSource reading from the credential
// store. Expired tokens are refreshed and written back.
type storeTokenSource struct {
	ctx       context.Context
	provider  *Provider
	serverURL string
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	p := s.provider
	stored, err := p.factory.cfg.Store.Tokens(s.ctx, p.id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errNoTokens
	}
	if !stored.IsExpired() {
		return stored.ToOAuth2Token(), nil
	}
	if stored.RefreshToken == "" {
		return nil, errNotRefreshable
	}

	v, err, _ := refreshGroup.Do(p.factory.cfg.ID+"/"+p.id, func() (interface{}, error) {
		return p.refresh(s.ctx, s.serverURL, stored)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

func (p *Provider) refresh(ctx context.Context, serverURL string, stored *pkgoauth.Token) (*oauth2.Token, error) {
	cfg, err := p.tokenConfig(ctx, serverURL)
	if err != nil {
		return nil, err
	}

	// An empty access token makes oauth2 consider the token invalid and run
	// the refresh grant regardless of its own expiry margin.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.factory.httpClient())
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		logging.Audit("token_refresh_failed", slog.String("provider", p.id))
		return nil, fmt.Errorf("failed to refresh token for %s: %w", p.id, err)
	}

	refreshed := pkgoauth.TokenFromOAuth2(tok)
	if refreshed.Scope == "" {
		refreshed.Scope = stored.Scope
	}
	if err := p.factory.cfg.Store.SaveTokens(ctx, p.id, refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	logging.Debug("OAuth", "Refreshed token for %s", p.id)
	return tok, nil
}
