package target

import (
	"context"
	"net/http"
	"sync"

	"mcpgate/pkg/oauth"
)

// Authenticator is the OAuth surface an HTTP target needs from its
// provider. internal/oauth.Provider is the production implementation.
type Authenticator interface {
	// RoundTripper wraps base so outgoing requests carry the stored bearer
	// token, refreshing it when it has expired.
	RoundTripper(base http.RoundTripper) http.RoundTripper

	// Authorize begins the authorization code + PKCE flow after serverURL
	// answered with challenge. It ends by handing the authorization URL to
	// the redirect handler.
	Authorize(ctx context.Context, serverURL string, challenge *oauth.AuthChallenge) error

	// ExchangeCode trades an authorization code for tokens and stores them.
	ExchangeCode(ctx context.Context, serverURL, code string) error

	// Logout deletes the stored tokens.
	Logout(ctx context.Context) error

	// HasTokens reports whether tokens are stored.
	HasTokens(ctx context.Context) (bool, error)

	// WithRedirectHandler returns a copy whose Authorize reports the
	// authorization URL to fn instead of the default handler.
	WithRedirectHandler(fn func(authURL string)) Authenticator
}

// AuthFlowResult is the outcome of StartAuthFlow.
type AuthFlowResult struct {
	// AlreadyAuthorized is true when the connection succeeded with the
	// stored credentials.
	AlreadyAuthorized bool

	// RedirectURL is the authorization URL the user has to visit. Set only
	// when AlreadyAuthorized is false.
	RedirectURL string
}

// authRequiredError marks a dial that failed because the backend demands
// authorization.
type authRequiredError struct {
	challenge *oauth.AuthChallenge
	cause     error
}

func (e *authRequiredError) Error() string {
	return "authorization required: " + e.cause.Error()
}

func (e *authRequiredError) Unwrap() error { return e.cause }

// challengeRecorder remembers the last 401 challenge seen on the wire.
// mcp-go's transports flatten HTTP failures into strings, so this is the
// only place the WWW-Authenticate header survives.
type challengeRecorder struct {
	next http.RoundTripper

	mu        sync.Mutex
	challenge *oauth.AuthChallenge
}

func (r *challengeRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if ch := oauth.ChallengeFromResponse(resp); ch != nil {
		r.mu.Lock()
		r.challenge = ch
		r.mu.Unlock()
	}
	return resp, nil
}

func (r *challengeRecorder) last() *oauth.AuthChallenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.challenge
}
