package credstore

import (
	"context"
	"errors"

	"mcpgate/internal/api"
	"mcpgate/pkg/oauth"
)

// ErrNoVerifier is returned by CodeVerifier when no verifier is saved for a
// provider, or the saved one was cleared. Unlike the other reads this is a
// hard error: a missing verifier in the middle of an authorization flow
// means the handshake is broken, not that a cache is cold.
var ErrNoVerifier = errors.New("no code verifier saved")

// Store persists per-provider OAuth state. All reads return (nil, nil) when
// nothing is stored, except CodeVerifier. Saving an empty verifier clears
// it. Saving a nil record is a BadRequest.
//
// Implementations must be safe for concurrent use.
type Store interface {
	ClientInformation(ctx context.Context, providerID string) (*oauth.ClientInformation, error)
	SaveClientInformation(ctx context.Context, providerID string, info *oauth.ClientInformation) error

	Tokens(ctx context.Context, providerID string) (*oauth.Token, error)
	SaveTokens(ctx context.Context, providerID string, tokens *oauth.Token) error
	DeleteTokens(ctx context.Context, providerID string) error

	CodeVerifier(ctx context.Context, providerID string) (string, error)
	SaveCodeVerifier(ctx context.Context, providerID string, verifier string) error
}

// record kinds, used as key and file-name suffixes by the backends.
const (
	kindClient   = "client"
	kindTokens   = "tokens"
	kindVerifier = "verifier"
)

func errNilRecord(kind string) error {
	return api.New(api.KindBadRequest, "cannot save nil %s record", kind)
}
