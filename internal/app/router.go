package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"mcpgate/internal/api"
	"mcpgate/internal/config"
	"mcpgate/internal/oauth"
	"mcpgate/internal/session"
	"mcpgate/pkg/logging"
)

// newRouter mounts:
//   - the MCP endpoint at Gateway.EndpointPath
//   - the OAuth callback router at /oauth/callback
//   - /metrics when enabled
//   - /healthz
func (s *Services) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	var mcpHandler http.Handler = s.Multiplexer
	if len(s.Gateway.CORSOrigins) > 0 {
		mcpHandler = cors.New(cors.Options{
			AllowedOrigins: s.Gateway.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{session.HeaderSessionID},
		}).Handler(mcpHandler)
	}
	r.Handle(s.Gateway.EndpointPath, mcpHandler)

	r.Mount(config.CallbackPath, oauth.NewRouter(oauth.RouterConfig{
		SessionLookup: headerSession(s.Gateway.Auth.UserHeader),
		OnSuccess:     s.completeAuth,
		OnError:       s.failedAuth,
	}))

	if s.Metrics != nil {
		r.Method(http.MethodGet, s.Gateway.Metrics.Path, s.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// headerSession trusts a user header set by a fronting authenticating
// proxy.
func headerSession(header string) oauth.SessionLookup {
	return func(r *http.Request) (*oauth.Session, error) {
		user := r.Header.Get(header)
		if user == "" {
			return nil, nil
		}
		return &oauth.Session{UserID: user}, nil
	}
}

// completeAuth finishes the flow on the target named by the callback path.
func (s *Services) completeAuth(ctx context.Context, cb oauth.CallbackSuccess) (string, error) {
	if cb.FactoryID != s.OAuth.ID() {
		return "", api.NewNotFoundError("oauth factory", cb.FactoryID)
	}
	t, err := s.Proxy.GetTarget(cb.ProviderID)
	if err != nil {
		return "", err
	}
	if err := t.CompleteAuthFlow(ctx, cb.Code); err != nil {
		return "", fmt.Errorf("failed to complete authorization for %s: %w", t.Name(), err)
	}
	logging.Audit("oauth_authorized",
		slog.String("target", t.Name()),
		slog.String("user", cb.UserID),
	)
	return "", nil
}

func (s *Services) failedAuth(_ context.Context, cb oauth.CallbackError) (string, error) {
	logging.Audit("oauth_denied",
		slog.String("target", cb.ProviderID),
		slog.String("user", cb.UserID),
		slog.String("error", cb.Error),
	)
	return "", nil
}
