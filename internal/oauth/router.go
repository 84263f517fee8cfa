package oauth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mcpgate/pkg/logging"
)

// Session identifies the authenticated caller of a callback.
type Session struct {
	UserID string
}

// SessionLookup resolves the caller's session. A nil session means the
// caller is not authenticated.
type SessionLookup func(r *http.Request) (*Session, error)

// CallbackSuccess is passed to the success continuation.
type CallbackSuccess struct {
	FactoryID  string
	ProviderID string
	Code       string
	State      string
	UserID     string
}

// CallbackError is passed to the error continuation.
type CallbackError struct {
	FactoryID   string
	ProviderID  string
	Error       string
	Description string
	UserID      string
}

// RouterConfig configures the callback Router. Continuations return the URL
// to redirect the browser to, or "" to render a status page.
type RouterConfig struct {
	SessionLookup SessionLookup
	OnSuccess     func(ctx context.Context, cb CallbackSuccess) (string, error)
	OnError       func(ctx context.Context, cb CallbackError) (string, error)
}

// Router receives authorization server redirects at
// /{factoryID}/{providerID}.
type Router struct {
	chi.Router
	cfg RouterConfig
}

// NewRouter creates the callback router. Mount it under the path used as
// FactoryConfig.CallbackBaseURL.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{Router: chi.NewRouter(), cfg: cfg}
	r.Get("/{factoryID}/{providerID}", r.handleCallback)
	return r
}

func (rt *Router) handleCallback(w http.ResponseWriter, r *http.Request) {
	factoryID := chi.URLParam(r, "factoryID")
	providerID := chi.URLParam(r, "providerID")

	if rt.cfg.SessionLookup == nil {
		renderPage(w, http.StatusUnauthorized, "Authentication Failed", "No session lookup is configured.")
		return
	}
	session, err := rt.cfg.SessionLookup(r)
	if err != nil {
		logging.Error("OAuth", err, "Session lookup failed for callback %s/%s", factoryID, providerID)
		renderPage(w, http.StatusInternalServerError, "Authentication Failed", "Could not verify your session.")
		return
	}
	if session == nil {
		logging.Warn("OAuth", "Rejected unauthenticated callback for %s/%s", factoryID, providerID)
		renderPage(w, http.StatusUnauthorized, "Authentication Failed", "You must be signed in to complete authorization.")
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	errorParam := q.Get("error")

	switch {
	case errorParam != "":
		logging.Warn("OAuth", "Authorization for %s/%s failed: %s - %s", factoryID, providerID, errorParam, q.Get("error_description"))
		cb := CallbackError{
			FactoryID:   factoryID,
			ProviderID:  providerID,
			Error:       errorParam,
			Description: q.Get("error_description"),
			UserID:      session.UserID,
		}
		var redirect string
		if rt.cfg.OnError != nil {
			redirect, err = rt.cfg.OnError(r.Context(), cb)
			if err != nil {
				logging.Error("OAuth", err, "Error continuation failed for %s/%s", factoryID, providerID)
			}
		}
		if redirect != "" {
			http.Redirect(w, r, redirect, http.StatusFound)
			return
		}
		msg := "Authentication failed: " + errorParam
		if cb.Description != "" {
			msg += " (" + cb.Description + ")"
		}
		renderPage(w, http.StatusBadRequest, "Authentication Failed", msg)

	case code != "":
		var redirect string
		if rt.cfg.OnSuccess != nil {
			redirect, err = rt.cfg.OnSuccess(r.Context(), CallbackSuccess{
				FactoryID:  factoryID,
				ProviderID: providerID,
				Code:       code,
				State:      q.Get("state"),
				UserID:     session.UserID,
			})
			if err != nil {
				logging.Error("OAuth", err, "Failed to complete authorization for %s/%s", factoryID, providerID)
				renderPage(w, http.StatusBadGateway, "Authentication Failed", "Failed to complete authentication. Please try again.")
				return
			}
		}
		if redirect != "" {
			http.Redirect(w, r, redirect, http.StatusFound)
			return
		}
		logging.Info("OAuth", "Authorization completed for %s/%s", factoryID, providerID)
		renderPage(w, http.StatusOK, "Authentication Successful", "You have been authenticated to "+providerID+". You can close this window.")

	default:
		renderPage(w, http.StatusBadRequest, "Authentication Failed", "Invalid callback: missing code or error parameter.")
	}
}
