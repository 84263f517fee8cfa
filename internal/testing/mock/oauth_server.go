package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// OAuthServerConfig configures the mock OAuth server behavior
type OAuthServerConfig struct {
	// AcceptedScopes lists scopes the server will accept
	AcceptedScopes []string

	// TokenLifetime is how long tokens remain valid
	TokenLifetime time.Duration

	// PKCERequired enforces PKCE flow
	PKCERequired bool

	// DisableRegistration hides the RFC 7591 registration endpoint.
	DisableRegistration bool

	// InvalidGrant rejects all token exchanges
	InvalidGrant bool

	// Clock drives token expiry. Defaults to the system clock; tests pass a
	// FakeClock to expire tokens without sleeping.
	Clock Clock
}

// OAuthServer is a mock OAuth 2.1 authorization server with RFC 8414
// metadata, RFC 7591 registration, authorization code + PKCE and refresh
// grants.
type OAuthServer struct {
	config     OAuthServerConfig
	httpServer *http.Server
	issuer     string
	clock      Clock

	mu            sync.RWMutex
	clients       map[string]string         // client_id -> redirect_uri
	authCodes     map[string]*authCodeEntry // code -> entry
	issuedTokens  map[string]*issuedToken   // access_token -> token info
	registrations int
	refreshes     int
}

type authCodeEntry struct {
	ClientID        string
	RedirectURI     string
	Scope           string
	CodeChallenge   string
	ChallengeMethod string
}

type issuedToken struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ClientID     string
	ExpiresAt    time.Time
}

// TokenResponse is the OAuth token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// NewOAuthServer creates a new mock OAuth server
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = 1 * time.Hour
	}
	if len(config.AcceptedScopes) == 0 {
		config.AcceptedScopes = []string{"openid", "profile"}
	}
	clock := config.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &OAuthServer{
		config:       config,
		clock:        clock,
		clients:      make(map[string]string),
		authCodes:    make(map[string]*authCodeEntry),
		issuedTokens: make(map[string]*issuedToken),
	}
}

// Start starts the OAuth server on a random local port.
func (s *OAuthServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.issuer = fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)

	s.httpServer = &http.Server{Handler: mux}
	srv := s.httpServer
	go func() {
		_ = srv.Serve(listener)
	}()
	return nil
}

// Stop stops the OAuth server
func (s *OAuthServer) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// IssuerURL returns the issuer identifier.
func (s *OAuthServer) IssuerURL() string { return s.issuer }

// Registrations returns the number of successful client registrations.
func (s *OAuthServer) Registrations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registrations
}

// Refreshes returns the number of refresh grants served.
func (s *OAuthServer) Refreshes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}

// ValidateToken checks if a token is valid
func (s *OAuthServer) ValidateToken(accessToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.issuedTokens[accessToken]
	return ok && s.clock.Now().Before(tok.ExpiresAt)
}

// Approve simulates a user approving authURL: it validates the request
// like /authorize does and returns the code that would be sent to the
// redirect URI, plus the state.
func (s *OAuthServer) Approve(authURL string) (code, state string, err error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	code, status := s.authorize(q)
	if status != "" {
		return "", "", fmt.Errorf("authorize rejected: %s", status)
	}
	return code, q.Get("state"), nil
}

// AddToken directly adds a token to the server (for testing)
func (s *OAuthServer) AddToken(accessToken, refreshToken, clientID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedTokens[accessToken] = &issuedToken{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ClientID:     clientID,
		ExpiresAt:    expiresAt,
	}
}

// RevokeToken removes a token from the server, making it invalid for future requests.
func (s *OAuthServer) RevokeToken(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issuedTokens, accessToken)
}

// handleMetadata returns RFC 8414 server metadata
func (s *OAuthServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	metadata := map[string]interface{}{
		"issuer":                                s.issuer,
		"authorization_endpoint":                s.issuer + "/authorize",
		"token_endpoint":                        s.issuer + "/token",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"token_endpoint_auth_methods_supported": []string{"none"},
		"scopes_supported":                      s.config.AcceptedScopes,
		"code_challenge_methods_supported":      []string{"S256"},
	}
	if !s.config.DisableRegistration {
		metadata["registration_endpoint"] = s.issuer + "/register"
	}
	writeJSON(w, http.StatusOK, metadata)
}

// handleRegister implements RFC 7591 dynamic client registration.
func (s *OAuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.config.DisableRegistration {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ClientName   string   `json:"client_name"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.RedirectURIs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client_metadata"})
		return
	}

	clientID := "client-" + generateOpaqueToken()[:12]
	s.mu.Lock()
	s.clients[clientID] = req.RedirectURIs[0]
	s.registrations++
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"client_id":                  clientID,
		"client_id_issued_at":        s.clock.Now().Unix(),
		"client_name":                req.ClientName,
		"redirect_uris":              req.RedirectURIs,
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	})
}

// handleAuthorize auto-approves and redirects with a code.
func (s *OAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, status := s.authorize(q)
	if status != "" {
		http.Error(w, status, http.StatusBadRequest)
		return
	}

	redirectURL, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	rq := redirectURL.Query()
	rq.Set("code", code)
	if state := q.Get("state"); state != "" {
		rq.Set("state", state)
	}
	redirectURL.RawQuery = rq.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (s *OAuthServer) authorize(q url.Values) (code string, status string) {
	if q.Get("response_type") != "code" {
		return "", "unsupported_response_type"
	}
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	s.mu.RLock()
	registered, known := s.clients[clientID]
	s.mu.RUnlock()
	if !known {
		return "", "invalid_client"
	}
	if registered != redirectURI {
		return "", "invalid redirect_uri"
	}
	if s.config.PKCERequired && q.Get("code_challenge") == "" {
		return "", "PKCE required: code_challenge missing"
	}

	code = generateOpaqueToken()
	s.mu.Lock()
	s.authCodes[code] = &authCodeEntry{
		ClientID:        clientID,
		RedirectURI:     redirectURI,
		Scope:           q.Get("scope"),
		CodeChallenge:   q.Get("code_challenge"),
		ChallengeMethod: q.Get("code_challenge_method"),
	}
	s.mu.Unlock()
	return code, ""
}

// RegisterClient pre-registers a client, for tests that store client
// information up front.
func (s *OAuthServer) RegisterClient(clientID, redirectURI string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientID] = redirectURI
}

// handleToken handles token exchange requests
func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if s.config.InvalidGrant {
		tokenError(w, "invalid_grant", "authorization code is invalid")
		return
	}

	switch grantType := r.FormValue("grant_type"); grantType {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r)
	case "refresh_token":
		s.handleRefreshToken(w, r)
	default:
		tokenError(w, "unsupported_grant_type", fmt.Sprintf("grant_type %s not supported", grantType))
	}
}

func (s *OAuthServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	s.mu.Lock()
	entry, exists := s.authCodes[code]
	if exists {
		delete(s.authCodes, code)
	}
	s.mu.Unlock()

	if !exists {
		tokenError(w, "invalid_grant", "authorization code not found or expired")
		return
	}
	if r.FormValue("redirect_uri") != "" && r.FormValue("redirect_uri") != entry.RedirectURI {
		tokenError(w, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if entry.CodeChallenge != "" && !verifyPKCE(entry.CodeChallenge, entry.ChallengeMethod, r.FormValue("code_verifier")) {
		tokenError(w, "invalid_grant", "code_verifier verification failed")
		return
	}

	writeJSON(w, http.StatusOK, s.issue(entry.ClientID, entry.Scope))
}

func (s *OAuthServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.FormValue("refresh_token")

	var original *issuedToken
	s.mu.RLock()
	for _, token := range s.issuedTokens {
		if token.RefreshToken == refreshToken {
			original = token
			break
		}
	}
	s.mu.RUnlock()

	if original == nil {
		tokenError(w, "invalid_grant", "refresh token not found")
		return
	}

	s.mu.Lock()
	delete(s.issuedTokens, original.AccessToken)
	s.refreshes++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, s.issue(original.ClientID, original.Scope))
}

func (s *OAuthServer) issue(clientID, scope string) TokenResponse {
	token := &issuedToken{
		AccessToken:  generateOpaqueToken(),
		RefreshToken: generateOpaqueToken(),
		Scope:        scope,
		ClientID:     clientID,
		ExpiresAt:    s.clock.Now().Add(s.config.TokenLifetime),
	}
	s.mu.Lock()
	s.issuedTokens[token.AccessToken] = token
	s.mu.Unlock()

	return TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.TokenLifetime.Seconds()),
		Scope:        scope,
	}
}

// verifyPKCE verifies the PKCE code verifier against the challenge
func verifyPKCE(challenge, method, verifier string) bool {
	if verifier == "" {
		return false
	}
	switch method {
	case "S256":
		hash := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(hash[:]) == challenge
	case "plain", "":
		return verifier == challenge
	default:
		return false
	}
}

// generateOpaqueToken generates a random opaque token.
// Panics if crypto/rand fails, which should never happen in practice.
func generateOpaqueToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func tokenError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bearerToken extracts the token of a "Bearer <token>" Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return auth[7:]
}
