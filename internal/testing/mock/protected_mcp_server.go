package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ProtectedMCPServer hosts a mock upstream behind bearer-token validation
// against an OAuthServer. Unauthenticated requests get a 401 whose
// WWW-Authenticate header points at the RFC 9728 protected resource
// metadata, which in turn names the OAuth server.
type ProtectedMCPServer struct {
	*HTTPServer
	oauth *OAuthServer
	scope string
}

// NewProtectedMCPServer creates a protected host for upstream.
func NewProtectedMCPServer(upstream *Server, oauth *OAuthServer, transport HTTPTransportType, scope string) *ProtectedMCPServer {
	p := &ProtectedMCPServer{oauth: oauth, scope: scope}
	p.HTTPServer = NewHTTPServer(upstream.MCPServer(), transport).WithMiddleware(p.protect)
	return p
}

// ResourceMetadataURL returns the RFC 9728 document URL.
func (p *ProtectedMCPServer) ResourceMetadataURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("http://127.0.0.1:%d/.well-known/oauth-protected-resource", p.port)
}

func (p *ProtectedMCPServer) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-protected-resource" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"resource":              p.URL(),
				"authorization_servers": []string{p.oauth.IssuerURL()},
			})
			return
		}

		token := bearerToken(r)
		if token == "" || !p.oauth.ValidateToken(token) {
			header := fmt.Sprintf(`Bearer resource_metadata="%s"`, p.ResourceMetadataURL())
			if p.scope != "" {
				header += fmt.Sprintf(`, scope="%s"`, p.scope)
			}
			w.Header().Set("WWW-Authenticate", header)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
