package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		c := NewClient()
		assert.NotNil(t, c.HTTPClient())
		assert.NotNil(t, c.logger)
		assert.Equal(t, DefaultMetadataTTL, c.ttl)
	})

	t.Run("applies options", func(t *testing.T) {
		customHTTP := &http.Client{Timeout: 10 * time.Second}
		c := NewClient(WithHTTPClient(customHTTP), WithMetadataTTL(5*time.Minute))
		assert.Same(t, customHTTP, c.HTTPClient())
		assert.Equal(t, 5*time.Minute, c.ttl)
	})
}

func metadataServer(t *testing.T, hits *int32, oidcOnly bool) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := "/.well-known/oauth-authorization-server"
		if oidcOnly {
			path = "/.well-known/openid-configuration"
		}
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Metadata{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/authorize",
			TokenEndpoint:         srv.URL + "/token",
			RegistrationEndpoint:  srv.URL + "/register",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverMetadata(t *testing.T) {
	t.Run("discovers via RFC 8414 and caches", func(t *testing.T) {
		var hits int32
		srv := metadataServer(t, &hits, false)
		c := NewClient()

		m, err := c.DiscoverMetadata(context.Background(), srv.URL+"/")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/token", m.TokenEndpoint)

		_, err = c.DiscoverMetadata(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

		c.InvalidateMetadata(srv.URL + "/")
		_, err = c.DiscoverMetadata(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	})

	t.Run("falls back to OIDC discovery", func(t *testing.T) {
		var hits int32
		srv := metadataServer(t, &hits, true)

		m, err := NewClient().DiscoverMetadata(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/authorize", m.AuthorizationEndpoint)
	})

	t.Run("deduplicates concurrent fetches", func(t *testing.T) {
		var hits int32
		srv := metadataServer(t, &hits, false)
		c := NewClient()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.DiscoverMetadata(context.Background(), srv.URL)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, atomic.LoadInt32(&hits), int32(2))
	})

	t.Run("fails when nothing is published", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := NewClient().DiscoverMetadata(context.Background(), srv.URL)
		assert.Error(t, err)
	})
}

func TestResolveIssuer(t *testing.T) {
	authServer := "https://auth.example.com"

	t.Run("uses resource_metadata from the challenge", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/custom-prm" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(ProtectedResourceMetadata{
				Resource:             "https://mcp.example.com",
				AuthorizationServers: []string{authServer + "/"},
			})
		}))
		defer srv.Close()

		got := NewClient().ResolveIssuer(context.Background(), "https://unrelated.example.com/mcp",
			&AuthChallenge{Scheme: "Bearer", ResourceMetadataURL: srv.URL + "/custom-prm"})
		assert.Equal(t, authServer, got)
	})

	t.Run("uses well-known document at the server origin", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != protectedResourcePath {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(ProtectedResourceMetadata{AuthorizationServers: []string{authServer}})
		}))
		defer srv.Close()

		got := NewClient().ResolveIssuer(context.Background(), srv.URL+"/mcp", nil)
		assert.Equal(t, authServer, got)
	})

	t.Run("falls back to realm then origin", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		c := NewClient()
		assert.Equal(t, authServer, c.ResolveIssuer(context.Background(), srv.URL+"/mcp",
			&AuthChallenge{Scheme: "Bearer", Realm: authServer}))
		assert.Equal(t, srv.URL, c.ResolveIssuer(context.Background(), srv.URL+"/mcp", nil))
	})
}

func TestRegisterClient(t *testing.T) {
	t.Run("registers and fills redirect uris", func(t *testing.T) {
		var got ClientMetadata
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"client_id":"abc","client_secret":"s3cret"}`))
		}))
		defer srv.Close()

		info, err := NewClient().RegisterClient(context.Background(),
			&Metadata{RegistrationEndpoint: srv.URL},
			ClientMetadata{ClientName: "mcpgate", RedirectURIs: []string{"http://localhost/cb"}})
		require.NoError(t, err)
		assert.Equal(t, "abc", info.ClientID)
		assert.Equal(t, "s3cret", info.ClientSecret)
		assert.Equal(t, []string{"http://localhost/cb"}, info.RedirectURIs)
		assert.Equal(t, "mcpgate", got.ClientName)
	})

	t.Run("no registration endpoint", func(t *testing.T) {
		_, err := NewClient().RegisterClient(context.Background(), &Metadata{}, ClientMetadata{})
		assert.ErrorIs(t, err, ErrRegistrationNotSupported)
	})

	t.Run("server rejects registration", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_client_metadata"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := NewClient().RegisterClient(context.Background(), &Metadata{RegistrationEndpoint: srv.URL}, ClientMetadata{})
		assert.ErrorContains(t, err, "status 400")
	})
}
