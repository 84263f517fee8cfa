package mock

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthServer_TokenExpiryFollowsClock(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	as := NewOAuthServer(OAuthServerConfig{Clock: clock})

	as.AddToken("tok", "refresh", "client", clock.Now().Add(time.Hour))
	assert.True(t, as.ValidateToken("tok"))

	clock.Advance(2 * time.Hour)
	assert.False(t, as.ValidateToken("tok"))
	assert.False(t, as.ValidateToken("unknown"))
}

func TestProtectedMCPServer_RejectsRevokedTokens(t *testing.T) {
	as := NewOAuthServer(OAuthServerConfig{})
	require.NoError(t, as.Start())
	t.Cleanup(func() { _ = as.Stop() })

	upstream := NewServer(ServerConfig{Name: "secure", Tools: Tools("whoami")})
	protected := NewProtectedMCPServer(upstream, as, HTTPTransportStreamableHTTP, "mcp:read")
	require.NoError(t, protected.Start())
	t.Cleanup(func() { _ = protected.Stop(context.Background()) })

	get := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, protected.URL(), nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	resp := get("")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), protected.ResourceMetadataURL())
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `scope="mcp:read"`)

	as.AddToken("tok", "", "client", time.Now().Add(time.Hour))
	assert.NotEqual(t, http.StatusUnauthorized, get("tok").StatusCode)

	as.RevokeToken("tok")
	assert.Equal(t, http.StatusUnauthorized, get("tok").StatusCode)
}
