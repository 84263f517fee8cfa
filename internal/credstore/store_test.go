package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/api"
	"mcpgate/pkg/oauth"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  NewKVStore(NewRedisKV(client), "mcpgate:oauth:"),
	}
}

func TestStore_AbsentReads(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.ClientInformation(ctx, "github")
			require.NoError(t, err)
			assert.Nil(t, info)

			tok, err := store.Tokens(ctx, "github")
			require.NoError(t, err)
			assert.Nil(t, tok)

			_, err = store.CodeVerifier(ctx, "github")
			assert.ErrorIs(t, err, ErrNoVerifier)

			// deleting absent tokens is not an error
			assert.NoError(t, store.DeleteTokens(ctx, "github"))
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			info := &oauth.ClientInformation{
				ClientID: "client-1",
				ClientMetadata: oauth.ClientMetadata{
					ClientName:   "mcpgate",
					RedirectURIs: []string{"http://localhost/oauth/callback/gw/github"},
				},
			}
			require.NoError(t, store.SaveClientInformation(ctx, "github", info))

			gotInfo, err := store.ClientInformation(ctx, "github")
			require.NoError(t, err)
			require.NotNil(t, gotInfo)
			assert.Equal(t, "client-1", gotInfo.ClientID)
			assert.Equal(t, info.RedirectURIs, gotInfo.RedirectURIs)

			tok := &oauth.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", ExpiresAt: expiry}
			require.NoError(t, store.SaveTokens(ctx, "github", tok))

			gotTok, err := store.Tokens(ctx, "github")
			require.NoError(t, err)
			require.NotNil(t, gotTok)
			assert.Equal(t, "at", gotTok.AccessToken)
			assert.Equal(t, "rt", gotTok.RefreshToken)
			assert.True(t, expiry.Equal(gotTok.ExpiresAt))

			require.NoError(t, store.SaveCodeVerifier(ctx, "github", "verifier-1"))
			v, err := store.CodeVerifier(ctx, "github")
			require.NoError(t, err)
			assert.Equal(t, "verifier-1", v)

			// providers are isolated
			other, err := store.Tokens(ctx, "linear")
			require.NoError(t, err)
			assert.Nil(t, other)

			require.NoError(t, store.DeleteTokens(ctx, "github"))
			gotTok, err = store.Tokens(ctx, "github")
			require.NoError(t, err)
			assert.Nil(t, gotTok)

			// client information survives logout
			gotInfo, err = store.ClientInformation(ctx, "github")
			require.NoError(t, err)
			assert.NotNil(t, gotInfo)
		})
	}
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	memory := NewMemoryStore()
	_, err := memory.Tokens(ctx, "github")
	assert.ErrorIs(t, err, context.Canceled)

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	err = fileStore.SaveCodeVerifier(ctx, "github", "v")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_NilRecords(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.SaveTokens(ctx, "github", nil)
			assert.True(t, api.IsBadRequest(err))
			err = store.SaveClientInformation(ctx, "github", nil)
			assert.True(t, api.IsBadRequest(err))

			tok, err := store.Tokens(ctx, "github")
			require.NoError(t, err)
			assert.Nil(t, tok)
		})
	}
}

func TestStore_ClearCodeVerifier(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SaveCodeVerifier(ctx, "github", "v1"))
			v, err := store.CodeVerifier(ctx, "github")
			require.NoError(t, err)
			assert.Equal(t, "v1", v)

			require.NoError(t, store.SaveCodeVerifier(ctx, "github", ""))
			_, err = store.CodeVerifier(ctx, "github")
			assert.ErrorIs(t, err, ErrNoVerifier)
		})
	}
}
