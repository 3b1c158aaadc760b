package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoplatform/sdk-go/evo"
)

func TestFileTokenStore_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	expiresIn := 3600
	scope := "openid offline_access"
	idToken := "header.payload.sig"
	refreshToken := "refresh-abc"

	original := &evo.AccessToken{
		TokenType:    "Bearer",
		Token:        "access-abc",
		ExpiresIn:    &expiresIn,
		IssuedAt:     time.Unix(1_700_000_000, 0),
		Scope:        &scope,
		IDToken:      &idToken,
		RefreshToken: &refreshToken,
	}

	store := FileTokenStore(path)
	require.NoError(t, store(original))

	loaded, err := LoadFileTokenStore(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.TokenType, loaded.TokenType)
	assert.Equal(t, original.Token, loaded.Token)
	assert.Equal(t, *original.ExpiresIn, *loaded.ExpiresIn)
	assert.Equal(t, original.IssuedAt.Unix(), loaded.IssuedAt.Unix())
	assert.Equal(t, *original.Scope, *loaded.Scope)
	assert.Equal(t, *original.IDToken, *loaded.IDToken)
	assert.Equal(t, *original.RefreshToken, *loaded.RefreshToken)
}

func TestLoadFileTokenStore_MissingFileReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	loaded, err := LoadFileTokenStore(path)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileTokenStore_OverwritesPreviousToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := FileTokenStore(path)

	first := 100
	require.NoError(t, store(&evo.AccessToken{Token: "first", ExpiresIn: &first, IssuedAt: time.Now()}))

	second := 200
	require.NoError(t, store(&evo.AccessToken{Token: "second", ExpiresIn: &second, IssuedAt: time.Now()}))

	loaded, err := LoadFileTokenStore(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "second", loaded.Token)
}
