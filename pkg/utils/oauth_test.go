package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenStore_LoadMissingFile(t *testing.T) {
	store := &tokenStore{path: filepath.Join(t.TempDir(), "token-dev.json")}

	token, err := store.load()
	require.NoError(t, err)
	assert.Nil(t, token, "missing file means no stored token, not an error")
}

func TestTokenStore_SaveLoadDelete(t *testing.T) {
	// The directory does not exist yet; save must create it.
	store := &tokenStore{path: filepath.Join(t.TempDir(), "tokens", "token-dev.json")}

	saved := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, store.save(saved))

	loaded, err := store.load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	assert.True(t, loaded.Expiry.Equal(saved.Expiry))

	store.delete()
	gone, err := store.load()
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTokenStore_CorruptFile(t *testing.T) {
	store := &tokenStore{path: filepath.Join(t.TempDir(), "token-dev.json")}
	require.NoError(t, os.WriteFile(store.path, []byte("not json"), 0600))

	_, err := store.load()
	assert.Error(t, err)
}
