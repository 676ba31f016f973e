package cryptobox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "keys", "app.key"))
	require.NoError(t, err)
	box, err := New(key)
	require.NoError(t, err)

	sealed, err := box.Seal("Jane")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "Jane")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Jane", plain)
}

func TestOpenRejectsForeignKey(t *testing.T) {
	dir := t.TempDir()
	k1, err := LoadOrCreateKey(filepath.Join(dir, "a.key"))
	require.NoError(t, err)
	k2, err := LoadOrCreateKey(filepath.Join(dir, "b.key"))
	require.NoError(t, err)
	b1, _ := New(k1)
	b2, _ := New(k2)

	sealed, err := b1.Seal("secret")
	require.NoError(t, err)
	_, err = b2.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = b1.Open("!!not-base64")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestLoadOrCreateKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.key")
	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
