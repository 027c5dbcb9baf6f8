package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	raw, err := LoadSigner(KeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "maker.json")
	require.NoError(t, WriteKeyFile(path, testKey, "pw"))
	// Refuses to clobber an existing key file.
	assert.Error(t, WriteKeyFile(path, testKey, "pw"))

	fromFile, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, raw.Address(), fromFile.Address())

	_, err = LoadSigner(KeyConfig{})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}
