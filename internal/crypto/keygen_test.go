package crypto

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterHash() []byte {
	h := sha512.Sum512([]byte("master"))
	return h[:]
}

func TestDeriveKeyIVMatchesReference(t *testing.T) {
	master := testMasterHash()
	salt := fixedSalt(1)
	pass := []byte("archsaltpassword")

	key, iv, err := DeriveKeyIV(master, salt, pass, false)
	require.NoError(t, err)
	defer key.Destroy()
	defer iv.Destroy()

	wantKey := sha512.Sum512(bytes.Join([][]byte{master, salt, pass}, nil))
	wantIV := sha512.Sum512(bytes.Join([][]byte{wantKey[:], salt, pass}, nil))

	assert.Equal(t, wantKey[:], key.Bytes())
	assert.Equal(t, wantIV[:], iv.Bytes())
}

func TestDeriveKeyIVDeterministic(t *testing.T) {
	master := testMasterHash()
	pass := []byte("pass")

	k1, iv1, err := DeriveKeyIV(master, fixedSalt(7), pass, false)
	require.NoError(t, err)
	defer k1.Destroy()
	defer iv1.Destroy()

	k2, iv2, err := DeriveKeyIV(master, fixedSalt(7), pass, false)
	require.NoError(t, err)
	defer k2.Destroy()
	defer iv2.Destroy()

	assert.Equal(t, k1.Bytes(), k2.Bytes())
	assert.Equal(t, iv1.Bytes(), iv2.Bytes())

	k3, iv3, err := DeriveKeyIV(master, fixedSalt(8), pass, false)
	require.NoError(t, err)
	defer k3.Destroy()
	defer iv3.Destroy()

	assert.NotEqual(t, k1.Bytes(), k3.Bytes())
	assert.NotEqual(t, iv1.Bytes(), iv3.Bytes())
}

func TestDeriveKeyIVRejectsBadMasterHash(t *testing.T) {
	seen := observeSecureBuffers(t)

	_, _, err := DeriveKeyIV([]byte("short"), fixedSalt(0), []byte("p"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoFailed))
	assert.Empty(t, seen())
}

func TestDeriveKeyIVScratchWiped(t *testing.T) {
	seen := observeSecureBuffers(t)

	key, iv, err := DeriveKeyIV(testMasterHash(), fixedSalt(3), []byte("passphrase"), false)
	require.NoError(t, err)

	bufs := seen()
	require.Len(t, bufs, 3)
	requireWiped(t, bufs[:1])

	key.Destroy()
	iv.Destroy()
	requireWiped(t, bufs)
}
