package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// clone copies b, keeping an empty input non-nil.
func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

// referenceEncrypt computes the expected output with plain CBC over the
// zero-padded input and the final two blocks swapped.
func referenceEncrypt(t *testing.T, s *Session, plain, salt []byte) []byte {
	t.Helper()
	hash, pass, err := s.secrets()
	require.NoError(t, err)
	key, iv, err := DeriveKeyIV(hash, salt, pass, false)
	require.NoError(t, err)
	defer key.Destroy()
	defer iv.Destroy()

	block, err := aes.NewCipher(key.Bytes()[:KeySize])
	require.NoError(t, err)

	m := len(plain) % BlockSize
	n := len(plain) - m
	padded := make([]byte, n)
	if m > 0 {
		padded = make([]byte, n+BlockSize)
	}
	copy(padded, plain)
	cipher.NewCBCEncrypter(block, iv.Bytes()[:BlockSize]).CryptBlocks(padded, padded)
	if m == 0 {
		return padded
	}

	out := make([]byte, len(plain))
	copy(out, padded[:n-BlockSize])
	copy(out[n-BlockSize:n], padded[n:])
	copy(out[n:], padded[n-BlockSize:n-BlockSize+m])
	return out
}

func TestCryptRoundTripLengths(t *testing.T) {
	s := newTestSession(t, "round trip")
	salt := fixedSalt(9)

	for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 33, 1024 + 7} {
		t.Run(fmt.Sprintf("len_%d", n), func(t *testing.T) {
			plain := pattern(n)
			buf := clone(plain)

			require.NoError(t, Crypt(s, buf, salt, ModeEncrypt))
			require.Len(t, buf, n)
			if n >= BlockSize {
				assert.NotEqual(t, plain, buf)
			}

			require.NoError(t, Crypt(s, buf, salt, ModeDecrypt))
			assert.Equal(t, plain, buf)
		})
	}
}

func TestCryptStealingTail(t *testing.T) {
	s := newTestSession(t, "stealing")
	salt := fixedSalt(0x40)

	for _, full := range []int{1, 2, 5} {
		for m := 0; m < BlockSize; m++ {
			n := full*BlockSize + m
			t.Run(fmt.Sprintf("blocks_%d_tail_%d", full, m), func(t *testing.T) {
				plain := pattern(n)
				buf := clone(plain)

				require.NoError(t, Crypt(s, buf, salt, ModeEncrypt))
				assert.Equal(t, referenceEncrypt(t, s, plain, salt), buf)

				require.NoError(t, Crypt(s, buf, salt, ModeDecrypt))
				assert.Equal(t, plain[n-m:], buf[n-m:], "tail bytes")
				assert.Equal(t, plain, buf)
			})
		}
	}
}

func TestCryptShortBuffers(t *testing.T) {
	s := newTestSession(t, "short")
	salt := fixedSalt(2)

	longest := pattern(BlockSize - 1)
	require.NoError(t, Crypt(s, longest, salt, ModeEncrypt))
	assert.NotEqual(t, pattern(BlockSize-1), longest)

	// Every short length uses the same keystream prefix.
	for n := 1; n < BlockSize; n++ {
		plain := pattern(n)
		buf := clone(plain)
		require.NoError(t, Crypt(s, buf, salt, ModeEncrypt))
		assert.Equal(t, longest[:n], buf, "len %d", n)
		require.NoError(t, Crypt(s, buf, salt, ModeDecrypt))
		assert.Equal(t, plain, buf, "len %d", n)
	}
}

func TestCryptValidateMatchesDecrypt(t *testing.T) {
	s := newTestSession(t, "validate")
	salt := fixedSalt(5)
	plain := pattern(77)

	enc := clone(plain)
	require.NoError(t, Crypt(s, enc, salt, ModeEncrypt))

	dec := clone(enc)
	val := clone(enc)
	require.NoError(t, Crypt(s, dec, salt, ModeDecrypt))
	require.NoError(t, Crypt(s, val, salt, ModeValidate))

	assert.Equal(t, plain, dec)
	assert.Equal(t, dec, val)
}

func TestCryptSaltAndPassphraseMatter(t *testing.T) {
	a := newTestSession(t, "alpha")
	b := newTestSession(t, "bravo")
	plain := pattern(48)

	encrypt := func(s *Session, salt []byte) []byte {
		buf := clone(plain)
		require.NoError(t, Crypt(s, buf, salt, ModeEncrypt))
		return buf
	}

	assert.Equal(t, encrypt(a, fixedSalt(1)), encrypt(a, fixedSalt(1)))
	assert.NotEqual(t, encrypt(a, fixedSalt(1)), encrypt(a, fixedSalt(2)))
	assert.NotEqual(t, encrypt(a, fixedSalt(1)), encrypt(b, fixedSalt(1)))

	// Wrong passphrase does not recover the plaintext
	buf := encrypt(a, fixedSalt(1))
	require.NoError(t, Crypt(b, buf, fixedSalt(1), ModeDecrypt))
	assert.NotEqual(t, plain, buf)
}

func TestCryptRejectsBadSalt(t *testing.T) {
	s := newTestSession(t, "salt")
	buf := pattern(32)

	err := Crypt(s, buf, []byte("short"), ModeEncrypt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoFailed))
	assert.Equal(t, pattern(32), buf)
}

func TestCryptAfterDestroy(t *testing.T) {
	s, err := NewSession([]byte("gone"), nil, Options{EncLoops: 10, Logger: quietLogger()})
	require.NoError(t, err)
	s.Destroy()

	err = Crypt(s, pattern(16), fixedSalt(0), ModeEncrypt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoFailed))
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestCryptWipesKeyMaterial(t *testing.T) {
	s := newTestSession(t, "hygiene")

	for _, mode := range []Mode{ModeEncrypt, ModeDecrypt, ModeValidate} {
		t.Run(mode.String(), func(t *testing.T) {
			seen := observeSecureBuffers(t)
			require.NoError(t, Crypt(s, pattern(45), fixedSalt(6), mode))

			bufs := seen()
			require.Len(t, bufs, 3)
			requireWiped(t, bufs)
		})
	}
}

func TestCryptWipesKeyMaterialOnFailure(t *testing.T) {
	s := newTestSession(t, "hygiene failure")
	seen := observeSecureBuffers(t)

	err := Crypt(s, pattern(45), fixedSalt(6), Mode(42))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCryptoFailed))

	bufs := seen()
	require.Len(t, bufs, 3)
	requireWiped(t, bufs)
}

func TestNewBlockCipherRejectsShortMaterial(t *testing.T) {
	_, err := newBlockCipher(make([]byte, 16), make([]byte, 16))
	assert.True(t, errors.Is(err, ErrCryptoFailed))

	_, err = newBlockCipher(make([]byte, 32), make([]byte, 8))
	assert.True(t, errors.Is(err, ErrCryptoFailed))

	c, err := newBlockCipher(make([]byte, 64), make([]byte, 64))
	require.NoError(t, err)
	assert.Len(t, c.iv, BlockSize)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "encrypt", ModeEncrypt.String())
	assert.Equal(t, "decrypt", ModeDecrypt.String())
	assert.Equal(t, "validate", ModeValidate.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestCryptRoundTripProperty(t *testing.T) {
	s := newTestSession(t, "property")

	rapid.Check(t, func(t *rapid.T) {
		plain := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "plain")
		salt := rapid.SliceOfN(rapid.Byte(), SaltLen, SaltLen).Draw(t, "salt")

		buf := clone(plain)
		if err := Crypt(s, buf, salt, ModeEncrypt); err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if len(buf) != len(plain) {
			t.Fatalf("length changed: %d -> %d", len(plain), len(buf))
		}
		if err := Crypt(s, buf, salt, ModeDecrypt); err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(plain, buf) {
			t.Fatalf("round trip mismatch for %d bytes", len(plain))
		}
	})
}
