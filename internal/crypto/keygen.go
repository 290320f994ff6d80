package crypto

import "fmt"

// DeriveKeyIV derives the per-block key and IV:
//
//	key = SHA512(masterHash || salt || pass)
//	iv  = SHA512(key || salt || pass)
//
// The caller owns key and iv and must Destroy both. On error nothing is
// returned and every buffer created so far has been destroyed.
func DeriveKeyIV(masterHash, salt, pass []byte, requirePinned bool) (key, iv *SecureBuffer, err error) {
	if len(masterHash) != HashLen {
		return nil, nil, fmt.Errorf("%w: master hash is %d bytes, want %d", ErrCryptoFailed, len(masterHash), HashLen)
	}

	scratch, err := NewSecureBuffer(HashLen+len(salt)+len(pass), requirePinned)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to allocate key scratch: %w", err)
	}
	defer scratch.Destroy()

	key, err = NewSecureBuffer(HashLen, requirePinned)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to allocate key: %w", err)
	}
	iv, err = NewSecureBuffer(HashLen, requirePinned)
	if err != nil {
		key.Destroy()
		return nil, nil, fmt.Errorf("failed to allocate iv: %w", err)
	}

	buf := scratch.Bytes()
	copy(buf, masterHash)
	copy(buf[HashLen:], salt)
	copy(buf[HashLen+len(salt):], pass)

	h := newHash()
	defer wipeHash(h)
	h.Write(buf)
	h.Sum(key.Bytes()[:0])
	wipeHash(h)

	copy(buf, key.Bytes())
	h.Write(buf)
	h.Sum(iv.Bytes()[:0])

	return key, iv, nil
}
