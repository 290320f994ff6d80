package crypto

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"

	"github.com/awnumar/memguard"
)

var (
	ErrAllocFailed = errors.New("secure allocation failed")
	ErrPinFailed   = errors.New("failed to pin memory")
)

// allocObserver sees every SecureBuffer handed out. It is nil outside tests.
var allocObserver func(*SecureBuffer)

// hashObserver sees every hasher handed out by newHash. It is nil outside
// tests.
var hashObserver func(hash.Hash)

// SecureBuffer is a byte buffer pinned in RAM for its lifetime.
// Destroy zeroes and unpins it; call it with defer right after creation.
type SecureBuffer struct {
	buf       []byte
	pinned    bool
	destroyed bool
}

// NewSecureBuffer allocates a zeroed buffer of size bytes and pins it.
// When requirePinned is false a pinning failure leaves the buffer usable
// but unpinned.
func NewSecureBuffer(size int, requirePinned bool) (*SecureBuffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrAllocFailed, size)
	}

	b := &SecureBuffer{buf: make([]byte, size)}
	if size > 0 {
		if err := pin(b.buf); err != nil {
			if requirePinned {
				return nil, fmt.Errorf("%w: %v", ErrPinFailed, err)
			}
		} else {
			b.pinned = true
		}
	}

	if allocObserver != nil {
		allocObserver(b)
	}
	return b, nil
}

// Bytes returns the buffer contents, or nil once destroyed.
func (b *SecureBuffer) Bytes() []byte {
	if b == nil || b.destroyed {
		return nil
	}
	return b.buf
}

// Len returns the buffer size.
func (b *SecureBuffer) Len() int {
	if b == nil || b.destroyed {
		return 0
	}
	return len(b.buf)
}

// Pinned reports whether the buffer is currently excluded from swap.
func (b *SecureBuffer) Pinned() bool {
	return b != nil && b.pinned
}

// Destroy zeroes the buffer and releases the pin. Safe to call twice.
func (b *SecureBuffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	Wipe(b.buf)
	if b.pinned {
		_ = unpin(b.buf)
		b.pinned = false
	}
	b.destroyed = true
}

// Wipe zeroes a byte slice.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

// newHash returns a SHA-512 hasher. Release it with wipeHash.
func newHash() hash.Hash {
	h := sha512.New()
	if hashObserver != nil {
		hashObserver(h)
	}
	return h
}

// wipeHash overwrites the hasher's pending input block and resets it.
// Reset alone leaves the block buffer in place. A one-byte write always
// lands in that buffer at the current fill position, so BlockSize of them
// cover all of it whatever the fill level was.
func wipeHash(h hash.Hash) {
	var zero [1]byte
	for range h.BlockSize() {
		h.Write(zero[:])
	}
	h.Reset()
}
