package crypto

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testLoops = 1000

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestSession(t *testing.T, passphrase string) *Session {
	t.Helper()
	s, err := NewSession([]byte(passphrase), []byte("archsalt"), Options{
		EncLoops: testLoops,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

func fixedSalt(b byte) []byte {
	salt := make([]byte, SaltLen)
	for i := range salt {
		salt[i] = b + byte(i)
	}
	return salt
}

// observeSecureBuffers records every SecureBuffer allocated until the test ends.
func observeSecureBuffers(t *testing.T) func() []*SecureBuffer {
	t.Helper()
	var mu sync.Mutex
	var seen []*SecureBuffer
	allocObserver = func(b *SecureBuffer) {
		mu.Lock()
		seen = append(seen, b)
		mu.Unlock()
	}
	t.Cleanup(func() { allocObserver = nil })
	return func() []*SecureBuffer {
		mu.Lock()
		defer mu.Unlock()
		return append([]*SecureBuffer(nil), seen...)
	}
}

func requireWiped(t *testing.T, bufs []*SecureBuffer) {
	t.Helper()
	for i, b := range bufs {
		require.True(t, b.destroyed, "buffer %d not destroyed", i)
		require.False(t, b.pinned, "buffer %d still pinned", i)
		for j, v := range b.buf {
			if v != 0 {
				t.Fatalf("buffer %d has residual byte %#x at offset %d", i, v, j)
			}
		}
	}
}
