package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	mrand "math/rand/v2"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultRandomDevice is the OS entropy device read for salts.
const DefaultRandomDevice = "/dev/urandom"

var (
	ErrRandomFailed       = errors.New("random source failed")
	ErrEntropyUnavailable = errors.New("entropy device unavailable")
)

// RandomSource fills buffers from an entropy device. When the device does
// not exist it falls back to a pseudo-random generator, which is reported
// through Degraded and a warning, or refused when Strict is set.
type RandomSource struct {
	Device string
	Strict bool
	Log    *logrus.Logger

	degraded atomic.Bool
}

// DefaultRandomSource reads from /dev/urandom and allows the fallback.
func DefaultRandomSource() *RandomSource {
	return &RandomSource{Device: DefaultRandomDevice}
}

// Degraded reports whether any fill so far used the pseudo-random fallback.
func (r *RandomSource) Degraded() bool {
	return r.degraded.Load()
}

// Fill fills buf with len(buf) random bytes. The device must deliver the
// whole request in a single read; a short read is an error and buf is
// zeroed before returning.
func (r *RandomSource) Fill(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	device := r.Device
	if device == "" {
		device = DefaultRandomDevice
	}

	f, err := os.Open(device)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.fallback(device, buf)
		}
		return fmt.Errorf("%w: failed to open %s: %v", ErrRandomFailed, device, err)
	}

	n, err := f.Read(buf)
	if err != nil {
		f.Close()
		Wipe(buf)
		return fmt.Errorf("%w: failed to read %s: %v", ErrRandomFailed, device, err)
	}
	if n != len(buf) {
		f.Close()
		Wipe(buf)
		return fmt.Errorf("%w: short read from %s: got %d of %d bytes", ErrRandomFailed, device, n, len(buf))
	}
	if err := f.Close(); err != nil {
		Wipe(buf)
		return fmt.Errorf("%w: failed to close %s: %v", ErrRandomFailed, device, err)
	}
	return nil
}

// NewSalt returns a fresh SaltLen-byte salt.
func (r *RandomSource) NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if err := r.Fill(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func (r *RandomSource) fallback(device string, buf []byte) error {
	if r.Strict {
		return fmt.Errorf("%w: %s", ErrEntropyUnavailable, device)
	}

	if !r.degraded.Swap(true) {
		log := r.Log
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithFields(logrus.Fields{
			"device": device,
		}).Warn("Entropy device unavailable, salts fall back to a pseudo-random generator")
	}

	var word [8]byte
	for i := 0; i < len(buf); i += len(word) {
		binary.LittleEndian.PutUint64(word[:], mrand.Uint64())
		copy(buf[i:], word[:])
	}
	return nil
}
