package crypto

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"
)

const (
	HashLen = sha512.Size // 64

	// ArchiveSaltLen is the size of the vault-wide salt prefixed to the passphrase.
	ArchiveSaltLen = 8

	// Default loop counts double every 18 months starting from this date.
	loopsEpoch    = 1293840000 // 2011-01-01T00:00:00Z
	loopsDoubling = 47335428   // 18 months in seconds
	loopsAtEpoch  = 1 << 12
	maxLoopsShift = 48
	MinAutoLoops  = loopsAtEpoch
)

var ErrInvalidLoops = errors.New("invalid loop encoding")

// StretchIterations returns how many counter rounds Stretch runs for the
// given loop count and passphrase length: encloops*HashLen/(passLen+8).
// Non-positive loop counts give zero rounds. The result saturates at
// math.MaxInt64.
func StretchIterations(encloops int64, passLen int) int64 {
	if encloops <= 0 || passLen < 0 {
		return 0
	}
	d := uint64(passLen) + 8
	hi, lo := bits.Mul64(uint64(encloops), HashLen)
	if hi >= d {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, d)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// Stretch hashes LE64(j) || pass for every round j and returns the
// SHA-512 digest as the session master hash. Zero rounds are valid and
// produce the digest of the empty message.
func Stretch(pass []byte, encloops int64, requirePinned bool) (*SecureBuffer, error) {
	n := StretchIterations(encloops, len(pass))

	h := newHash()
	defer wipeHash(h)
	var counter [8]byte
	for j := int64(0); j < n; j++ {
		binary.LittleEndian.PutUint64(counter[:], uint64(j))
		h.Write(counter[:])
		h.Write(pass)
	}

	out, err := NewSecureBuffer(HashLen, requirePinned)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate master hash: %w", err)
	}
	h.Sum(out.Bytes()[:0])

	return out, nil
}

// EncodeLoops packs a loop count into the two-byte form b2<<b1, rounding
// down. It returns the encoding and the loop count it represents.
func EncodeLoops(loops int64) (b1, b2 byte, actual int64) {
	if loops <= 0 {
		return 0, 0, 0
	}
	var shift byte
	for loops > 255 {
		loops >>= 1
		shift++
	}
	return shift, byte(loops), loops << shift
}

// DecodeLoops reverses EncodeLoops.
func DecodeLoops(b1, b2 byte) (int64, error) {
	if b1 > maxLoopsShift {
		return 0, fmt.Errorf("%w: shift %d exceeds %d", ErrInvalidLoops, b1, maxLoopsShift)
	}
	return int64(b2) << b1, nil
}

// LoopsForTime returns the default stretch loop count for data written at t.
func LoopsForTime(t time.Time) int64 {
	elapsed := t.Unix() - loopsEpoch
	if elapsed <= 0 {
		return loopsAtEpoch
	}
	loops := float64(loopsAtEpoch) * math.Exp2(float64(elapsed)/loopsDoubling)
	if loops > float64(int64(255)<<maxLoopsShift) {
		loops = float64(int64(255) << maxLoopsShift)
	}
	_, _, actual := EncodeLoops(int64(loops))
	if actual < MinAutoLoops {
		return MinAutoLoops
	}
	return actual
}
