package crypto

import (
	"encoding/binary"
	"fmt"
)

const (
	SaltLen   = 16 // Per-block salt
	HeaderLen = 25 // type(1) + compressed(8) + uncompressed(8) + previous head(8)
	HeadLen   = SaltLen + HeaderLen
)

// Block type tags
const (
	TypeNone  byte = 3 // Raw payload
	TypeCheck byte = 0x10
	TypeMeta  byte = 0x11
)

// Header holds the four scalar fields of a block header.
type Header struct {
	Type            byte
	CompressedLen   int64
	UncompressedLen int64
	PrevHead        int64
}

// MarshalTo packs h into the first HeaderLen bytes of b, little-endian.
func (h Header) MarshalTo(b []byte) {
	_ = b[HeaderLen-1]
	b[0] = h.Type
	binary.LittleEndian.PutUint64(b[1:9], uint64(h.CompressedLen))
	binary.LittleEndian.PutUint64(b[9:17], uint64(h.UncompressedLen))
	binary.LittleEndian.PutUint64(b[17:25], uint64(h.PrevHead))
}

// UnmarshalHeader unpacks a header from the first HeaderLen bytes of b.
func UnmarshalHeader(b []byte) Header {
	_ = b[HeaderLen-1]
	return Header{
		Type:            b[0],
		CompressedLen:   int64(binary.LittleEndian.Uint64(b[1:9])),
		UncompressedLen: int64(binary.LittleEndian.Uint64(b[9:17])),
		PrevHead:        int64(binary.LittleEndian.Uint64(b[17:25])),
	}
}

// CryptHeader packs h into the HeaderLen bytes that follow the salt at the
// start of head, transforms them in place using that salt, and unpacks the
// result back into h. The same call serves both directions. If it fails, h
// is left unchanged and the packed bytes in head must not be trusted.
func CryptHeader(s *Session, head []byte, h *Header, mode Mode) error {
	if len(head) < HeadLen {
		return fmt.Errorf("%w: header buffer is %d bytes, need %d", ErrCryptoFailed, len(head), HeadLen)
	}

	salt := head[:SaltLen]
	rec := head[SaltLen:HeadLen]

	h.MarshalTo(rec)
	if err := Crypt(s, rec, salt, mode); err != nil {
		return err
	}
	*h = UnmarshalHeader(rec)
	return nil
}

// SealHeader writes h into head and encrypts it. The salt must already be
// in head[:SaltLen].
func SealHeader(s *Session, head []byte, h Header) error {
	return CryptHeader(s, head, &h, ModeEncrypt)
}

// OpenHeader decrypts the header stored in head without modifying head.
func OpenHeader(s *Session, head []byte, mode Mode) (Header, error) {
	if len(head) < HeadLen {
		return Header{}, fmt.Errorf("%w: header buffer is %d bytes, need %d", ErrCryptoFailed, len(head), HeadLen)
	}

	var buf [HeadLen]byte
	copy(buf[:], head[:HeadLen])
	h := UnmarshalHeader(buf[SaltLen:])
	if err := CryptHeader(s, buf[:], &h, mode); err != nil {
		return Header{}, err
	}
	return h, nil
}
