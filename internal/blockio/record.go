package blockio

import (
	"errors"
	"fmt"

	"github.com/illarion/lrzlock/internal/crypto"
)

// Overhead is the number of bytes a record adds to its payload.
const Overhead = crypto.HeadLen + crypto.SaltLen

// NoPrev marks the first block of a chain.
const NoPrev = -1

var ErrCorruptRecord = errors.New("corrupt block record")

// SealRecord encrypts payload into a new record. payload is not modified.
func SealRecord(s *crypto.Session, typ byte, payload []byte, prev int64) ([]byte, error) {
	rec := make([]byte, Overhead+len(payload))

	headSalt, err := s.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate header salt: %w", err)
	}
	copy(rec, headSalt)

	h := crypto.Header{
		Type:            typ,
		CompressedLen:   int64(len(payload)),
		UncompressedLen: int64(len(payload)),
		PrevHead:        prev,
	}
	if err := crypto.SealHeader(s, rec, h); err != nil {
		return nil, fmt.Errorf("failed to encrypt header: %w", err)
	}

	paySalt, err := s.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payload salt: %w", err)
	}
	copy(rec[crypto.HeadLen:], paySalt)

	body := rec[Overhead:]
	copy(body, payload)
	if err := s.EncryptBlock(body, rec[crypto.HeadLen:Overhead]); err != nil {
		crypto.Wipe(body)
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return rec, nil
}

// OpenRecord checks the record header against the expected type and chain
// position and returns the decrypted payload. rec is not modified.
func OpenRecord(s *crypto.Session, rec []byte, typ byte, prev int64, mode crypto.Mode) ([]byte, error) {
	h, err := ReadHeader(s, rec, mode)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, rec, typ, prev); err != nil {
		return nil, err
	}

	payload := make([]byte, len(rec)-Overhead)
	copy(payload, rec[Overhead:])
	if err := crypto.Crypt(s, payload, rec[crypto.HeadLen:Overhead], mode); err != nil {
		crypto.Wipe(payload)
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return payload, nil
}

// ReadHeader decrypts the header of rec without touching the payload.
func ReadHeader(s *crypto.Session, rec []byte, mode crypto.Mode) (crypto.Header, error) {
	if len(rec) < Overhead {
		return crypto.Header{}, fmt.Errorf("%w: %d bytes is shorter than a record header", ErrCorruptRecord, len(rec))
	}
	h, err := crypto.OpenHeader(s, rec, mode)
	if err != nil {
		return crypto.Header{}, fmt.Errorf("failed to decrypt header: %w", err)
	}
	return h, nil
}

func checkHeader(h crypto.Header, rec []byte, typ byte, prev int64) error {
	size := int64(len(rec) - Overhead)
	switch {
	case h.Type != typ:
		return fmt.Errorf("%w: block type %#x, want %#x", ErrCorruptRecord, h.Type, typ)
	case h.CompressedLen != size || h.UncompressedLen != size:
		return fmt.Errorf("%w: header lengths %d/%d do not match payload of %d bytes",
			ErrCorruptRecord, h.CompressedLen, h.UncompressedLen, size)
	case h.PrevHead != prev:
		return fmt.Errorf("%w: block chained to %d, want %d", ErrCorruptRecord, h.PrevHead, prev)
	}
	return nil
}
