package core

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/illarion/lrzlock/internal/blockio"
	"github.com/illarion/lrzlock/internal/crypto"
	"github.com/illarion/lrzlock/internal/storage"
)

const passwordCheckString = "lrzlock-passphrase-check"

// hashContent returns the hex blake2b-256 digest recorded for file content.
func hashContent(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashMatches compares data against a recorded digest in constant time.
func hashMatches(data []byte, want string) bool {
	sum := blake2b.Sum256(data)
	expected, err := hex.DecodeString(want)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}

func checkValue() []byte {
	sum := blake2b.Sum256([]byte(passwordCheckString))
	return sum[:]
}

// newArchiveSalt draws the vault-wide salt from the configured device.
func (l *LrzLock) newArchiveSalt() ([]byte, error) {
	r := &crypto.RandomSource{
		Device: l.cfg.RandomDevice,
		Strict: l.cfg.StrictRandom,
		Log:    l.log,
	}
	salt := make([]byte, crypto.ArchiveSaltLen)
	if err := r.Fill(salt); err != nil {
		return nil, fmt.Errorf("failed to generate archive salt: %w", err)
	}
	l.warnDegraded(r, "archive salt")
	return salt, nil
}

// warnDegraded tells the user when what names was salted from the
// pseudo-random fallback rather than the entropy device.
func (l *LrzLock) warnDegraded(r *crypto.RandomSource, what string) {
	if !r.Degraded() {
		return
	}
	device := r.Device
	if device == "" {
		device = crypto.DefaultRandomDevice
	}
	l.printf("warning: %s unavailable, %s drawn from a non-cryptographic generator\n", device, what)
}

// newSession stretches password for a fresh salt and the loop count the
// configuration picks for today.
func (l *LrzLock) newSession(password []byte) (*crypto.Session, []byte, byte, byte, error) {
	salt, err := l.newArchiveSalt()
	if err != nil {
		return nil, nil, 0, 0, err
	}
	b1, b2, loops := crypto.EncodeLoops(l.cfg.Loops(time.Now()))
	s, err := crypto.NewSession(password, salt, l.cfg.CryptoOptions(loops, l.log))
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("failed to derive session: %w", err)
	}
	return s, salt, b1, b2, nil
}

// openSession stretches password with the salt and loops stored in the
// vault and verifies it against the check record.
func (l *LrzLock) openSession(password []byte) (*crypto.Session, error) {
	if l.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}

	salt, err := l.db.GetSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to get salt: %w", err)
	}
	b1, b2, err := l.db.GetLoops()
	if err != nil {
		return nil, fmt.Errorf("failed to get loops: %w", err)
	}
	loops, err := crypto.DecodeLoops(b1, b2)
	if err != nil {
		return nil, fmt.Errorf("failed to decode loops: %w", err)
	}

	s, err := crypto.NewSession(password, salt, l.cfg.CryptoOptions(loops, l.log))
	if err != nil {
		return nil, fmt.Errorf("failed to derive session: %w", err)
	}
	if err := l.verifyCheck(s); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func sealCheck(s *crypto.Session) ([]byte, error) {
	rec, err := blockio.SealRecord(s, crypto.TypeCheck, checkValue(), blockio.NoPrev)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt check record: %w", err)
	}
	return rec, nil
}

func (l *LrzLock) verifyCheck(s *crypto.Session) error {
	rec, err := l.db.GetMetadataBytes(storage.PrivateCheck)
	if err != nil {
		return ErrWrongPassword
	}

	got, err := blockio.OpenRecord(s, rec, crypto.TypeCheck, blockio.NoPrev, crypto.ModeValidate)
	if err != nil {
		if errors.Is(err, blockio.ErrCorruptRecord) {
			return ErrWrongPassword
		}
		return err
	}
	defer crypto.Wipe(got)

	if subtle.ConstantTimeCompare(got, checkValue()) != 1 {
		return ErrWrongPassword
	}
	return nil
}

func sealMetadata(s *crypto.Session, metadata *storage.Metadata) ([]byte, error) {
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	defer crypto.Wipe(data)

	rec, err := blockio.SealRecord(s, crypto.TypeMeta, data, blockio.NoPrev)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt metadata: %w", err)
	}
	return rec, nil
}

// readMetadata opens a session for password and decrypts the file list.
// The caller must Destroy the returned session.
func (l *LrzLock) readMetadata(password []byte) (*storage.Metadata, *crypto.Session, error) {
	s, err := l.openSession(password)
	if err != nil {
		return nil, nil, err
	}

	rec, err := l.db.GetMetadataBytes(storage.PrivateFiles)
	if err != nil {
		s.Destroy()
		return nil, nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	data, err := blockio.OpenRecord(s, rec, crypto.TypeMeta, blockio.NoPrev, crypto.ModeDecrypt)
	if err != nil {
		s.Destroy()
		return nil, nil, fmt.Errorf("failed to decrypt metadata: %w", err)
	}
	defer crypto.Wipe(data)

	var metadata storage.Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		s.Destroy()
		return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.BlockSize <= 0 {
		metadata.BlockSize = l.cfg.BlockSize
	}

	return &metadata, s, nil
}

// commit seals the file list into b and writes the batch in one
// transaction, so blocks, index and file list always change together.
func (l *LrzLock) commit(b *storage.Batch, metadata *storage.Metadata, s *crypto.Session) error {
	if l.db == nil {
		return fmt.Errorf("database not open")
	}

	metadata.Modified = time.Now()
	rec, err := sealMetadata(s, metadata)
	if err != nil {
		return err
	}
	if b.Private == nil {
		b.Private = make(map[string][]byte, 1)
	}
	b.Private[storage.PrivateFiles] = rec

	if err := l.db.Apply(b); err != nil {
		return fmt.Errorf("failed to store vault changes: %w", err)
	}
	l.warnDegraded(s.Random(), "block salts")
	return nil
}

// sealFile cuts data into blocks and encrypts them as one chain.
func (l *LrzLock) sealFile(ctx context.Context, s *crypto.Session, data []byte, blockSize int) ([][]byte, error) {
	return blockio.EncryptBlocks(ctx, s, crypto.TypeNone, blockio.Split(data, blockSize), l.cfg.Workers)
}

// openFile reads and decrypts the block chain of path. In ModeValidate the
// plaintext is only meant for comparison.
func (l *LrzLock) openFile(ctx context.Context, s *crypto.Session, path string, mode crypto.Mode) ([]byte, error) {
	records, err := l.db.GetBlocks(path)
	if err != nil {
		return nil, err
	}
	return blockio.DecryptBlocks(ctx, s, crypto.TypeNone, records, mode, l.cfg.Workers)
}
