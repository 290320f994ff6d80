package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	BlockSize = aes.BlockSize // 16
	KeySize   = 32            // AES-256
)

var ErrCryptoFailed = errors.New("crypto operation failed")

// Mode selects the direction of a block transform.
type Mode int

const (
	ModeEncrypt  Mode = iota
	ModeDecrypt       // plaintext will be consumed
	ModeValidate      // same transform as decrypt, output is only compared
)

func (m Mode) String() string {
	switch m {
	case ModeEncrypt:
		return "encrypt"
	case ModeDecrypt:
		return "decrypt"
	case ModeValidate:
		return "validate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// blockCipher is a ready AES-256 block with the chaining IV for one buffer.
type blockCipher struct {
	block cipher.Block
	iv    []byte
}

// newBlockCipher builds the cipher from the first KeySize bytes of key and
// the first BlockSize bytes of iv.
func newBlockCipher(key, iv []byte) (*blockCipher, error) {
	if len(key) < KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, need %d", ErrCryptoFailed, len(key), KeySize)
	}
	if len(iv) < BlockSize {
		return nil, fmt.Errorf("%w: iv is %d bytes, need %d", ErrCryptoFailed, len(iv), BlockSize)
	}

	block, err := aes.NewCipher(key[:KeySize])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create AES cipher: %v", ErrCryptoFailed, err)
	}

	return &blockCipher{block: block, iv: iv[:BlockSize]}, nil
}

// encrypt runs CBC with ciphertext stealing over buf in place.
func (c *blockCipher) encrypt(buf []byte) {
	n := len(buf) - len(buf)%BlockSize
	m := len(buf) - n
	if n == 0 {
		c.xorShort(buf)
		return
	}

	enc := cipher.NewCBCEncrypter(c.block, c.iv)
	enc.CryptBlocks(buf[:n], buf[:n])
	if m == 0 {
		return
	}

	var tmp0, tmp1 [BlockSize]byte
	defer Wipe(tmp0[:])
	defer Wipe(tmp1[:])

	// Chain the zero-padded tail from the last full ciphertext block, then
	// swap: the tail keeps that block's first m bytes and the new block
	// takes its slot.
	copy(tmp0[:], buf[n:])
	enc.CryptBlocks(tmp1[:], tmp0[:])
	copy(buf[n:], buf[n-BlockSize:n-BlockSize+m])
	copy(buf[n-BlockSize:n], tmp1[:])
}

// decrypt reverses encrypt in place.
func (c *blockCipher) decrypt(buf []byte) {
	n := len(buf) - len(buf)%BlockSize
	m := len(buf) - n
	if n == 0 {
		c.xorShort(buf)
		return
	}

	dec := cipher.NewCBCDecrypter(c.block, c.iv)
	if m == 0 {
		dec.CryptBlocks(buf, buf)
		return
	}

	var tmp0, tmp1 [BlockSize]byte
	defer Wipe(tmp0[:])
	defer Wipe(tmp1[:])

	dec.CryptBlocks(buf[:n-BlockSize], buf[:n-BlockSize])

	// The stolen block decrypts to (padded tail XOR real last block).
	c.block.Decrypt(tmp0[:], buf[n-BlockSize:n])
	copy(tmp1[:], buf[n:])
	subtle.XORBytes(tmp0[:], tmp0[:], tmp1[:])
	copy(buf[n:], tmp0[:m])

	// Rebuild the real last ciphertext block and finish the chain.
	copy(tmp1[m:], tmp0[m:])
	dec.CryptBlocks(buf[n-BlockSize:n], tmp1[:])
}

// xorShort handles buffers shorter than one block, which have no previous
// ciphertext block to steal from: they are XORed with AES(key, iv).
func (c *blockCipher) xorShort(buf []byte) {
	if len(buf) == 0 {
		return
	}
	var ks [BlockSize]byte
	defer Wipe(ks[:])

	c.block.Encrypt(ks[:], c.iv)
	subtle.XORBytes(buf, buf, ks[:len(buf)])
}

// Crypt transforms buf in place with the key and IV derived from the
// session and salt. Output length always equals input length. Key and IV
// are wiped before Crypt returns, whatever the outcome. Any failure is
// reported as ErrCryptoFailed and must be treated as fatal for the block.
func Crypt(s *Session, buf, salt []byte, mode Mode) error {
	if len(salt) != SaltLen {
		return fmt.Errorf("%w: salt is %d bytes, want %d", ErrCryptoFailed, len(salt), SaltLen)
	}

	hash, pass, err := s.secrets()
	if err != nil {
		return err
	}

	key, iv, err := DeriveKeyIV(hash, salt, pass, s.opts.RequirePinned)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCryptoFailed, err)
	}
	defer key.Destroy()
	defer iv.Destroy()

	c, err := newBlockCipher(key.Bytes(), iv.Bytes())
	if err != nil {
		return err
	}

	switch mode {
	case ModeEncrypt:
		s.log.Debug("Encrypting data")
		c.encrypt(buf)
	case ModeDecrypt:
		s.log.Debug("Decrypting data")
		c.decrypt(buf)
	case ModeValidate:
		c.decrypt(buf)
	default:
		return fmt.Errorf("%w: unknown mode %s", ErrCryptoFailed, mode)
	}

	return nil
}
