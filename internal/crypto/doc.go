// Package crypto provides the block encryption subsystem for lrzlock.
//
// Every stored block is encrypted with AES-256-CBC using ciphertext stealing,
// so ciphertext is exactly as long as plaintext:
//   - 64-byte key and IV derived per block from SHA512(hash || salt || pass)
//   - 16-byte random salt per block, stored next to the ciphertext
//   - 25-byte block headers encrypted in place behind their salt
//
// The master hash comes from stretching the salted passphrase with SHA-512
// over a configurable number of loops, once per Session.
//
// Memory safety:
//   - Key, IV and scratch material lives in SecureBuffer (mlocked, zeroed on Destroy)
//   - Session secrets live in memguard locked buffers until Session.Destroy(),
//     or in unpinned SecureBuffers when memory cannot be locked and
//     Options.RequirePinned is unset
//   - SHA-512 hashers have their pending block overwritten before release;
//     the AES key schedule inside crypto/aes cannot be reached and is not wiped
//   - Use Wipe() to zero transient plaintext after use
package crypto
