// Package storage provides the BBolt database interface for lrzlock.
//
// Database structure uses four buckets:
//   - config: archive salt, stretch loops, vault ID, timestamps (unencrypted)
//   - index: file paths, sizes, block counts and hashes (unencrypted, for ls/status)
//   - blocks: one encrypted record per file block, keyed path\x00index
//   - private: encrypted passphrase check and detailed file metadata
//
// The unencrypted index bucket lets ls and status work without a passphrase.
// Everything the passphrase protects lives in blocks and private.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
