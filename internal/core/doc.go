// Package core provides the lrzlock vault operations.
//
// A vault is a bbolt file (.lrzlock) next to the files it protects. Each
// file is cut into blocks, and every block is stored as a record with its
// own encrypted header and per-block salts, chained to the block before
// it. The passphrase is stretched once per command into a crypto.Session.
//
// Core operations include:
//   - Init: Create a vault with a fresh archive salt and loop count
//   - LockFiles/FinalizeLock: Track and encrypt files into the vault
//   - Unlock: Decrypt and restore files with conflict resolution
//   - RemoveFiles: Remove files and their blocks from the vault
//   - ChangePassword: Re-encrypt the whole vault under a new passphrase
//   - Verify: Decrypt every block in validate mode and check content hashes
//
// Conflict resolution during unlock supports multiple strategies:
//   - Keep local version
//   - Use vault version (overwrite)
//   - Edit merged (opens $EDITOR with git-style conflict markers)
//   - Keep both (saves vault version as .from-vault)
package core
