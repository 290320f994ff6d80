// Package blockio turns file contents into sealed block records and back.
//
// A record is laid out as
//
//	headSalt(16) | header(25, encrypted) | payloadSalt(16) | payload(encrypted)
//
// The header carries the block type, the payload length twice (compressed
// and uncompressed, equal since nothing is compressed) and the index of the
// previous block of the same file, -1 for the first one. Headers are checked
// on the way out, so a record that decrypts under the wrong passphrase or
// was moved within the chain is rejected before its payload is used.
package blockio
