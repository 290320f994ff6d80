// Package git reports how a vault and the plaintext files it protects sit
// in the surrounding git repository, so that status can warn before a
// plaintext secret gets committed.
package git
