//go:build unix

package crypto

import "golang.org/x/sys/unix"

func pin(b []byte) error {
	return unix.Mlock(b)
}

func unpin(b []byte) error {
	return unix.Munlock(b)
}
