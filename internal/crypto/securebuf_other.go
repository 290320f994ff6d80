//go:build !unix

package crypto

import "errors"

var errPinUnsupported = errors.New("memory pinning not supported on this platform")

func pin(b []byte) error {
	return errPinUnsupported
}

func unpin(b []byte) error {
	return nil
}
