// Package keyring caches vault passphrases in the OS keyring, keyed by
// vault ID.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "lrzlock"

var ErrNotStored = errors.New("no passphrase stored in keyring")

// SavePassword stores the passphrase for vaultID.
func SavePassword(vaultID string, password []byte) error {
	if vaultID == "" {
		return fmt.Errorf("cannot store passphrase without a vault ID")
	}
	return keyring.Set(serviceName, vaultID, string(password))
}

// GetPassword returns the stored passphrase for vaultID. The caller owns
// the returned slice and should wipe it.
func GetPassword(vaultID string) ([]byte, error) {
	if vaultID == "" {
		return nil, ErrNotStored
	}
	password, err := keyring.Get(serviceName, vaultID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotStored
		}
		return nil, err
	}
	return []byte(password), nil
}

// DeletePassword removes the stored passphrase for vaultID.
func DeletePassword(vaultID string) error {
	if vaultID == "" {
		return ErrNotStored
	}
	err := keyring.Delete(serviceName, vaultID)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotStored
	}
	return err
}

// HasPassword checks if a passphrase is stored for vaultID.
func HasPassword(vaultID string) bool {
	_, err := GetPassword(vaultID)
	return err == nil
}
