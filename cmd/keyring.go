package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
	"github.com/illarion/lrzlock/internal/keyring"
)

// KeyringSave checks a typed passphrase against the vault and stores it in
// the OS keyring
func KeyringSave() {
	lrzlock := openVault()
	defer lrzlock.Close()

	password, err := core.ReadPassword("Enter passphrase: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(hold(password))

	if err := lrzlock.VerifyPassword(password); err != nil {
		HandleError(err)
	}

	vaultID, err := lrzlock.GetOrCreateVaultID()
	if err != nil {
		HandleError(err)
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		Exit(1)
	}

	fmt.Println("Passphrase saved to keyring")
}

// KeyringDelete removes the passphrase from the OS keyring
func KeyringDelete() {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, err := lrzlock.GetVaultID()
	if err != nil {
		fmt.Println("No passphrase stored in keyring")
		return
	}

	if err := keyring.DeletePassword(vaultID); err != nil {
		if !errors.Is(err, keyring.ErrNotStored) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			Exit(1)
		}
		fmt.Println("No passphrase stored in keyring")
		return
	}

	fmt.Println("Passphrase removed from keyring")
}

// KeyringStatus reports whether a passphrase is stored for this vault
func KeyringStatus() {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, err := lrzlock.GetVaultID()
	if err != nil {
		fmt.Println("Passphrase: not stored")
		return
	}

	if keyring.HasPassword(vaultID) {
		fmt.Println("Passphrase: stored in keyring")
	} else {
		fmt.Println("Passphrase: not stored")
	}
}
