package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
	"github.com/illarion/lrzlock/internal/keyring"
)

// Passwd changes the vault passphrase and re-encrypts every record
func Passwd(ctx context.Context) {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()

	currentPassword, _, err := GetPasswordWithRetry("Enter current passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(currentPassword)

	newPassword, err := core.ReadPasswordConfirm("Enter new passphrase: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(hold(newPassword))

	if err := lrzlock.ChangePassword(ctx, currentPassword, newPassword); err != nil {
		HandleError(err)
	}

	// Refresh a cached entry, or create one if the keyring was unavailable before
	if vaultID != "" {
		if err := keyring.SavePassword(vaultID, newPassword); err == nil {
			fmt.Println("Keyring updated with new passphrase")
		}
	}

	if err := lrzlock.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("passphrase changed successfully")
}
