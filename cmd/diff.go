package cmd

import (
	"context"

	"github.com/illarion/lrzlock/internal/crypto"
)

// Diff compares vault contents with local files
func Diff(ctx context.Context) {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, _, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	if err := lrzlock.Diff(ctx, password); err != nil {
		HandleError(err)
	}
}
