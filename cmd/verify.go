package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
)

// Verify checks every sealed file against its recorded hash without
// writing anything
func Verify(ctx context.Context) {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, _, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	result, err := lrzlock.Verify(ctx, password)
	if err != nil && !errors.Is(err, core.ErrIntegrity) {
		HandleError(err)
	}

	for _, path := range result.Verified {
		fmt.Printf("ok: %s\n", path)
	}
	for _, path := range result.Unsealed {
		fmt.Printf("skipped: %s (not sealed)\n", path)
	}
	for _, failure := range result.Failed {
		fmt.Printf("FAILED: %s\n", failure)
	}

	fmt.Printf("\nverified: %d files", len(result.Verified))
	if len(result.Failed) > 0 {
		fmt.Printf(", %d failed", len(result.Failed))
	}
	fmt.Println()

	if err != nil {
		HandleError(err)
	}
}
