package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
)

// Unlock extracts files from the vault with smart conflict resolution
func Unlock(ctx context.Context, patterns []string, force bool, keepLocal bool, keepBoth bool) {
	strategy, err := core.ParseStrategy(force, keepLocal, keepBoth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		Exit(1)
	}

	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, source, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	result, err := lrzlock.Unlock(ctx, password, strategy, patterns)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("\n")
	if len(result.Extracted) > 0 {
		fmt.Printf("unlocked: %d files\n", len(result.Extracted))
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("skipped: %d files\n", len(result.Skipped))
	}
	if len(result.Errors) > 0 {
		fmt.Printf("error: %d errors occurred\n", len(result.Errors))
	}

	if source == SourcePrompt {
		if vaultID, err := lrzlock.GetOrCreateVaultID(); err == nil {
			OfferToSavePassword(vaultID, password)
		}
	}

	if len(result.Errors) > 0 {
		Exit(1)
	}
}
