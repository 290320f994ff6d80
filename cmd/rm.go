package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lrzlock/internal/crypto"
)

// Remove removes files from the vault
func Remove(ctx context.Context, patterns []string) {
	if len(patterns) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one file argument\n")
		fmt.Fprintf(os.Stderr, "Usage: lrzlock rm <file> [file...]\n")
		Exit(1)
	}

	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, _, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	if err := lrzlock.RemoveFiles(ctx, patterns, password); err != nil {
		HandleError(err)
	}

	if err := lrzlock.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}
}
