package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/illarion/lrzlock/internal/crypto"
)

// Lock encrypts and stores files in the vault
func Lock(ctx context.Context, patterns []string, remove bool) {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, source, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	if err := lrzlock.LockFiles(ctx, patterns, password); err != nil {
		HandleError(err)
	}
	if err := lrzlock.FinalizeLock(ctx, password, remove); err != nil {
		HandleError(err)
	}

	if source == SourcePrompt {
		OfferToSavePassword(vaultID, password)
	}
}

// LockAll locks all tracked files that have been modified
func LockAll(ctx context.Context, remove bool, force bool) {
	lrzlock := openVault()
	defer lrzlock.Close()

	vaultID, _ := lrzlock.GetVaultID()
	password, _, err := GetPasswordWithRetry("Enter passphrase: ", vaultID, lrzlock.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	result, err := lrzlock.GetChangedFiles(ctx, password)
	if err != nil {
		HandleError(err)
	}

	totalFiles := len(result.Changed) + len(result.Unchanged) + len(result.Missing)
	if totalFiles == 0 {
		fmt.Println("No tracked files in vault")
		fmt.Println("Run 'lrzlock lock <file>' to add files")
		return
	}

	fmt.Printf("Vault status:\n")
	fmt.Printf("  %d files total\n", totalFiles)
	if len(result.Changed) > 0 {
		fmt.Printf("  %d modified:\n", len(result.Changed))
		for _, path := range result.Changed {
			fmt.Printf("    - %s\n", path)
		}
	}
	if len(result.Unchanged) > 0 {
		fmt.Printf("  %d unchanged\n", len(result.Unchanged))
	}
	if len(result.Missing) > 0 {
		fmt.Printf("  %d missing (vault only):\n", len(result.Missing))
		for _, path := range result.Missing {
			fmt.Printf("    - %s\n", path)
		}
	}

	if len(result.Changed) == 0 {
		fmt.Println("\nNo changes to lock")
		return
	}

	if !force {
		question := fmt.Sprintf("\nLock %d modified file(s)? [Y/n]: ", len(result.Changed))
		if remove {
			question = fmt.Sprintf("\nLock %d modified file(s) and remove originals? [Y/n]: ", len(result.Changed))
		}
		fmt.Print(question)

		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))
		if response == "n" || response == "no" {
			fmt.Println("Cancelled")
			return
		}
	}

	if err := lrzlock.LockFiles(ctx, result.Changed, password); err != nil {
		HandleError(err)
	}
	if err := lrzlock.FinalizeLock(ctx, password, remove); err != nil {
		HandleError(err)
	}
}
