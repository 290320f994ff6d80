package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/git"
)

// Status shows the current state of the vault. No passphrase is needed.
func Status(ctx context.Context) {
	if _, err := os.Stat(core.VaultFile); os.IsNotExist(err) {
		fmt.Printf("No %s file found in current directory\n", core.VaultFile)
		fmt.Println("Run 'lrzlock init' to create one")
		return
	}

	lrzlock := openVault()
	defer lrzlock.Close()

	status, err := lrzlock.Status(ctx)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Vault: %s\n", core.VaultFile)
	if status.VaultID != "" {
		fmt.Printf("   ID: %s\n", status.VaultID)
	}
	fmt.Printf("   Encryption: %s, %d hash loops\n", status.Algorithm, status.EncLoops)
	if !status.LastSealed.IsZero() {
		fmt.Printf("   Last sealed: %s\n", status.LastSealed.Format(time.RFC3339))
	}
	fmt.Printf("   %d files, %s\n", status.TrackedCount, formatSize(status.TotalSize))

	fmt.Println("\nFiles:")
	if len(status.Files) == 0 {
		fmt.Println("   (none)")
	}
	for _, file := range status.Files {
		fmt.Printf("   %s %s (%s)\n", statusIcon(file.Status), file.Path, file.Status)
	}

	if status.ModifiedCount > 0 {
		fmt.Printf("\n%d modified file(s), run 'lrzlock lock' to update the vault\n", status.ModifiedCount)
	}

	fmt.Print(git.Format(status.GitStatus))
}

func statusIcon(state string) string {
	switch state {
	case "unchanged":
		return "."
	case "vault only":
		return "*"
	case "modified":
		return "M"
	case "not sealed":
		return "+"
	default:
		return "!"
	}
}
