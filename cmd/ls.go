package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/lrzlock/internal/core"
)

// Ls shows files stored in the vault
func Ls(ctx context.Context) {
	lrzlock := openVault()
	defer lrzlock.Close()

	files, err := lrzlock.List(ctx)
	if err != nil {
		HandleError(err)
	}

	if len(files) == 0 {
		fmt.Printf("No files in %s\n", core.VaultFile)
		return
	}

	fmt.Printf("Files in %s:\n", core.VaultFile)
	for _, file := range files {
		if file.Blocks == 0 {
			fmt.Printf("  %s (%s, not sealed)\n", file.Path, formatSize(file.Size))
			continue
		}
		fmt.Printf("  %s (%s, %d blocks)\n", file.Path, formatSize(file.Size), file.Blocks)
	}
}
