package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lrzlock/internal/core"
)

// Compact rewrites the vault database to reclaim unused space
func Compact(_ context.Context) {
	lrzlock := openVault()
	defer lrzlock.Close()

	info, err := os.Stat(core.VaultFile)
	if err != nil {
		HandleError(core.ErrNotInitialized)
	}
	sizeBefore := info.Size()

	if err := lrzlock.Compact(); err != nil {
		HandleError(err)
	}

	info, err = os.Stat(core.VaultFile)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(info.Size()))
}
