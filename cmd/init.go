package cmd

import (
	"fmt"

	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
)

// Init creates a new vault in the current directory
func Init() {
	lrzlock := openVault()
	defer lrzlock.Close()

	password, err := GetPasswordForInit()
	if err != nil {
		HandleError(err)
	}
	defer crypto.Wipe(password)

	if err := lrzlock.Init(password); err != nil {
		HandleError(err)
	}

	fmt.Printf("Initialized %s\n", core.VaultFile)

	if vaultID, err := lrzlock.GetVaultID(); err == nil {
		OfferToSavePassword(vaultID, password)
	}
}
