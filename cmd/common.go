package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"github.com/illarion/lrzlock/internal/config"
	"github.com/illarion/lrzlock/internal/core"
	"github.com/illarion/lrzlock/internal/crypto"
	"github.com/illarion/lrzlock/internal/keyring"
)

// Verbose raises the log level to debug for the running command.
var Verbose bool

// PasswordSource tells where a passphrase came from
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

// openVault loads the configuration for the current directory and returns
// the vault rooted there. It exits on error.
func openVault() *core.LrzLock {
	cfg, err := config.Load(".")
	if err != nil {
		HandleError(err)
	}
	if Verbose {
		cfg.Verbosity = "debug"
	}

	lrzlock, err := core.New(".", cfg, cfg.Logger())
	if err != nil {
		HandleError(err)
	}
	return lrzlock
}

// held passphrases are zeroed by Exit, which skips deferred wipes.
var (
	heldMu sync.Mutex
	held   [][]byte
)

// hold registers password to be wiped by Exit and returns it.
func hold(password []byte) []byte {
	if len(password) > 0 {
		heldMu.Lock()
		held = append(held, password)
		heldMu.Unlock()
	}
	return password
}

// WipeHeld zeroes every passphrase handed out by this package. It may run
// from a signal handler.
func WipeHeld() {
	heldMu.Lock()
	defer heldMu.Unlock()
	for _, password := range held {
		crypto.Wipe(password)
	}
	held = nil
}

// Exit is os.Exit preceded by WipeHeld and a memguard purge.
func Exit(code int) {
	WipeHeld()
	memguard.SafeExit(code)
}

// GetPasswordWithRetry tries the environment, then the keyring, then the
// terminal. A keyring entry that no longer opens the vault is removed and
// the user is prompted instead.
func GetPasswordWithRetry(prompt, vaultID string, verify func([]byte) error) ([]byte, PasswordSource, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return hold(password), SourceEnv, nil
	}

	if vaultID != "" {
		password, err := keyring.GetPassword(vaultID)
		if err == nil {
			verr := verify(password)
			if verr == nil {
				return hold(password), SourceKeyring, nil
			}
			crypto.Wipe(password)
			if !errors.Is(verr, core.ErrWrongPassword) {
				return nil, SourceKeyring, verr
			}
			fmt.Fprintln(os.Stderr, "warning: stored passphrase is out of date, removing it from keyring")
			_ = keyring.DeletePassword(vaultID)
		}
	}

	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return hold(password), SourcePrompt, nil
}

// GetPasswordForInit checks the environment first, then prompts twice.
func GetPasswordForInit() ([]byte, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		return hold(password), nil
	}
	password, err := core.ReadPasswordConfirm("Enter passphrase: ")
	return hold(password), err
}

// OfferToSavePassword asks whether to cache a typed passphrase in the OS
// keyring. It does nothing when stdin is not a terminal.
func OfferToSavePassword(vaultID string, password []byte) {
	if vaultID == "" || !term.IsTerminal(int(os.Stdin.Fd())) || keyring.HasPassword(vaultID) {
		return
	}

	fmt.Print("Save passphrase to OS keyring? [y/N]: ")
	response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	response = strings.ToLower(strings.TrimSpace(response))
	if response != "y" && response != "yes" {
		return
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Println("Passphrase saved to keyring")
}

// HandleError prints a message for err and exits 1
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: lrzlock not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'lrzlock init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: %s already exists in this directory\n", core.VaultFile)
		fmt.Fprintf(os.Stderr, "Use 'lrzlock status' to see current state\n")
	case errors.Is(err, core.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong passphrase\n")
	case errors.Is(err, core.ErrPasswordRequired):
		fmt.Fprintf(os.Stderr, "Error: passphrase required (set %s or use a terminal)\n", config.PasswordEnv)
	case errors.Is(err, core.ErrNoTrackedFiles):
		fmt.Fprintf(os.Stderr, "Error: no files in vault\n")
		fmt.Fprintf(os.Stderr, "Use 'lrzlock lock <file>' to add files\n")
	case errors.Is(err, core.ErrIntegrity):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "The vault may be damaged or tampered with\n")
	case errors.Is(err, crypto.ErrRandomFailed), errors.Is(err, crypto.ErrEntropyUnavailable):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Check the random_device setting\n")
	case errors.Is(err, config.ErrInvalidConfig):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Check %s.yaml and %s_* environment variables\n", config.FileName, config.EnvPrefix)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	Exit(1)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
