package core

import (
	"crypto/subtle"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/illarion/lrzlock/internal/config"
	"github.com/illarion/lrzlock/internal/crypto"
)

// ReadPassword prompts on stderr and reads a passphrase from the terminal
// without echo.
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return password, nil
}

// ReadPasswordConfirm reads a new passphrase twice and ensures they match
func ReadPasswordConfirm(prompt string) ([]byte, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}

	second, err := ReadPassword("Confirm passphrase: ")
	if err != nil {
		crypto.Wipe(first)
		return nil, err
	}
	defer crypto.Wipe(second)

	if subtle.ConstantTimeCompare(first, second) != 1 {
		crypto.Wipe(first)
		return nil, fmt.Errorf("passphrases do not match")
	}
	if len(first) == 0 {
		return nil, ErrPasswordRequired
	}
	return first, nil
}

// GetPasswordFromEnv reads the passphrase from LRZLOCK_PASSWORD. It returns
// nil when the variable is unset or empty.
func GetPasswordFromEnv() []byte {
	password := os.Getenv(config.PasswordEnv)
	if password == "" {
		return nil
	}
	return []byte(password)
}
