package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Status describes the git state of a vault and its tracked files.
type Status struct {
	IsRepo           bool
	VaultFile        string
	VaultTracked     bool
	TrackedSecrets   []string // plaintext committed to git
	UnignoredSecrets []string // plaintext not covered by .gitignore
	IgnoredSecrets   []string
}

// Available reports whether a git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func run(ctx context.Context, workDir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	return cmd.Output()
}

// IsRepo checks if workDir is inside a git work tree.
func IsRepo(ctx context.Context, workDir string) bool {
	_, err := run(ctx, workDir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// IsTracked checks if path is in the git index.
func IsTracked(ctx context.Context, workDir, path string) bool {
	out, err := run(ctx, workDir, "ls-files", "--", path)
	return err == nil && len(strings.TrimSpace(string(out))) > 0
}

// IsIgnored checks if path matches any .gitignore rule.
func IsIgnored(ctx context.Context, workDir, path string) bool {
	_, err := run(ctx, workDir, "check-ignore", "-q", "--", path)
	return err == nil
}

// Check inspects the vault file and every tracked plaintext path.
func Check(ctx context.Context, workDir, vaultFile string, tracked []string) *Status {
	status := &Status{VaultFile: vaultFile}
	if !Available() || !IsRepo(ctx, workDir) {
		return status
	}
	status.IsRepo = true
	status.VaultTracked = IsTracked(ctx, workDir, vaultFile)

	for _, file := range tracked {
		if IsTracked(ctx, workDir, file) {
			status.TrackedSecrets = append(status.TrackedSecrets, file)
		}
		if IsIgnored(ctx, workDir, file) {
			status.IgnoredSecrets = append(status.IgnoredSecrets, file)
		} else {
			status.UnignoredSecrets = append(status.UnignoredSecrets, file)
		}
	}
	return status
}

// Format renders status for the status command. It returns "" outside a
// repository.
func Format(status *Status) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nGit:\n")
	if status.VaultTracked {
		fmt.Fprintf(&b, "   ok: %s is tracked by git\n", status.VaultFile)
	} else {
		fmt.Fprintf(&b, "   warning: %s not tracked (run: git add %s)\n", status.VaultFile, status.VaultFile)
	}

	committed := make(map[string]bool, len(status.TrackedSecrets))
	for _, file := range status.TrackedSecrets {
		committed[file] = true
		fmt.Fprintf(&b, "   error: %s is committed in plaintext (run: git rm --cached %s)\n", file, file)
	}
	for _, file := range status.UnignoredSecrets {
		if !committed[file] {
			fmt.Fprintf(&b, "   warning: %s not in .gitignore\n", file)
		}
	}
	if len(status.UnignoredSecrets) == 0 && len(status.IgnoredSecrets) > 0 {
		fmt.Fprintf(&b, "   ok: %d plaintext file(s) ignored by git\n", len(status.IgnoredSecrets))
	}
	return b.String()
}
