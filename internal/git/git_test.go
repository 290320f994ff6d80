package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOutsideRepo(t *testing.T) {
	status := Check(context.Background(), t.TempDir(), ".lrzlock", []string{".env"})
	assert.False(t, status.IsRepo)
	assert.Equal(t, "", Format(status))
	assert.Equal(t, "", Format(nil))
}

func TestCheckRepo(t *testing.T) {
	if !Available() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	gitCmd := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	gitCmd("init", "-q")
	for name, content := range map[string]string{
		".lrzlock":   "vault",
		".gitignore": ".env\n",
		".env":       "A=1",
		"leaked.env": "B=2",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	gitCmd("add", ".lrzlock", ".gitignore", "leaked.env")

	status := Check(context.Background(), dir, ".lrzlock", []string{".env", "leaked.env"})
	require.True(t, status.IsRepo)
	assert.True(t, status.VaultTracked)
	assert.Equal(t, []string{"leaked.env"}, status.TrackedSecrets)
	assert.Equal(t, []string{".env"}, status.IgnoredSecrets)
	assert.Equal(t, []string{"leaked.env"}, status.UnignoredSecrets)

	out := Format(status)
	assert.Contains(t, out, "ok: .lrzlock is tracked")
	assert.Contains(t, out, "leaked.env is committed in plaintext")
	assert.NotContains(t, out, "warning: leaked.env")
}

func TestFormatUntrackedVault(t *testing.T) {
	out := Format(&Status{IsRepo: true, VaultFile: ".lrzlock", IgnoredSecrets: []string{".env"}})
	assert.Contains(t, out, "warning: .lrzlock not tracked")
	assert.Contains(t, out, "ok: 1 plaintext file(s) ignored")
}
