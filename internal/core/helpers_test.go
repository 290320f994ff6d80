package core

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/illarion/lrzlock/internal/config"
	"github.com/illarion/lrzlock/internal/storage"
)

var testPassword = []byte("test123")

// newTestVault returns an initialized vault in a temp dir, with stretching
// kept cheap and blocks small enough that multi-block files stay tiny.
func newTestVault(t *testing.T) (*LrzLock, string) {
	t.Helper()
	l, dir := newTestLrzLock(t)
	if err := l.Init(testPassword); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return l, dir
}

func newTestLrzLock(t *testing.T) (*LrzLock, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.EncLoops = 256
	cfg.BlockSize = config.MinBlockSize
	cfg.Workers = 2

	log := logrus.New()
	log.SetOutput(io.Discard)

	l, err := New(dir, cfg, log)
	if err != nil {
		t.Fatalf("Failed to create LrzLock: %v", err)
	}
	l.SetOutput(io.Discard)
	t.Cleanup(func() { l.Close() })
	return l, dir
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	return path
}

func readFile(t *testing.T, dir, name string) []byte {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return content
}

// lock tracks and seals files in one go, like the lock command.
func lock(t *testing.T, l *LrzLock, remove bool, files ...string) {
	t.Helper()
	ctx := context.Background()
	if err := l.LockFiles(ctx, files, testPassword); err != nil {
		t.Fatalf("LockFiles failed: %v", err)
	}
	if err := l.FinalizeLock(ctx, testPassword, remove); err != nil {
		t.Fatalf("FinalizeLock failed: %v", err)
	}
}

// withStorage opens the vault database directly to inspect or tamper with
// records.
func withStorage(t *testing.T, l *LrzLock, fn func(db *storage.Storage)) {
	t.Helper()
	db, err := storage.Open(l.Path())
	if err != nil {
		t.Fatalf("Failed to open vault: %v", err)
	}
	defer db.Close()
	fn(db)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func captureOutput(l *LrzLock) *bytes.Buffer {
	var buf bytes.Buffer
	l.SetOutput(&buf)
	return &buf
}
