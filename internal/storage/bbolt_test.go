package storage

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestDB(t *testing.T) (*Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.lrzlock")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	return db, dbPath
}

func TestOpenAndInitialize(t *testing.T) {
	db, dbPath := openTestDB(t)

	initialized, err := db.IsInitialized()
	if err != nil {
		t.Fatalf("Failed to check initialization: %v", err)
	}
	if !initialized {
		t.Error("Database should be initialized")
	}
	if db.Path() != dbPath {
		t.Errorf("Path mismatch: got %s, want %s", db.Path(), dbPath)
	}

	if _, err := db.GetModified(); err != nil {
		t.Errorf("Modified time should be set: %v", err)
	}
}

func TestSaltAndLoops(t *testing.T) {
	db, _ := openTestDB(t)

	if _, err := db.GetSalt(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before salt is set, got %v", err)
	}

	salt := []byte("8bytesal")
	if err := db.Apply(&Batch{Salt: salt, LoopsB1: 12, LoopsB2: 244}); err != nil {
		t.Fatalf("Failed to set salt: %v", err)
	}
	retrievedSalt, err := db.GetSalt()
	if err != nil {
		t.Fatalf("Failed to get salt: %v", err)
	}
	if !bytes.Equal(retrievedSalt, salt) {
		t.Errorf("Salt mismatch: got %v, want %v", retrievedSalt, salt)
	}

	if err := db.Apply(&Batch{Salt: []byte("too-long-salt")}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for bad salt length, got %v", err)
	}

	b1, b2, err := db.GetLoops()
	if err != nil {
		t.Fatalf("Failed to get loops: %v", err)
	}
	if b1 != 12 || b2 != 244 {
		t.Errorf("Loops mismatch: got %d/%d, want 12/244", b1, b2)
	}
}

func TestVaultID(t *testing.T) {
	db, _ := openTestDB(t)

	if _, err := db.GetVaultID(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing vault ID, got %v", err)
	}

	id, err := db.GetOrCreateVaultID()
	if err != nil {
		t.Fatalf("Failed to create vault ID: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Vault ID %q is not a UUID: %v", id, err)
	}

	again, err := db.GetOrCreateVaultID()
	if err != nil {
		t.Fatalf("Failed to get vault ID: %v", err)
	}
	if again != id {
		t.Errorf("Vault ID changed: got %s, want %s", again, id)
	}
}

func TestManifestOperations(t *testing.T) {
	db, _ := openTestDB(t)

	modTime := time.Now().Round(0)
	entry := ManifestEntry{Path: "test.txt", Size: 1234, ModTime: modTime, Hash: "abc123hash", Blocks: 2}
	if err := db.Apply(&Batch{Manifest: []ManifestEntry{entry}}); err != nil {
		t.Fatalf("Failed to update manifest: %v", err)
	}

	entries, err := db.GetManifest()
	if err != nil {
		t.Fatalf("Failed to get manifest: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Path != "test.txt" || entries[0].Size != 1234 || entries[0].Blocks != 2 {
		t.Errorf("Entry mismatch: got %+v", entries[0])
	}

	got, err := db.GetManifestEntry("test.txt")
	if err != nil {
		t.Fatalf("Failed to get manifest entry: %v", err)
	}
	if got == nil {
		t.Fatal("Entry should not be nil")
	}

	if err := db.Apply(&Batch{Remove: []string{"test.txt"}}); err != nil {
		t.Fatalf("Failed to remove from manifest: %v", err)
	}
	got, err = db.GetManifestEntry("test.txt")
	if err != nil {
		t.Fatalf("Failed to get manifest entry: %v", err)
	}
	if got != nil {
		t.Error("Entry should be nil after removal")
	}
}

func TestBlockStorage(t *testing.T) {
	db, _ := openTestDB(t)

	records := make([][]byte, 300)
	for i := range records {
		records[i] = []byte(fmt.Sprintf("record-%d", i))
	}
	if err := storeBlocks(db, "a", records); err != nil {
		t.Fatalf("Failed to store blocks: %v", err)
	}
	// A path sharing the prefix must not leak into "a"
	if err := storeBlocks(db, "ab", [][]byte{[]byte("other")}); err != nil {
		t.Fatalf("Failed to store blocks: %v", err)
	}

	got, err := db.GetBlocks("a")
	if err != nil {
		t.Fatalf("Failed to get blocks: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("Expected %d blocks, got %d", len(records), len(got))
	}
	for i := range records {
		if !bytes.Equal(got[i], records[i]) {
			t.Fatalf("Block %d mismatch: got %q, want %q", i, got[i], records[i])
		}
	}

	// Replacing with fewer blocks drops the old tail
	if err := storeBlocks(db, "a", records[:2]); err != nil {
		t.Fatalf("Failed to replace blocks: %v", err)
	}
	got, err = db.GetBlocks("a")
	if err != nil {
		t.Fatalf("Failed to get blocks: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 blocks after replace, got %d", len(got))
	}

	if err := db.Apply(&Batch{Remove: []string{"a"}}); err != nil {
		t.Fatalf("Failed to remove blocks: %v", err)
	}
	if _, err := db.GetBlocks("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for removed blocks, got %v", err)
	}

	other, err := db.GetBlocks("ab")
	if err != nil || len(other) != 1 {
		t.Errorf("Neighbouring path was affected: %v, %d blocks", err, len(other))
	}
}

func TestMetadataStorage(t *testing.T) {
	db, _ := openTestDB(t)

	if _, err := db.GetMetadataBytes(PrivateCheck); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	data := []byte("encrypted metadata")
	if err := db.Apply(&Batch{Private: map[string][]byte{PrivateCheck: data}}); err != nil {
		t.Fatalf("Failed to store metadata bytes: %v", err)
	}

	retrieved, err := db.GetMetadataBytes(PrivateCheck)
	if err != nil {
		t.Fatalf("Failed to get metadata: %v", err)
	}
	if !bytes.Equal(retrieved, data) {
		t.Errorf("Data mismatch: got %v, want %v", retrieved, data)
	}
}

func TestApplyBatch(t *testing.T) {
	db, _ := openTestDB(t)

	if err := db.Apply(&Batch{Salt: []byte("oldsalt!")}); err != nil {
		t.Fatalf("Failed to set salt: %v", err)
	}
	if err := storeBlocks(db, "f", [][]byte{[]byte("old0"), []byte("old1"), []byte("old2")}); err != nil {
		t.Fatalf("Failed to store blocks: %v", err)
	}

	err := db.Apply(&Batch{
		Salt:    []byte("newsalt!"),
		LoopsB1: 4,
		LoopsB2: 200,
		Blocks:  map[string][][]byte{"f": {[]byte("new0")}},
		Private: map[string][]byte{PrivateCheck: []byte("check"), PrivateFiles: []byte("files")},
	})
	if err != nil {
		t.Fatalf("Failed to apply batch: %v", err)
	}

	salt, _ := db.GetSalt()
	if string(salt) != "newsalt!" {
		t.Errorf("Salt not updated: %q", salt)
	}
	b1, b2, _ := db.GetLoops()
	if b1 != 4 || b2 != 200 {
		t.Errorf("Loops not updated: %d/%d", b1, b2)
	}
	blocks, _ := db.GetBlocks("f")
	if len(blocks) != 1 || string(blocks[0]) != "new0" {
		t.Errorf("Blocks not replaced: %q", blocks)
	}
	files, _ := db.GetMetadataBytes(PrivateFiles)
	if string(files) != "files" {
		t.Errorf("Private record not updated: %q", files)
	}

	// A rejected batch writes nothing at all
	err = db.Apply(&Batch{
		Salt:     []byte("x"),
		Manifest: []ManifestEntry{{Path: "g"}},
		Blocks:   map[string][][]byte{"f": {[]byte("bad")}},
	})
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for bad salt, got %v", err)
	}
	blocks, _ = db.GetBlocks("f")
	if len(blocks) != 1 || string(blocks[0]) != "new0" {
		t.Errorf("Rejected batch changed blocks: %q", blocks)
	}
	if entry, _ := db.GetManifestEntry("g"); entry != nil {
		t.Errorf("Rejected batch added manifest entry: %+v", entry)
	}

	// Without a salt the key material is left alone
	if err := db.Apply(&Batch{Remove: []string{"f"}}); err != nil {
		t.Fatalf("Failed to apply batch: %v", err)
	}
	salt, _ = db.GetSalt()
	b1, b2, _ = db.GetLoops()
	if string(salt) != "newsalt!" || b1 != 4 || b2 != 200 {
		t.Errorf("Key material changed by saltless batch: %q %d/%d", salt, b1, b2)
	}
	if _, err := db.GetBlocks("f"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for removed blocks, got %v", err)
	}
}

func storeBlocks(db *Storage, path string, records [][]byte) error {
	return db.Apply(&Batch{Blocks: map[string][][]byte{path: records}})
}

func TestPersistenceAndCompact(t *testing.T) {
	db, dbPath := openTestDB(t)

	if err := db.Apply(&Batch{Salt: []byte("8bytesal")}); err != nil {
		t.Fatalf("Failed to set salt: %v", err)
	}
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("file-%d", i)
		if err := storeBlocks(db, path, [][]byte{bytes.Repeat([]byte{byte(i)}, 4096)}); err != nil {
			t.Fatalf("Failed to store blocks: %v", err)
		}
	}
	for i := 1; i < 20; i++ {
		if err := db.Apply(&Batch{Remove: []string{fmt.Sprintf("file-%d", i)}}); err != nil {
			t.Fatalf("Failed to remove blocks: %v", err)
		}
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Failed to compact: %v", err)
	}
	db.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db2.Close()

	if _, err := db2.GetSalt(); err != nil {
		t.Fatalf("Failed to get salt: %v", err)
	}
	blocks, err := db2.GetBlocks("file-0")
	if err != nil {
		t.Fatalf("Failed to get blocks: %v", err)
	}
	if len(blocks) != 1 || len(blocks[0]) != 4096 {
		t.Error("Block data not persisted correctly")
	}
}
