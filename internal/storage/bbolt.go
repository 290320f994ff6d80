package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // Archive salt, loops, timestamps - unencrypted
	IndexBucket   = []byte("index")   // Public file list for ls/status - unencrypted
	BlocksBucket  = []byte("blocks")  // Encrypted block records
	PrivateBucket = []byte("private") // Encrypted check record + file details
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigLoops    = []byte("loops")
	ConfigVaultID  = []byte("vault_id")
)

// Private record keys
const (
	PrivateCheck = "check"
	PrivateFiles = "files"
)

const (
	FormatVersion = "1"
	SaltLen       = 8
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidValue = errors.New("invalid stored value")
)

// Storage provides BBolt-based storage for lrzlock
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a vault database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new vault
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, IndexBucket, BlocksBucket, PrivateBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// GetSalt retrieves the archive salt
func (s *Storage) GetSalt() ([]byte, error) {
	salt, err := s.get(ConfigBucket, ConfigSalt)
	if err != nil {
		return nil, fmt.Errorf("salt %w", err)
	}
	if len(salt) != SaltLen {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrInvalidValue, len(salt), SaltLen)
	}
	return salt, nil
}

// GetLoops retrieves the two-byte stretch loop encoding
func (s *Storage) GetLoops() (b1, b2 byte, err error) {
	loops, err := s.get(ConfigBucket, ConfigLoops)
	if err != nil {
		return 0, 0, fmt.Errorf("loops %w", err)
	}
	if len(loops) != 2 {
		return 0, 0, fmt.Errorf("%w: loops is %d bytes, want 2", ErrInvalidValue, len(loops))
	}
	return loops[0], loops[1], nil
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	data, err := s.get(ConfigBucket, ConfigModified)
	if err != nil {
		return modified, fmt.Errorf("modified time %w", err)
	}
	return modified, modified.UnmarshalBinary(data)
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	data, err := s.get(ConfigBucket, ConfigVaultID)
	if err != nil {
		return "", fmt.Errorf("vault_id %w", err)
	}
	return string(data), nil
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *Storage) GetOrCreateVaultID() (string, error) {
	vaultID, err := s.GetVaultID()
	if err == nil {
		return vaultID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	vaultID = uuid.NewString()
	if err := s.put(ConfigBucket, ConfigVaultID, []byte(vaultID)); err != nil {
		return "", fmt.Errorf("failed to store vault ID: %w", err)
	}
	return vaultID, nil
}

// ManifestEntry represents a file in the manifest
type ManifestEntry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	Hash    string    `json:"hash"` // Content hash for change detection
	Blocks  int       `json:"blocks"`
}

// GetManifest returns all entries in the manifest
func (s *Storage) GetManifest() ([]ManifestEntry, error) {
	var entries []ManifestEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		manifest := tx.Bucket(IndexBucket)
		if manifest == nil {
			return fmt.Errorf("index bucket %w", ErrNotFound)
		}
		return manifest.ForEach(func(k, v []byte) error {
			var entry ManifestEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// GetManifestEntry returns a single manifest entry, or nil if path is not tracked
func (s *Storage) GetManifestEntry(path string) (*ManifestEntry, error) {
	var entry *ManifestEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		manifest := tx.Bucket(IndexBucket)
		if manifest == nil {
			return fmt.Errorf("index bucket %w", ErrNotFound)
		}
		data := manifest.Get([]byte(path))
		if data == nil {
			return nil
		}
		entry = &ManifestEntry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// blockKey returns path\x00BE64(index). Big-endian keeps a file's blocks
// adjacent and in order under bbolt's byte-wise key ordering.
func blockKey(path string, index int) []byte {
	key := make([]byte, len(path)+1+8)
	copy(key, path)
	binary.BigEndian.PutUint64(key[len(path)+1:], uint64(index))
	return key
}

func blockPrefix(path string) []byte {
	return append([]byte(path), 0)
}

func putBlocks(blocks *bolt.Bucket, path string, records [][]byte) error {
	if err := deleteBlocks(blocks, path); err != nil {
		return err
	}
	for i, rec := range records {
		if err := blocks.Put(blockKey(path, i), rec); err != nil {
			return fmt.Errorf("failed to store block %d of %s: %w", i, path, err)
		}
	}
	return nil
}

func deleteBlocks(blocks *bolt.Bucket, path string) error {
	prefix := blockPrefix(path)
	c := blocks.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// GetBlocks retrieves the block records of path in chain order
func (s *Storage) GetBlocks(path string) ([][]byte, error) {
	var records [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(BlocksBucket)
		if blocks == nil {
			return fmt.Errorf("blocks bucket %w", ErrNotFound)
		}
		prefix := blockPrefix(path)
		c := blocks.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if len(k) != len(prefix)+8 {
				continue
			}
			if idx := binary.BigEndian.Uint64(k[len(prefix):]); idx != uint64(len(records)) {
				return fmt.Errorf("%w: block %d of %s missing", ErrInvalidValue, len(records), path)
			}
			// Make a copy since the slice is only valid during the transaction
			records = append(records, append([]byte(nil), v...))
		}
		if len(records) == 0 {
			return fmt.Errorf("blocks of %s %w", path, ErrNotFound)
		}
		return nil
	})
	return records, err
}

// GetMetadataBytes retrieves encrypted metadata bytes
func (s *Storage) GetMetadataBytes(key string) ([]byte, error) {
	data, err := s.get(PrivateBucket, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("metadata %s %w", key, err)
	}
	return data, nil
}

// Batch is a set of vault changes written in one transaction. Salt and
// loops are replaced only when Salt is set. Removals run before writes.
type Batch struct {
	Salt     []byte
	LoopsB1  byte
	LoopsB2  byte
	Remove   []string // dropped from the index together with their blocks
	Manifest []ManifestEntry
	Blocks   map[string][][]byte // replaces every block of a path
	Private  map[string][]byte
}

// Apply writes b in a single transaction, so an error or crash leaves the
// vault as it was. A passphrase change therefore never leaves records
// under two passphrases, and new blocks never pair with an old file list.
func (s *Storage) Apply(b *Batch) error {
	if b.Salt != nil && len(b.Salt) != SaltLen {
		return fmt.Errorf("%w: salt is %d bytes, want %d", ErrInvalidValue, len(b.Salt), SaltLen)
	}

	manifest := make([][]byte, len(b.Manifest))
	for i, entry := range b.Manifest {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest entry %s: %w", entry.Path, err)
		}
		manifest[i] = data
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if b.Salt != nil {
			if err := config.Put(ConfigSalt, b.Salt); err != nil {
				return err
			}
			if err := config.Put(ConfigLoops, []byte{b.LoopsB1, b.LoopsB2}); err != nil {
				return err
			}
		}

		index := tx.Bucket(IndexBucket)
		blocks := tx.Bucket(BlocksBucket)
		for _, path := range b.Remove {
			if err := index.Delete([]byte(path)); err != nil {
				return err
			}
			if err := deleteBlocks(blocks, path); err != nil {
				return err
			}
		}
		for i, entry := range b.Manifest {
			if err := index.Put([]byte(entry.Path), manifest[i]); err != nil {
				return err
			}
		}
		for path, records := range b.Blocks {
			if err := putBlocks(blocks, path, records); err != nil {
				return err
			}
		}

		private := tx.Bucket(PrivateBucket)
		for key, data := range b.Private {
			if err := private.Put([]byte(key), data); err != nil {
				return err
			}
		}

		modified, _ := time.Now().MarshalBinary()
		return config.Put(ConfigModified, modified)
	})
}

func (s *Storage) put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s bucket %w", bucket, ErrNotFound)
		}
		return b.Put(key, value)
	})
}

func (s *Storage) get(bucket, key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s bucket %w", bucket, ErrNotFound)
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting files to reclaim disk space.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
