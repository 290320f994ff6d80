package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/illarion/lrzlock/internal/config"
	"github.com/illarion/lrzlock/internal/crypto"
	"github.com/illarion/lrzlock/internal/git"
	"github.com/illarion/lrzlock/internal/security"
	"github.com/illarion/lrzlock/internal/storage"
)

const (
	VaultFile      = ".lrzlock"
	DirPermSecure  = 0700 // Directory: owner rwx only
	FilePermSecure = 0600 // File: owner rw only
	MaxVaultCopies = 100  // Max numbered .from-vault.N backups
	Algorithm      = "AES-256-CBC-CTS"
)

var (
	ErrNotInitialized   = errors.New("lrzlock not initialized")
	ErrAlreadyExists    = errors.New("lrzlock vault already exists")
	ErrWrongPassword    = errors.New("wrong passphrase")
	ErrPasswordRequired = errors.New("passphrase required")
	ErrNoTrackedFiles   = errors.New("no files in vault")
	ErrIntegrity        = errors.New("vault integrity check failed")
)

// LrzLock manages an encrypted vault of files under one directory
type LrzLock struct {
	path      string
	cfg       *config.Config
	log       *logrus.Logger
	out       io.Writer
	db        *storage.Storage
	validator *security.PathValidator
}

// New creates an LrzLock for the vault in dir. A nil cfg means defaults and
// a nil log means a logger built from cfg.
func New(dir string, cfg *config.Config, log *logrus.Logger) (*LrzLock, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = cfg.Logger()
	}

	validator, err := security.New(dir, VaultFile, VaultFile+".compact", VaultFile+".backup")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}

	return &LrzLock{
		path:      filepath.Join(validator.Root(), VaultFile),
		cfg:       cfg,
		log:       log,
		out:       os.Stdout,
		validator: validator,
	}, nil
}

// SetOutput redirects progress messages, stdout by default.
func (l *LrzLock) SetOutput(w io.Writer) {
	l.out = w
}

// Path returns the vault file path.
func (l *LrzLock) Path() string {
	return l.path
}

// Close releases resources held by the LrzLock instance
func (l *LrzLock) Close() error {
	if l.validator != nil {
		return l.validator.Close()
	}
	return nil
}

func (l *LrzLock) printf(format string, args ...any) {
	fmt.Fprintf(l.out, format, args...)
}

// open opens an existing vault for one operation. The returned func closes
// it again.
func (l *LrzLock) open() (func(), error) {
	if _, err := os.Stat(l.path); err != nil {
		return nil, ErrNotInitialized
	}
	db, err := storage.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if ok, err := db.IsInitialized(); err != nil || !ok {
		db.Close()
		return nil, ErrNotInitialized
	}

	l.db = db
	return func() {
		db.Close()
		l.db = nil
	}, nil
}

// secureFileMode masks a file mode to preserve execute for owner only, removes group/other.
// Returns FilePermSecure (0600) if the result would be zero.
func secureFileMode(mode uint32) os.FileMode {
	secure := os.FileMode(mode) & 0700
	if secure == 0 {
		return FilePermSecure
	}
	return secure
}

// expand resolves patterns against the repository root. A pattern that
// matches nothing is kept as a literal path.
func (l *LrzLock) expand(patterns []string) ([]string, error) {
	root := l.validator.Root()
	var files []string
	for _, pattern := range patterns {
		absPattern := pattern
		if !filepath.IsAbs(pattern) {
			absPattern = filepath.Join(root, pattern)
		}

		matches, err := filepath.Glob(absPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{absPattern}
		}
		files = append(files, matches...)
	}
	return files, nil
}

// storedPath maps a file named on the command line to its vault key.
func (l *LrzLock) storedPath(file string) (string, error) {
	rel, err := l.validator.Relative(file)
	if err != nil {
		return "", err
	}
	return l.validator.ValidateAndNormalize(rel)
}

// lockSingleFile validates one file and records it in metadata and batch.
// Prints warnings for skipped files, returns error only for fatal failures.
func (l *LrzLock) lockSingleFile(file string, metadata *storage.Metadata, batch *storage.Batch) error {
	validPath, err := l.storedPath(file)
	if err != nil {
		l.printf("error: invalid path %s: %v\n", file, err)
		return nil
	}

	info, err := l.validator.StatInRoot(validPath)
	if err != nil {
		l.printf("warning: cannot access %s: %v\n", validPath, err)
		return nil
	}
	if info.IsDir() {
		l.printf("warning: skipping directory %s\n", validPath)
		return nil
	}

	// A sealed entry keeps the hash of its stored blocks until FinalizeLock
	// replaces both.
	if existing := metadata.FindFile(validPath); existing != nil && existing.Sealed() {
		l.printf("locking: %s\n", validPath)
		return nil
	}

	content, err := l.validator.ReadFileInRoot(validPath)
	if err != nil {
		l.printf("warning: cannot read %s: %v\n", validPath, err)
		return nil
	}
	hash := hashContent(content)
	crypto.Wipe(content)

	metadata.AddFile(storage.FileEntry{
		Path:    validPath,
		Size:    info.Size(),
		Mode:    uint32(info.Mode()),
		ModTime: info.ModTime(),
		Hash:    hash,
	})
	batch.Manifest = append(batch.Manifest, storage.ManifestEntry{
		Path:    validPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hash,
	})

	l.printf("locking: %s\n", validPath)
	return nil
}

// Init creates a new vault: archive salt, loop count, vault ID, check
// record and an empty file list.
func (l *LrzLock) Init(password []byte) (err error) {
	if _, err := os.Stat(l.path); err == nil {
		return ErrAlreadyExists
	}
	if len(password) == 0 {
		return ErrPasswordRequired
	}

	s, salt, b1, b2, err := l.newSession(password)
	if err != nil {
		return err
	}
	defer s.Destroy()

	db, err := storage.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	l.db = db
	defer func() {
		db.Close()
		l.db = nil
		if err != nil {
			os.Remove(l.path)
		}
	}()

	if err := db.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	vaultID, err := db.GetOrCreateVaultID()
	if err != nil {
		return err
	}

	check, err := sealCheck(s)
	if err != nil {
		return err
	}
	batch := &storage.Batch{
		Salt:    salt,
		LoopsB1: b1,
		LoopsB2: b2,
		Private: map[string][]byte{storage.PrivateCheck: check},
	}
	if err := l.commit(batch, storage.NewMetadata(l.cfg.BlockSize), s); err != nil {
		return err
	}

	l.log.WithFields(logrus.Fields{
		"vault":    vaultID,
		"encloops": s.EncLoops(),
	}).Debug("Vault created")
	return nil
}

// LockFiles adds files to the tracking list using the CLI "lock" terminology.
func (l *LrzLock) LockFiles(ctx context.Context, patterns []string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return err
	}
	defer s.Destroy()

	files, err := l.expand(patterns)
	if err != nil {
		return err
	}
	batch := &storage.Batch{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.lockSingleFile(file, metadata, batch); err != nil {
			return err
		}
	}

	return l.commit(batch, metadata, s)
}

// FinalizeLock encrypts every tracked file into its block chain. Blocks,
// index and file list are stored in one transaction once every file has
// been encrypted.
func (l *LrzLock) FinalizeLock(ctx context.Context, password []byte, remove bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return err
	}
	defer s.Destroy()

	if len(metadata.Files) == 0 {
		return ErrNoTrackedFiles
	}

	type pendingFile struct {
		index   int
		path    string
		records [][]byte
		hash    string
		size    int64
		mode    uint32
		modTime time.Time
	}

	var pending []pendingFile
	for i := range metadata.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		file := &metadata.Files[i]
		info, err := l.validator.StatInRoot(file.Path)
		if err != nil {
			l.printf("warning: cannot stat %s: %v\n", file.Path, err)
			continue
		}
		data, err := l.validator.ReadFileInRoot(file.Path)
		if err != nil {
			l.printf("warning: cannot read %s: %v\n", file.Path, err)
			continue
		}

		hash := hashContent(data)
		records, err := l.sealFile(ctx, s, data, metadata.BlockSize)
		crypto.Wipe(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", file.Path, err)
		}

		pending = append(pending, pendingFile{
			index:   i,
			path:    file.Path,
			records: records,
			hash:    hash,
			size:    info.Size(),
			mode:    uint32(info.Mode()),
			modTime: info.ModTime(),
		})
	}

	if len(pending) == 0 {
		return fmt.Errorf("no files could be processed")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	batch := &storage.Batch{
		Blocks:   make(map[string][][]byte, len(pending)),
		Manifest: make([]storage.ManifestEntry, 0, len(pending)),
	}
	for _, p := range pending {
		batch.Blocks[p.path] = p.records
		batch.Manifest = append(batch.Manifest, storage.ManifestEntry{
			Path:    p.path,
			Size:    p.size,
			ModTime: p.modTime,
			Hash:    p.hash,
			Blocks:  len(p.records),
		})

		file := &metadata.Files[p.index]
		file.Hash = p.hash
		file.Size = p.size
		file.Mode = p.mode
		file.ModTime = p.modTime
		file.Blocks = len(p.records)
	}

	if err := l.commit(batch, metadata, s); err != nil {
		return err
	}

	processed := make([]string, 0, len(pending))
	for _, p := range pending {
		processed = append(processed, p.path)
		l.log.WithField("blocks", len(p.records)).Debugf("Sealed %s", p.path)
		l.printf("encrypted: %s\n", p.path)
	}

	if remove {
		for _, path := range processed {
			if err := l.validator.RemoveInRoot(path); err != nil {
				l.printf("warning: cannot remove %s: %v\n", path, err)
			} else {
				l.printf("removed: %s\n", path)
			}
		}
	}

	l.printf("locked: %d files into %s\n", len(processed), VaultFile)
	return nil
}

// Unlock extracts files with smart conflict resolution (implements `lrzlock unlock`).
// If patterns is non-empty, only files matching the patterns are unlocked.
func (l *LrzLock) Unlock(ctx context.Context, password []byte, strategy MergeStrategy, patterns []string) (*UnlockResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := l.open()
	if err != nil {
		return nil, err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return nil, err
	}
	defer s.Destroy()

	result := &UnlockResult{
		Extracted: []string{},
		Skipped:   []string{},
		Errors:    []string{},
	}

	files := metadata.Files
	if len(patterns) > 0 {
		files = filterFilesByPatterns(metadata.Files, patterns)
		if len(files) == 0 {
			return nil, fmt.Errorf("no files match the specified patterns")
		}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.unlockFile(ctx, s, file, strategy, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
			l.printf("error: %s\n", err)
		}
	}

	return result, nil
}

func (l *LrzLock) unlockFile(ctx context.Context, s *crypto.Session, file storage.FileEntry, strategy MergeStrategy, result *UnlockResult) error {
	if !file.Sealed() {
		return fmt.Errorf("%s: not sealed in vault", file.Path)
	}

	// Paths read back from the vault may have been tampered with
	validPath, err := l.validator.ValidateExistingPath(file.Path)
	if err != nil {
		return fmt.Errorf("%s: invalid path from vault: %v", file.Path, err)
	}

	vaultData, err := l.openFile(ctx, s, file.Path, crypto.ModeDecrypt)
	if err != nil {
		return fmt.Errorf("%s: cannot decrypt: %v", file.Path, err)
	}
	defer func() { crypto.Wipe(vaultData) }()

	if !hashMatches(vaultData, file.Hash) {
		return fmt.Errorf("%s: failed integrity check", file.Path)
	}

	localData, err := l.validator.ReadFileInRoot(validPath)
	if err == nil {
		defer crypto.Wipe(localData)

		if CompareFiles(localData, vaultData) {
			result.Skipped = append(result.Skipped, validPath)
			l.printf("skipped: %s (unchanged)\n", validPath)
			return nil
		}

		resolved, err := HandleConflict(validPath, localData, vaultData, strategy)
		if err != nil {
			return err
		}

		switch resolved.Resolution {
		case ResolutionKeepLocal:
			result.Skipped = append(result.Skipped, validPath)
			l.printf("skipped: %s (kept local version)\n", validPath)
			return nil
		case ResolutionSkip:
			result.Skipped = append(result.Skipped, validPath)
			l.printf("skipped: %s\n", validPath)
			return nil
		case ResolutionEditMerged:
			crypto.Wipe(vaultData)
			vaultData = resolved.MergedData
		case ResolutionKeepBoth:
			return l.keepBoth(validPath, vaultData, file.Mode, result)
		case ResolutionUseVault:
		}
	}

	if err := l.writeFile(validPath, vaultData, file.Mode); err != nil {
		return err
	}
	root := l.validator.Root()
	_ = os.Chtimes(filepath.Join(root, filepath.FromSlash(validPath)), time.Now(), file.ModTime)

	result.Extracted = append(result.Extracted, validPath)
	l.printf("unlocked: %s\n", validPath)
	return nil
}

func (l *LrzLock) writeFile(path string, data []byte, mode uint32) error {
	if dir := filepath.Dir(filepath.FromSlash(path)); dir != "." && dir != string(filepath.Separator) {
		if err := l.validator.MkdirAllInRoot(filepath.ToSlash(dir), DirPermSecure); err != nil {
			return fmt.Errorf("%s: cannot create directory: %v", path, err)
		}
	}
	if err := l.validator.WriteFileInRoot(path, data, secureFileMode(mode)); err != nil {
		return fmt.Errorf("%s: cannot write file: %v", path, err)
	}
	return nil
}

// keepBoth saves the vault version next to the local file as .from-vault,
// or .from-vault.N when that name is taken.
func (l *LrzLock) keepBoth(validPath string, vaultData []byte, mode uint32, result *UnlockResult) error {
	vaultPath := validPath + ".from-vault"
	if _, err := l.validator.StatInRoot(vaultPath); err == nil {
		found := false
		for i := 1; i < MaxVaultCopies; i++ {
			vaultPath = fmt.Sprintf("%s.from-vault.%d", validPath, i)
			if _, err := l.validator.StatInRoot(vaultPath); errors.Is(err, fs.ErrNotExist) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: too many backup copies (max %d)", validPath, MaxVaultCopies)
		}
	}

	if _, err := l.validator.ValidateAndNormalize(vaultPath); err != nil {
		return fmt.Errorf("%s: invalid vault copy path: %v", vaultPath, err)
	}
	if err := l.writeFile(vaultPath, vaultData, mode); err != nil {
		return err
	}

	result.Extracted = append(result.Extracted, vaultPath)
	l.printf("saved: %s (vault version)\n", vaultPath)
	result.Skipped = append(result.Skipped, validPath)
	l.printf("skipped: %s (kept local version)\n", validPath)
	return nil
}

// filterFilesByPatterns filters files by patterns (exact match or glob)
func filterFilesByPatterns(files []storage.FileEntry, patterns []string) []storage.FileEntry {
	var result []storage.FileEntry
	for _, file := range files {
		for _, pattern := range patterns {
			normalized := filepath.ToSlash(pattern)
			if file.Path == normalized {
				result = append(result, file)
				break
			}
			if matched, _ := filepath.Match(normalized, file.Path); matched {
				result = append(result, file)
				break
			}
		}
	}
	return result
}

// RemoveFiles removes files and their block records from the vault
// (implements `lrzlock rm`).
func (l *LrzLock) RemoveFiles(ctx context.Context, patterns []string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return err
	}
	defer s.Destroy()

	files, err := l.expand(patterns)
	if err != nil {
		return err
	}

	batch := &storage.Batch{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := l.storedPath(file)
		if err != nil {
			l.printf("warning: invalid path %s: %v\n", file, err)
			continue
		}
		if !metadata.RemoveFile(path) {
			continue
		}
		batch.Remove = append(batch.Remove, path)
	}

	if len(batch.Remove) == 0 {
		l.printf("No matching files found in vault\n")
		return nil
	}

	if err := l.commit(batch, metadata, s); err != nil {
		return err
	}
	for _, path := range batch.Remove {
		l.printf("removed: %s from vault\n", path)
	}
	return nil
}

// List returns tracked files from the manifest (no passphrase required)
func (l *LrzLock) List(ctx context.Context) ([]storage.FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := l.open()
	if err != nil {
		return nil, err
	}
	defer done()

	entries, err := l.db.GetManifest()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	files := make([]storage.FileEntry, 0, len(entries))
	for _, e := range entries {
		validPath, err := l.validator.ValidateExistingPath(e.Path)
		if err != nil {
			l.log.WithError(err).Warnf("Ignoring manifest entry %q", e.Path)
			continue
		}
		files = append(files, storage.FileEntry{
			Path:    validPath,
			Size:    e.Size,
			ModTime: e.ModTime,
			Hash:    e.Hash,
			Blocks:  e.Blocks,
		})
	}
	return files, nil
}

// ChangePassword re-encrypts every record under a new archive salt and
// passphrase. The vault is rewritten in one transaction.
func (l *LrzLock) ChangePassword(ctx context.Context, currentPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return ErrPasswordRequired
	}

	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	metadata, current, err := l.readMetadata(currentPassword)
	if err != nil {
		return err
	}
	defer current.Destroy()

	plain := make(map[string][]byte, len(metadata.Files))
	defer func() {
		for _, data := range plain {
			crypto.Wipe(data)
		}
	}()

	for _, entry := range metadata.Files {
		if !entry.Sealed() {
			continue
		}
		data, err := l.openFile(ctx, current, entry.Path, crypto.ModeDecrypt)
		if err != nil {
			return fmt.Errorf("failed to decrypt file %s: %w", entry.Path, err)
		}
		plain[entry.Path] = data
		if !hashMatches(data, entry.Hash) {
			return fmt.Errorf("%w: %s", ErrIntegrity, entry.Path)
		}
	}

	next, salt, b1, b2, err := l.newSession(newPassword)
	if err != nil {
		return err
	}
	defer next.Destroy()

	batch := &storage.Batch{
		Salt:    salt,
		LoopsB1: b1,
		LoopsB2: b2,
		Blocks:  make(map[string][][]byte, len(plain)),
		Private: make(map[string][]byte, 2),
	}

	for i := range metadata.Files {
		file := &metadata.Files[i]
		data, ok := plain[file.Path]
		if !ok {
			continue
		}
		records, err := l.sealFile(ctx, next, data, metadata.BlockSize)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt file %s: %w", file.Path, err)
		}
		batch.Blocks[file.Path] = records
		file.Blocks = len(records)
		batch.Manifest = append(batch.Manifest, storage.ManifestEntry{
			Path:    file.Path,
			Size:    file.Size,
			ModTime: file.ModTime,
			Hash:    file.Hash,
			Blocks:  file.Blocks,
		})
	}

	if batch.Private[storage.PrivateCheck], err = sealCheck(next); err != nil {
		return err
	}
	if err := l.commit(batch, metadata, next); err != nil {
		return err
	}
	l.log.WithField("encloops", next.EncLoops()).Debugf("Re-encrypted %d files", len(batch.Blocks))
	return nil
}

// Diff compares vault contents with local files showing actual content differences
func (l *LrzLock) Diff(ctx context.Context, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return err
	}
	defer s.Destroy()

	hasChanges := false
	for _, file := range metadata.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !file.Sealed() {
			continue
		}

		validPath, err := l.validator.ValidateExistingPath(file.Path)
		if err != nil {
			continue
		}

		localData, err := l.validator.ReadFileInRoot(validPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.printf("File not in working directory: %s\n", validPath)
			} else {
				l.printf("error: cannot read %s: %v\n", validPath, err)
			}
			continue
		}

		vaultData, err := l.openFile(ctx, s, file.Path, crypto.ModeDecrypt)
		if err != nil {
			crypto.Wipe(localData)
			l.printf("error: cannot decrypt %s: %v\n", validPath, err)
			continue
		}

		diff, err := GenerateUnifiedDiff(validPath, vaultData, localData)
		crypto.Wipe(vaultData)
		crypto.Wipe(localData)
		if err != nil {
			l.printf("error: cannot generate diff for %s: %v\n", validPath, err)
			continue
		}

		if diff != "" {
			l.printf("%s", diff)
			hasChanges = true
		}
	}

	if !hasChanges {
		l.printf("No changes detected\n")
	}
	return nil
}

// FileStatus represents the status of a tracked file
type FileStatus struct {
	Path   string
	Status string
}

// StatusInfo contains status information
type StatusInfo struct {
	Files          []FileStatus
	LastSealed     time.Time
	TrackedCount   int
	SealedCount    int
	ModifiedCount  int
	UnchangedCount int
	TotalSize      int64
	Algorithm      string
	EncLoops       int64
	VaultID        string
	GitStatus      *git.Status
}

// Status returns the current status (no passphrase required)
func (l *LrzLock) Status(ctx context.Context) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := l.open()
	if err != nil {
		return nil, err
	}
	defer done()

	status := &StatusInfo{
		Files:     make([]FileStatus, 0),
		Algorithm: Algorithm,
	}
	if modified, err := l.db.GetModified(); err == nil {
		status.LastSealed = modified
	}
	if b1, b2, err := l.db.GetLoops(); err == nil {
		status.EncLoops, _ = crypto.DecodeLoops(b1, b2)
	}
	status.VaultID, _ = l.db.GetVaultID()

	entries, err := l.db.GetManifest()
	if err != nil {
		return status, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		validPath, err := l.validator.ValidateExistingPath(entry.Path)
		if err != nil {
			continue
		}

		file := FileStatus{Path: validPath, Status: l.fileState(validPath, entry)}
		status.TrackedCount++
		status.TotalSize += entry.Size
		switch file.Status {
		case "vault only":
			status.SealedCount++
		case "modified":
			status.ModifiedCount++
		case "unchanged":
			status.UnchangedCount++
		}
		status.Files = append(status.Files, file)
	}

	tracked := make([]string, 0, len(status.Files))
	for _, file := range status.Files {
		tracked = append(tracked, file.Path)
	}
	if gs := git.Check(ctx, l.validator.Root(), VaultFile, tracked); gs.IsRepo {
		status.GitStatus = gs
	}

	return status, nil
}

func (l *LrzLock) fileState(path string, entry storage.ManifestEntry) string {
	content, err := l.validator.ReadFileInRoot(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if entry.Blocks == 0 {
			return "missing"
		}
		return "vault only"
	case err != nil:
		return "error"
	}
	defer crypto.Wipe(content)

	if entry.Blocks == 0 {
		return "not sealed"
	}
	if !hashMatches(content, entry.Hash) {
		return "modified"
	}
	return "unchanged"
}

// ChangedFilesResult contains the result of analyzing tracked files
type ChangedFilesResult struct {
	Changed   []string // Files that have been modified
	Unchanged []string // Files that are the same
	Missing   []string // Files that don't exist locally (vault only)
}

// GetChangedFiles analyzes all tracked files and determines which have changed
// Uses content hash comparison for accurate detection
func (l *LrzLock) GetChangedFiles(ctx context.Context, password []byte) (*ChangedFilesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := l.open()
	if err != nil {
		return nil, err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return nil, err
	}
	s.Destroy()

	result := &ChangedFilesResult{
		Changed:   make([]string, 0),
		Unchanged: make([]string, 0),
		Missing:   make([]string, 0),
	}

	for _, file := range metadata.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		validPath, err := l.validator.ValidateExistingPath(file.Path)
		if err != nil {
			continue
		}

		content, err := l.validator.ReadFileInRoot(validPath)
		if err != nil {
			result.Missing = append(result.Missing, validPath)
			continue
		}

		if hashMatches(content, file.Hash) {
			result.Unchanged = append(result.Unchanged, validPath)
		} else {
			result.Changed = append(result.Changed, validPath)
		}
		crypto.Wipe(content)
	}

	return result, nil
}

// VerifyResult lists the outcome of Verify per file.
type VerifyResult struct {
	Verified []string
	Failed   []string
	Unsealed []string
}

// Verify decrypts every block of every sealed file in validate mode and
// checks the joined plaintext against its recorded hash. Nothing is written.
// It returns ErrIntegrity when any file fails.
func (l *LrzLock) Verify(ctx context.Context, password []byte) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := l.open()
	if err != nil {
		return nil, err
	}
	defer done()

	metadata, s, err := l.readMetadata(password)
	if err != nil {
		return nil, err
	}
	defer s.Destroy()

	result := &VerifyResult{}
	for _, file := range metadata.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !file.Sealed() {
			result.Unsealed = append(result.Unsealed, file.Path)
			continue
		}

		data, err := l.openFile(ctx, s, file.Path, crypto.ModeValidate)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, fmt.Sprintf("%s: %v", file.Path, err))
		case !hashMatches(data, file.Hash):
			result.Failed = append(result.Failed, fmt.Sprintf("%s: content hash mismatch", file.Path))
		case !l.indexMatches(file):
			result.Failed = append(result.Failed, fmt.Sprintf("%s: public index does not match vault metadata", file.Path))
		default:
			result.Verified = append(result.Verified, file.Path)
		}
		crypto.Wipe(data)
	}

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d files", ErrIntegrity, len(result.Failed), len(metadata.Files)-len(result.Unsealed))
	}
	return result, nil
}

// indexMatches reports whether the unencrypted index entry of file agrees
// with the sealed file list.
func (l *LrzLock) indexMatches(file storage.FileEntry) bool {
	entry, err := l.db.GetManifestEntry(file.Path)
	if err != nil || entry == nil {
		return false
	}
	return entry.Hash == file.Hash && entry.Blocks == file.Blocks && entry.Size == file.Size
}

// Compact compacts the database to reclaim unused space.
// This is useful after removing files from the vault.
func (l *LrzLock) Compact() error {
	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()
	return l.db.Compact()
}

// GetVaultID retrieves the vault ID from storage
func (l *LrzLock) GetVaultID() (string, error) {
	done, err := l.open()
	if err != nil {
		return "", err
	}
	defer done()
	return l.db.GetVaultID()
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (l *LrzLock) GetOrCreateVaultID() (string, error) {
	done, err := l.open()
	if err != nil {
		return "", err
	}
	defer done()
	return l.db.GetOrCreateVaultID()
}

// VerifyPassword checks if the passphrase is correct for this vault
func (l *LrzLock) VerifyPassword(password []byte) error {
	done, err := l.open()
	if err != nil {
		return err
	}
	defer done()

	s, err := l.openSession(password)
	if err != nil {
		return err
	}
	s.Destroy()
	return nil
}
