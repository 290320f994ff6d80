package security

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes repository")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
	ErrReserved     = errors.New("path is reserved")
)

// PathValidator confines file operations to the repository root through
// an os.Root handle.
type PathValidator struct {
	repoRoot *os.Root
	repoPath string
	reserved map[string]bool
}

// New opens a validator rooted at repoPath. Paths listed in reserved (the
// vault file and its compaction temporaries) are rejected like escaping
// paths, so the vault can never be locked into itself or overwritten by
// an unlock.
func New(repoPath string, reserved ...string) (*PathValidator, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository root: %w", err)
	}

	pv := &PathValidator{
		repoRoot: root,
		repoPath: absPath,
		reserved: make(map[string]bool, len(reserved)),
	}
	for _, r := range reserved {
		pv.reserved[filepath.ToSlash(filepath.Clean(r))] = true
	}
	return pv, nil
}

// Close releases the root handle.
func (pv *PathValidator) Close() error {
	if pv.repoRoot != nil {
		return pv.repoRoot.Close()
	}
	return nil
}

// Root returns the absolute repository path.
func (pv *PathValidator) Root() string {
	return pv.repoPath
}

// ValidateAndNormalize turns a user-supplied relative path into the
// slash-separated form stored in the vault. Empty, absolute, escaping and
// reserved paths are rejected.
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) || strings.HasPrefix(userPath, "/") {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	relPath, err := filepath.Rel(pv.repoPath, filepath.Join(pv.repoPath, filepath.Clean(userPath)))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if !filepath.IsLocal(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	normalized := filepath.ToSlash(relPath)
	if pv.reserved[normalized] {
		return "", fmt.Errorf("%w: %s", ErrReserved, normalized)
	}
	return normalized, nil
}

// ValidateExistingPath re-validates a path read back from the vault, which
// may have been tampered with.
func (pv *PathValidator) ValidateExistingPath(storedPath string) (string, error) {
	return pv.ValidateAndNormalize(filepath.FromSlash(storedPath))
}

// Relative converts an absolute path inside the repository to a relative
// one. Relative paths pass through unchanged.
func (pv *PathValidator) Relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return path, nil
	}
	rel, err := filepath.Rel(pv.repoPath, path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s is outside repository", ErrPathEscapes, path)
	}
	return rel, nil
}

func (pv *PathValidator) platform(path string) (string, error) {
	p := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(p); err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return filepath.Clean(p), nil
}

// WriteFileInRoot creates or truncates path inside the root and writes data.
func (pv *PathValidator) WriteFileInRoot(path string, data []byte, perm os.FileMode) error {
	p, err := pv.platform(path)
	if err != nil {
		return err
	}

	f, err := pv.repoRoot.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MkdirAllInRoot creates path and any missing parents inside the root.
func (pv *PathValidator) MkdirAllInRoot(path string, perm os.FileMode) error {
	p, err := pv.platform(path)
	if err != nil {
		return err
	}

	var current string
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		err := pv.repoRoot.Mkdir(current, perm)
		if err == nil || errors.Is(err, fs.ErrExist) {
			continue
		}
		return err
	}

	info, err := pv.repoRoot.Stat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, fs.ErrExist)
	}
	return nil
}

// ReadFileInRoot reads path from inside the root.
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	p, err := pv.platform(path)
	if err != nil {
		return nil, err
	}

	f, err := pv.repoRoot.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// StatInRoot stats path inside the root.
func (pv *PathValidator) StatInRoot(path string) (os.FileInfo, error) {
	p, err := pv.platform(path)
	if err != nil {
		return nil, err
	}
	return pv.repoRoot.Stat(p)
}

// RemoveInRoot removes the file at path inside the root.
func (pv *PathValidator) RemoveInRoot(path string) error {
	p, err := pv.platform(path)
	if err != nil {
		return err
	}
	return pv.repoRoot.Remove(p)
}
