package core

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/term"

	"github.com/illarion/lrzlock/internal/crypto"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text files
)

// MergeStrategy defines how to handle file conflicts during unlock
type MergeStrategy int

const (
	StrategyAsk MergeStrategy = iota // Ask user for each conflict
	StrategyKeepLocal                // Always keep local version
	StrategyUseVault                 // Always use vault version
	StrategyKeepBoth                 // Always keep both versions (save vault as .from-vault)
	StrategyAbort                    // Abort on any conflict
)

// ConflictResolution defines the user's choice for a specific conflict
type ConflictResolution int

const (
	ResolutionKeepLocal ConflictResolution = iota
	ResolutionUseVault
	ResolutionEditMerged
	ResolutionKeepBoth
	ResolutionSkip
)

// ConflictResult contains the resolution and optionally merged data
type ConflictResult struct {
	Resolution ConflictResolution
	MergedData []byte // Populated when Resolution == ResolutionEditMerged
}

// UnlockResult contains the results of an unlock operation. Paths are the
// slash-separated vault keys.
type UnlockResult struct {
	Extracted []string // Successfully extracted files
	Skipped   []string // Files skipped due to conflicts or user choice
	Errors    []string // Files with errors
}

// DetectFileType reports whether data looks like text: no NUL bytes, valid
// UTF-8 in the first BinarySampleSize bytes, and at most
// BinaryThresholdPct percent control characters other than tab, LF and CR.
func DetectFileType(data []byte) bool {
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	if !utf8.Valid(sample) {
		return false
	}

	control := 0
	for _, b := range sample {
		switch {
		case b == '\t', b == '\n', b == '\r':
		case b < 32, b == 127:
			control++
		}
	}
	return control <= len(sample)*BinaryThresholdPct/100
}

// CompareFiles reports whether two file contents have the same blake2b-256
// digest. The digests are compared in constant time.
func CompareFiles(local, vaultData []byte) bool {
	localHash := blake2b.Sum256(local)
	vaultHash := blake2b.Sum256(vaultData)
	return subtle.ConstantTimeCompare(localHash[:], vaultHash[:]) == 1
}

// ParseStrategy maps the unlock flags to a strategy. At most one flag may
// be set.
func ParseStrategy(force, keepLocal, keepBoth bool) (MergeStrategy, error) {
	set := 0
	strategy := StrategyAsk
	for _, f := range []struct {
		on bool
		s  MergeStrategy
	}{{force, StrategyUseVault}, {keepLocal, StrategyKeepLocal}, {keepBoth, StrategyKeepBoth}} {
		if f.on {
			set++
			strategy = f.s
		}
	}
	if set > 1 {
		return StrategyAsk, fmt.Errorf("--force, --keep-local, and --keep-both are mutually exclusive")
	}
	return strategy, nil
}

// conflictOut receives the interactive conflict prompt.
var conflictOut io.Writer = os.Stdout

// HandleConflict manages interactive conflict resolution for a file
func HandleConflict(path string, localData, vaultData []byte, strategy MergeStrategy) (*ConflictResult, error) {
	switch strategy {
	case StrategyKeepLocal:
		return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
	case StrategyUseVault:
		return &ConflictResult{Resolution: ResolutionUseVault}, nil
	case StrategyKeepBoth:
		return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
	case StrategyAbort:
		return &ConflictResult{Resolution: ResolutionSkip}, fmt.Errorf("conflict detected for %s (aborting)", path)
	}

	// Strategy is StrategyAsk - prompt user
	isText := DetectFileType(localData) && DetectFileType(vaultData)

	fmt.Fprintf(conflictOut, "\nwarning: conflict detected: %s\n", path)
	fmt.Fprintf(conflictOut, "   Local file exists and differs from vault version\n")

	fileType := "binary"
	if isText {
		fileType = "text"
	}
	fmt.Fprintf(conflictOut, "   File type: %s\n", fileType)
	fmt.Fprintf(conflictOut, "\nOptions:\n")
	fmt.Fprintf(conflictOut, "  [l] Keep local version\n")
	fmt.Fprintf(conflictOut, "  [v] Use vault version (overwrite local)\n")
	if isText {
		fmt.Fprintf(conflictOut, "  [e] Edit merged (opens in $EDITOR)\n")
	}
	fmt.Fprintf(conflictOut, "  [b] Keep both (save vault as .from-vault)\n")
	fmt.Fprintf(conflictOut, "  [x] Skip this file\n")

	for {
		fmt.Fprintf(conflictOut, "\nYour choice: ")
		choice, err := readChoice()
		if err != nil {
			return &ConflictResult{Resolution: ResolutionSkip}, err
		}

		switch choice {
		case "l":
			return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
		case "v":
			return &ConflictResult{Resolution: ResolutionUseVault}, nil
		case "e":
			if !isText {
				fmt.Fprintf(conflictOut, "Cannot edit merge for binary files\n")
				continue
			}
			mergedData, err := handleEditMerge(path, localData, vaultData)
			if err != nil {
				fmt.Fprintf(conflictOut, "Error during merge: %v\n", err)
				continue
			}
			return &ConflictResult{Resolution: ResolutionEditMerged, MergedData: mergedData}, nil
		case "b":
			return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
		case "x":
			return &ConflictResult{Resolution: ResolutionSkip}, nil
		default:
			validOptions := "l, v, b, x"
			if isText {
				validOptions = "l, v, e, b, x"
			}
			fmt.Fprintf(conflictOut, "Invalid choice. Please enter %s\n", validOptions)
		}
	}
}

// readChoice reads one key in raw mode, or a line when stdin is not a
// terminal.
func readChoice() (string, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		var input string
		if _, err := fmt.Scanln(&input); err != nil {
			return "", err
		}
		return strings.ToLower(strings.TrimSpace(input)), nil
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	var key [1]byte
	if _, err := os.Stdin.Read(key[:]); err != nil {
		return "", err
	}
	choice := strings.ToLower(string(key[:]))
	fmt.Fprintf(conflictOut, "%s\n", choice)
	return choice, nil
}

// confirm asks a yes/no question that defaults to no.
func confirm(question string) (bool, error) {
	fmt.Fprintf(conflictOut, "%s [y/N]: ", question)
	choice, err := readChoice()
	if err != nil {
		return false, err
	}
	return choice == "y", nil
}

// getEditor prefers $VISUAL, then $EDITOR, then a platform default.
func getEditor() string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if editor := os.Getenv(env); editor != "" {
			return editor
		}
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// createLineDiff marks only the differing line runs with conflict markers,
// the way git does.
func createLineDiff(localData, vaultData []byte) []byte {
	dmp := diffmatchpatch.New()
	return buildConflictFromDiffs(lineDiff(dmp, string(localData), string(vaultData)))
}

// buildConflictFromDiffs copies equal runs through and wraps each run of
// deletions (local) and insertions (vault) in one conflict hunk.
func buildConflictFromDiffs(diffs []diffmatchpatch.Diff) []byte {
	var buf bytes.Buffer

	// side writes the consecutive diffs of type op and returns the next index
	side := func(i int, op diffmatchpatch.Operation) int {
		for ; i < len(diffs) && diffs[i].Type == op; i++ {
			buf.WriteString(diffs[i].Text)
			if text := diffs[i].Text; text != "" && !strings.HasSuffix(text, "\n") {
				buf.WriteByte('\n')
			}
		}
		return i
	}

	for i := 0; i < len(diffs); {
		if diffs[i].Type == diffmatchpatch.DiffEqual {
			buf.WriteString(diffs[i].Text)
			i++
			continue
		}
		buf.WriteString("<<<<<<< local\n")
		i = side(i, diffmatchpatch.DiffDelete)
		buf.WriteString("=======\n")
		i = side(i, diffmatchpatch.DiffInsert)
		buf.WriteString(">>>>>>> vault\n")
	}

	return buf.Bytes()
}

// createConflictFile writes the conflict-marked merge of both versions to
// a private temp file named after path's extension.
func createConflictFile(path string, localData, vaultData []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "lrzlock-merge-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()

	content := createLineDiff(localData, vaultData)
	defer crypto.Wipe(content)

	err = tmpFile.Chmod(0600)
	if err == nil {
		_, err = tmpFile.Write(content)
	}
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to write conflict file: %w", err)
	}
	return name, nil
}

// invokeEditor opens filename in the user's editor and waits for it to exit
func invokeEditor(filename string) error {
	editor := getEditor()
	if _, err := exec.LookPath(editor); err != nil {
		return fmt.Errorf("editor '%s' not found: %w\nPlease set VISUAL or EDITOR environment variable", editor, err)
	}

	cmd := exec.Command(editor, filename)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	var exitErr *exec.ExitError
	if err := cmd.Run(); errors.As(err, &exitErr) {
		return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
	} else if err != nil {
		return err
	}
	return nil
}

// handleEditMerge lets the user resolve the conflict in an editor and
// returns the edited content.
func handleEditMerge(path string, localData, vaultData []byte) ([]byte, error) {
	name, err := createConflictFile(path, localData, vaultData)
	if err != nil {
		return nil, err
	}
	defer os.Remove(name)

	fmt.Fprintf(conflictOut, "\nopening editor for merge...\n")
	if err := invokeEditor(name); err != nil {
		return nil, err
	}

	merged, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read edited file: %w", err)
	}

	var question string
	switch {
	case len(merged) == 0:
		question = "\nwarning: edited file is empty\nUse this empty content?"
	case hasConflictMarkers(merged):
		question = "\nwarning: conflict markers still present in file\nContinue anyway?"
	}
	if question != "" {
		ok, err := confirm(question)
		if err != nil || !ok {
			crypto.Wipe(merged)
			if err == nil {
				err = fmt.Errorf("merge aborted by user")
			}
			return nil, err
		}
	}

	return merged, nil
}

// hasConflictMarkers checks if content still contains unresolved conflict markers
func hasConflictMarkers(data []byte) bool {
	for _, marker := range []string{"<<<<<<<", "=======", ">>>>>>>"} {
		if bytes.Contains(data, []byte(marker)) {
			return true
		}
	}
	return false
}
