package core

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GenerateUnifiedDiff renders the change from vaultData to localData as a
// unified diff with a/ and b/ headers. Identical contents give "" and
// binary contents a single summary line.
func GenerateUnifiedDiff(path string, vaultData, localData []byte) (string, error) {
	if CompareFiles(vaultData, localData) {
		return "", nil
	}
	if !DetectFileType(vaultData) || !DetectFileType(localData) {
		return fmt.Sprintf("Binary file %s has changed\n", path), nil
	}

	dmp := diffmatchpatch.New()
	from, to := string(vaultData), string(localData)
	patches := dmp.PatchMake(from, lineDiff(dmp, from, to))
	if len(patches) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	b.WriteString(dmp.PatchToText(patches))
	return b.String(), nil
}

// lineDiff diffs whole lines, which is what both the unified diff and the
// conflict file want.
func lineDiff(dmp *diffmatchpatch.DiffMatchPatch, from, to string) []diffmatchpatch.Diff {
	a, b, lines := dmp.DiffLinesToChars(from, to)
	return dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
}
