package patches

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// noNewlineMarker follows a diff line whose file line has no trailing newline.
const noNewlineMarker = `\ No newline at end of file`

// binarySniffLen bounds the NUL byte scan, the same window git uses.
const binarySniffLen = 8000

// DiffStats contains statistics about a diff
type DiffStats struct {
	Added   int
	Removed int
}

// CreatePatch generates a unified diff that turns oldText into newText. The
// headers name rel as a/<rel> and b/<rel>. Identical inputs give "".
func CreatePatch(rel, oldText, newText string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitDiffLines(oldText),
		B:        splitDiffLines(newText),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	}

	return difflib.GetUnifiedDiffString(diff)
}

// splitDiffLines splits s into newline-terminated lines for difflib. A last
// line without a newline carries the marker line with it, so the rendered diff
// keeps the distinction between "x" and "x\n".
func splitDiffLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n" + noNewlineMarker + "\n"
	return lines
}

// splitLines splits s into lines that keep their terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsBinary reports whether content cannot be handled as text: it is not
// valid UTF-8 or has a NUL byte near the start.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), binarySniffLen)
	if bytes.IndexByte(content[:checkLen], 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}
