package patches

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  []byte
		expected bool
	}{
		{
			name:     "text content",
			content:  []byte("hello world\nthis is text"),
			expected: false,
		},
		{
			name:     "binary with null byte",
			content:  []byte("hello\x00world"),
			expected: true,
		},
		{
			name:     "empty content",
			content:  []byte{},
			expected: false,
		},
		{
			name:     "binary at start",
			content:  []byte{0x00, 0x01, 0x02},
			expected: true,
		},
		{
			name:     "invalid utf-8",
			content:  []byte{0xff, 0xfe, 'a'},
			expected: true,
		},
		{
			name:     "multibyte utf-8",
			content:  []byte("héllo wörld"),
			expected: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, IsBinary(tc.content))
		})
	}
}

func TestCreatePatch_RoundTrip(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("line\n", 40)

	tests := []struct {
		name string
		old  string
		new  string
	}{
		{name: "single line no newline", old: "A", new: "A+edit"},
		{name: "add trailing newline", old: "A", new: "A\n"},
		{name: "remove trailing newline", old: "A\n", new: "A"},
		{name: "from empty", old: "", new: "fn main() {}\n"},
		{name: "to empty", old: "fn main() {}\n", new: ""},
		{name: "insert in middle", old: "a\nb\nc\nd\ne\nf\ng\n", new: "a\nb\nc\nX\nd\ne\nf\ng\n"},
		{name: "crlf preserved", old: "a\r\nb\r\n", new: "a\r\nB\r\n"},
		{name: "edits at both ends", old: "1\n" + long + "2\n", new: "one\n" + long + "two\n"},
		{name: "removed line looks like header", old: "--- x\n+++ y\n", new: "keep\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			diff, err := CreatePatch("src/foo.rs", tc.old, tc.new)
			require.NoError(t, err)
			require.NotEmpty(t, diff)
			assert.True(t, strings.HasPrefix(diff, "--- a/src/foo.rs\n+++ b/src/foo.rs\n"), diff)

			got, err := ApplyText(diff, tc.old)
			require.NoError(t, err, diff)
			assert.Equal(t, tc.new, got)
		})
	}
}

func TestCreatePatch_Identical(t *testing.T) {
	t.Parallel()

	diff, err := CreatePatch("foo.rs", "same\n", "same\n")
	require.NoError(t, err)
	assert.Empty(t, diff)

	got, err := ApplyText(diff, "same\n")
	require.NoError(t, err)
	assert.Equal(t, "same\n", got)
}

func TestApply_Offset(t *testing.T) {
	t.Parallel()

	old := "a\nb\nc\nd\ne\nf\ng\nh\n"
	edited := "a\nb\nc\nd\nE\nf\ng\nh\n"
	diff, err := CreatePatch("x", old, edited)
	require.NoError(t, err)

	// upstream grew two lines above the hunk
	moved := "0\n00\n" + old
	got, err := ApplyText(diff, moved)
	require.NoError(t, err)
	assert.Equal(t, "0\n00\n"+edited, got)

	// and shrank below the hunk's recorded position
	shrunk := strings.TrimPrefix(old, "a\n")
	got, err = ApplyText(diff, shrunk)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(edited, "a\n"), got)
}

func TestApply_Mismatch(t *testing.T) {
	t.Parallel()

	diff, err := CreatePatch("foo.txt", "A", "A+edit")
	require.NoError(t, err)

	_, err = ApplyText(diff, "B")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrApply)
}

func TestParse(t *testing.T) {
	t.Parallel()

	text := "diff --git a/x b/x\n" +
		"--- a/x\n" +
		"+++ b/x\n" +
		"@@ -1,2 +1,2 @@\n" +
		" keep\n" +
		"-old\n" +
		"+new\n" +
		"\\ No newline at end of file\n"

	p, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "a/x", p.OldName)
	assert.Equal(t, "b/x", p.NewName)
	require.Len(t, p.Hunks, 1)
	assert.Equal(t, DiffStats{Added: 1, Removed: 1}, p.Stats())
	assert.Equal(t, Line{Op: '+', Text: "new"}, p.Hunks[0].Lines[2])

	got, err := Apply(p, "keep\nold\n")
	require.NoError(t, err)
	assert.Equal(t, "keep\nnew", got)
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "truncated hunk", text: "@@ -1,3 +1,3 @@\n a\n"},
		{name: "garbage after header", text: "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b\nnot a hunk\n"},
		{name: "bad line op", text: "@@ -1 +1 @@\n*a\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.text)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
