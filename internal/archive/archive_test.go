package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
	"github.com/speakeasy-api/vendorpatch/internal/testutils"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func writeArchive(t *testing.T, dir string, entries []entry) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{Name: e.name, Mode: mode, Typeflag: typeflag, Linkname: e.linkname}
		if typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(dir, "pkg.crate")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

var testContext = testutils.Context

var ref = pkgref.Reference{Name: "demo", Version: "1.0.0"}

func TestExtract_CrateLayout(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	archivePath := writeArchive(t, t.TempDir(), []entry{
		{name: "demo-1.0.0/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "demo-1.0.0/Cargo.toml", body: "[package]\nname = \"demo\"\n"},
		{name: "demo-1.0.0/src/lib.rs", body: "pub fn f() {}\n"},
		{name: "demo-1.0.0/build.sh", body: "#!/bin/sh\n", mode: 0o755},
		{name: "demo-1.0.0/src/alias.rs", typeflag: tar.TypeSymlink, linkname: "lib.rs"},
		{name: "demo-1.0.0/dev", typeflag: tar.TypeFifo},
	})

	dir, err := New(Options{CacheDir: cacheDir}).Extract(testContext(), archivePath, ref)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "demo-1.0.0"), dir)

	data, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "pub fn f() {}\n", string(data))

	info, err := os.Stat(filepath.Join(dir, "build.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dir, "src", "alias.rs"))
	require.NoError(t, err)
	assert.Equal(t, "lib.rs", link)

	assert.NoFileExists(t, filepath.Join(dir, "dev"))

	// only the pristine tree remains in the cache
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "demo-1.0.0", entries[0].Name())
}

func TestExtract_FlatLayout(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	archivePath := writeArchive(t, t.TempDir(), []entry{
		{name: "Cargo.toml", body: "[package]\n"},
		{name: "src/lib.rs", body: "// lib\n"},
	})

	dir, err := New(Options{CacheDir: cacheDir}).Extract(testContext(), archivePath, ref)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "Cargo.toml"))
	assert.FileExists(t, filepath.Join(dir, "src", "lib.rs"))
}

func TestExtract_ExistingTreeIsKept(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	e := New(Options{CacheDir: cacheDir})
	archivePath := writeArchive(t, t.TempDir(), []entry{{name: "demo-1.0.0/src/lib.rs", body: "v1\n"}})

	dir, err := e.Extract(testContext(), archivePath, ref)
	require.NoError(t, err)

	// a tree that is already there is returned as is, even for a different archive
	other := writeArchive(t, t.TempDir(), []entry{{name: "demo-1.0.0/src/lib.rs", body: "v2\n"}})
	again, err := e.Extract(testContext(), other, ref)
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	data, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data))
}

func TestExtract_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []entry
	}{
		{name: "parent traversal", entries: []entry{{name: "../evil.rs", body: "x"}}},
		{name: "nested traversal", entries: []entry{{name: "demo-1.0.0/../../evil.rs", body: "x"}}},
		{name: "absolute path", entries: []entry{{name: "/etc/evil", body: "x"}}},
		{name: "escaping symlink", entries: []entry{{name: "demo-1.0.0/link", typeflag: tar.TypeSymlink, linkname: "../../outside"}}},
		{name: "absolute symlink", entries: []entry{{name: "demo-1.0.0/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cacheDir := t.TempDir()
			archivePath := writeArchive(t, t.TempDir(), tc.entries)

			_, err := New(Options{CacheDir: cacheDir}).Extract(testContext(), archivePath, ref)
			assert.ErrorIs(t, err, ErrCorrupt)

			entries, err := os.ReadDir(cacheDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "a failed extraction leaves nothing behind")
		})
	}
}

func TestExtract_NotGzip(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "pkg.crate")
	require.NoError(t, os.WriteFile(archivePath, []byte("<html>not an archive</html>"), 0o644))

	_, err := New(Options{CacheDir: cacheDir}).Extract(testContext(), archivePath, ref)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NoDirExists(t, filepath.Join(cacheDir, "demo-1.0.0"))
}

func TestExtract_Truncated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := writeArchive(t, dir, []entry{{name: "demo-1.0.0/src/lib.rs", body: string(bytes.Repeat([]byte("fn a() {}\n"), 2000))}})
	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archivePath, data[:len(data)/2], 0o644))

	cacheDir := t.TempDir()
	_, err = New(Options{CacheDir: cacheDir}).Extract(testContext(), archivePath, ref)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.NoDirExists(t, filepath.Join(cacheDir, "demo-1.0.0"))
}
