package integration_tests

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-api/vendorpatch/internal/run"
	"github.com/speakeasy-api/vendorpatch/internal/testutils"
)

const demoManifest = `[package]
name = "demo"
version = "1.0.0"

[dependencies]
itoa = "1"
`

const (
	pristineUtil = "pub fn one() -> u32 {\n    1\n}\n"
	editedUtil   = "pub fn one() -> u32 {\n    2\n}\n"
)

func demoRegistry(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	server, requests := serveArchives(t, map[string][]byte{
		"/demo/demo-1.0.0.crate": testutils.Crate(t, "demo-1.0.0", map[string]string{
			"Cargo.toml":  demoManifest,
			"src/lib.rs":  "pub mod util;\n",
			"src/util.rs": pristineUtil,
		}),
	})
	return server.URL, requests
}

func TestSync_EditRecordRestore(t *testing.T) {
	registry, requests := demoRegistry(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"app\"\n")

	require.NoError(t, execute(t, "sync", "demo@1.0.0", "--dir", dir, "--registry", registry))
	assert.Equal(t, pristineUtil, readFile(t, filepath.Join(dir, "src", "util.rs")))
	assert.Equal(t, "pub mod util;\n", readFile(t, filepath.Join(dir, "src", "lib.crate.rs")))
	assert.Contains(t, readFile(t, filepath.Join(dir, "Cargo.toml")), "[dependencies]\nitoa = \"1\"\n")

	writeFile(t, filepath.Join(dir, "src", "util.rs"), editedUtil)
	require.NoError(t, execute(t, "sync", "--name", "demo", "--version", "1.0.0", "-d", dir, "--registry", registry))
	assert.FileExists(t, filepath.Join(dir, "patches", "util.rs.patch"))
	assert.Equal(t, editedUtil, readFile(t, filepath.Join(dir, "src", "util.rs")))
	assert.Equal(t, int32(1), requests.Load())

	require.NoError(t, execute(t, "patches", "check", "-d", dir, "-p", "demo@1.0.0"))
	require.NoError(t, execute(t, "patches", "view-diff", "files", "-d", dir, "--json"))
	require.NoError(t, execute(t, "patches", "view-diff", "file", "-d", dir, "-f", "util.rs", "--color", "always"))
	require.Error(t, execute(t, "patches", "view-diff", "file", "-d", dir, "-f", "util.rs", "--color", "rainbow"))
	require.NoError(t, execute(t, "config", "-d", dir))

	require.NoError(t, execute(t, "patches", "restore-pristine", "file", "-d", dir, "-f", "util.rs", "-p", "demo@1.0.0"))
	assert.Equal(t, pristineUtil, readFile(t, filepath.Join(dir, "src", "util.rs")))
	assert.NoFileExists(t, filepath.Join(dir, "patches", "util.rs.patch"))
}

func TestSync_ReplaysPatchesIntoFreshCheckout(t *testing.T) {
	registry, _ := demoRegistry(t)
	dir := t.TempDir()

	require.NoError(t, execute(t, "sync", "demo@1.0.0", "-d", dir, "--registry", registry))
	writeFile(t, filepath.Join(dir, "src", "util.rs"), editedUtil)
	require.NoError(t, execute(t, "sync", "demo@1.0.0", "-d", dir, "--registry", registry))

	// a clean checkout keeps the patches and the cache but not the vendored files
	fresh := filepath.Join(dir, "src")
	require.NoError(t, os.RemoveAll(fresh))

	require.NoError(t, execute(t, "sync", "-p", "demo@1.0.0", "--patches", "util.rs", "-d", dir, "--registry", registry))
	assert.Equal(t, editedUtil, readFile(t, filepath.Join(fresh, "util.rs")))
}

func TestSync_Failures(t *testing.T) {
	registry, _ := demoRegistry(t)

	tests := []struct {
		name string
		args []string
		kind run.Kind
	}{
		{
			name: "unknown patch",
			args: []string{"sync", "demo@1.0.0", "--patches", "missing.rs"},
			kind: run.PatchApplyFailure,
		},
		{
			name: "missing version",
			args: []string{"sync", "demo@9.9.9"},
			kind: run.NetworkFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			err := execute(t, append(tc.args, "-d", dir, "--registry", registry)...)
			require.Error(t, err)

			var runErr *run.Error
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, tc.kind, runErr.Kind)
		})
	}
}

func TestSync_InvalidArguments(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no package", args: []string{"sync"}},
		{name: "missing version", args: []string{"sync", "demo"}},
		{name: "argument and flag", args: []string{"sync", "demo@1.0.0", "-p", "demo@1.0.0"}},
		{name: "package and name", args: []string{"sync", "-p", "demo@1.0.0", "--name", "demo"}},
		{name: "bad version", args: []string{"sync", "demo@latest"}},
		{name: "bad log level", args: []string{"sync", "demo@1.0.0", "--logLevel", "debug"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, execute(t, append(tc.args, "-d", dir)...))
		})
	}

	assert.NoDirExists(t, filepath.Join(dir, "src"))
}

func TestPatches_RequirePristineTree(t *testing.T) {
	dir := t.TempDir()

	err := execute(t, "patches", "view-pristine", "-d", dir, "-f", "util.rs", "-p", "demo@1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendorpatch sync demo@1.0.0")
}
