package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectDir)
	assert.Equal(t, "https://static.crates.io/crates", cfg.RegistryURL)
	assert.Equal(t, ".crate", cfg.ArchiveExtension)
	assert.Equal(t, filepath.Join(dir, "target", "vendorpatch"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.SourceDir)
	assert.Equal(t, filepath.Join(dir, "patches"), cfg.PatchesDir)
	assert.Equal(t, filepath.Join(dir, "Cargo.toml"), cfg.ManifestPath())
	assert.Equal(t, "lib.rs", cfg.EntryFile)
	assert.Equal(t, "lib.crate.rs", cfg.EntryTarget)
	assert.Equal(t, "src", cfg.DefaultSourceRoot)
	assert.Equal(t, "vendorpatch.lock", cfg.LockFile)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
}

func TestLoad_FileAndOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "shared-cache")
	content := "registry_url: http://localhost:8080/crates\n" +
		"source_dir: vendor/src\n" +
		"cache_dir: " + abs + "\n" +
		"http_timeout: 5s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendorpatch.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir, map[string]any{
		PatchesDirKey:  "vendor/patches",
		RegistryURLKey: "",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/crates", cfg.RegistryURL, "empty overrides are ignored")
	assert.Equal(t, filepath.Join(dir, "vendor", "src"), cfg.SourceDir)
	assert.Equal(t, filepath.Join(dir, "vendor", "patches"), cfg.PatchesDir)
	assert.Equal(t, abs, cfg.CacheDir)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "5s", cfg.Values()[HTTPTimeoutKey])
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VENDORPATCH_MANIFEST_FILE", "Other.toml")

	cfg, err := Load(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Other.toml", cfg.ManifestFile)
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendorpatch.yaml"), []byte("registry_url: [unterminated\n"), 0o644))

	_, err := Load(dir, nil)
	assert.Error(t, err)
}
