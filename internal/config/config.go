package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/speakeasy-api/vendorpatch/internal/download"
	"github.com/speakeasy-api/vendorpatch/internal/locks"
	"github.com/speakeasy-api/vendorpatch/internal/manifest"
	"github.com/speakeasy-api/vendorpatch/internal/vendortree"
)

const (
	FileName  = "vendorpatch"
	EnvPrefix = "VENDORPATCH"
)

const (
	RegistryURLKey       = "registry_url"
	ArchiveExtensionKey  = "archive_extension"
	CacheDirKey          = "cache_dir"
	ManifestFileKey      = "manifest_file"
	SourceDirKey         = "source_dir"
	PatchesDirKey        = "patches_dir"
	EntryFileKey         = "entry_file"
	EntryTargetKey       = "entry_target"
	DefaultSourceRootKey = "default_source_root"
	LockFileKey          = "lock_file"
	HTTPTimeoutKey       = "http_timeout"
)

// Config is the resolved configuration for one project. All directories are
// absolute once returned by Load.
type Config struct {
	ProjectDir        string        `mapstructure:"-"`
	RegistryURL       string        `mapstructure:"registry_url"`
	ArchiveExtension  string        `mapstructure:"archive_extension"`
	CacheDir          string        `mapstructure:"cache_dir"`
	ManifestFile      string        `mapstructure:"manifest_file"`
	SourceDir         string        `mapstructure:"source_dir"`
	PatchesDir        string        `mapstructure:"patches_dir"`
	EntryFile         string        `mapstructure:"entry_file"`
	EntryTarget       string        `mapstructure:"entry_target"`
	DefaultSourceRoot string        `mapstructure:"default_source_root"`
	LockFile          string        `mapstructure:"lock_file"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		RegistryURLKey:       download.DefaultRegistryURL,
		ArchiveExtensionKey:  download.DefaultArchiveExtension,
		CacheDirKey:          filepath.Join("target", "vendorpatch"),
		ManifestFileKey:      manifest.DefaultManifestFile,
		SourceDirKey:         "src",
		PatchesDirKey:        "patches",
		EntryFileKey:         manifest.DefaultEntryFile,
		EntryTargetKey:       vendortree.DefaultEntryTarget,
		DefaultSourceRootKey: manifest.DefaultSourceRoot,
		LockFileKey:          locks.DefaultOpts().Name,
		HTTPTimeoutKey:       download.DefaultTimeout,
	}
}

// Load reads vendorpatch.yaml from projectDir if there is one, then applies
// VENDORPATCH_* environment variables and finally overrides, which are keyed
// like the config file. Empty override values are ignored.
func Load(projectDir string, overrides map[string]any) (*Config, error) {
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}

	vCfg := viper.New()
	for key, value := range defaults() {
		vCfg.SetDefault(key, value)
	}

	vCfg.SetConfigName(FileName)
	vCfg.SetConfigType("yaml")
	vCfg.AddConfigPath(projectDir)

	if err := vCfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	vCfg.SetEnvPrefix(EnvPrefix)
	vCfg.AutomaticEnv()

	for key, value := range overrides {
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		vCfg.Set(key, value)
	}

	cfg := &Config{}
	if err := vCfg.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ProjectDir = projectDir
	cfg.CacheDir = cfg.resolve(cfg.CacheDir)
	cfg.SourceDir = cfg.resolve(cfg.SourceDir)
	cfg.PatchesDir = cfg.resolve(cfg.PatchesDir)

	return cfg, nil
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.ProjectDir, dir)
}

// ManifestPath is the consumer manifest.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ProjectDir, c.ManifestFile)
}

// Values returns the configuration keyed like the config file.
func (c *Config) Values() map[string]any {
	return map[string]any{
		"project_dir":        c.ProjectDir,
		RegistryURLKey:       c.RegistryURL,
		ArchiveExtensionKey:  c.ArchiveExtension,
		CacheDirKey:          c.CacheDir,
		ManifestFileKey:      c.ManifestFile,
		SourceDirKey:         c.SourceDir,
		PatchesDirKey:        c.PatchesDir,
		EntryFileKey:         c.EntryFile,
		EntryTargetKey:       c.EntryTarget,
		DefaultSourceRootKey: c.DefaultSourceRoot,
		LockFileKey:          c.LockFile,
		HTTPTimeoutKey:       c.HTTPTimeout.String(),
	}
}

// ConfigFile is where Load looks for the config file.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.ProjectDir, FileName+".yaml")
}
