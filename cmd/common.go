package cmd

import (
	"github.com/speakeasy-api/vendorpatch/internal/config"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

var (
	dirFlag = flag.StringFlag{
		Name:         "dir",
		Shorthand:    "d",
		Description:  "project directory containing the consumer manifest",
		DefaultValue: ".",
	}
	registryFlag = flag.StringFlag{
		Name:        "registry",
		Description: "base URL of the package registry (overrides registry_url)",
	}
	cacheDirFlag = flag.StringFlag{
		Name:        "cache-dir",
		Description: "directory holding downloaded archives and pristine trees (overrides cache_dir)",
	}
)

func loadConfig(dir, registry, cacheDir string) (*config.Config, error) {
	return config.Load(dir, map[string]any{
		config.RegistryURLKey: registry,
		config.CacheDirKey:    cacheDir,
	})
}
