package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/speakeasy-api/vendorpatch/internal/charm"
	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

type configFlags struct {
	Dir      string `json:"dir"`
	Registry string `json:"registry"`
	CacheDir string `json:"cache-dir"`
}

var configCmd = &model.ExecutableCommand[configFlags]{
	Usage: "config",
	Short: "Print the resolved configuration",
	Long:  "Prints the configuration a run in this project would use, after vendorpatch.yaml, VENDORPATCH_* environment variables and flags are applied.",
	Run:   runConfig,
	Flags: []flag.Flag{
		dirFlag,
		registryFlag,
		cacheDirFlag,
	},
}

func runConfig(ctx context.Context, flags configFlags) error {
	cfg, err := loadConfig(flags.Dir, flags.Registry, flags.CacheDir)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	out, err := yaml.Marshal(cfg.Values())
	if err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}

	found, err := fsutil.Exists(cfg.ConfigFile())
	if err != nil {
		return err
	}

	logger := log.From(ctx).WithInteractiveOnly()
	if found {
		logger.PrintfStyled(charm.DimmedItalic, "# read from %s", cfg.ConfigFile())
	} else {
		logger.PrintfStyled(charm.DimmedItalic, "# no %s found, showing defaults", cfg.ConfigFile())
	}

	_, err = fmt.Fprint(os.Stdout, string(out))
	return err
}
