package cmd

import (
	"context"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize/english"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/speakeasy-api/vendorpatch/internal/charm"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
	"github.com/speakeasy-api/vendorpatch/internal/run"
)

type syncFlags struct {
	Dir      string   `json:"dir"`
	Package  string   `json:"package"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Patches  []string `json:"patches"`
	Registry string   `json:"registry"`
	CacheDir string   `json:"cache-dir"`
}

var syncCmd = &model.ExecutableCommand[syncFlags]{
	Usage: "sync [name@version]",
	Short: "Vendor a package into the project and replay the recorded patches",
	Long: `Downloads the package archive (once per version), extracts it, merges its dependencies and features into the consumer manifest and reconciles the source directory.
Local edits to vendored files are recorded under the patches directory and re-applied on later runs.`,
	Args:   cobra.MaximumNArgs(1),
	PreRun: presetPackage,
	Run:    runSync,
	Flags: []flag.Flag{
		dirFlag,
		flag.StringFlag{
			Name:        "package",
			Shorthand:   "p",
			Description: "package to vendor, as name@version",
		},
		flag.StringFlag{
			Name:        "name",
			Description: "package name, used together with --version",
		},
		flag.StringFlag{
			Name:        "version",
			Description: "package version, used together with --name",
		},
		flag.StringSliceFlag{
			Name:        "patches",
			Description: "patch records that must exist before the run starts, by vendored file path",
		},
		registryFlag,
		cacheDirFlag,
	},
}

func presetPackage(cmd *cobra.Command, flags *syncFlags) error {
	args := cmd.Flags().Args()
	if len(args) == 0 {
		return nil
	}
	if flags.Package != "" {
		return errors.New("pass the package either as an argument or with --package, not both")
	}
	return cmd.Flags().Set("package", args[0])
}

func (f syncFlags) reference() (pkgref.Reference, error) {
	switch {
	case f.Package != "" && (f.Name != "" || f.Version != ""):
		return pkgref.Reference{}, errors.New("--package cannot be combined with --name or --version")
	case f.Package != "":
		return pkgref.Parse(f.Package)
	case f.Name != "" && f.Version != "":
		return pkgref.New(f.Name, f.Version)
	default:
		return pkgref.Reference{}, errors.New("a package is required: pass name@version, --package or --name and --version")
	}
}

func runSync(ctx context.Context, flags syncFlags) error {
	ref, err := flags.reference()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.Dir, flags.Registry, flags.CacheDir)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	result, err := run.Run(ctx, cfg, ref, flags.Patches)
	if err != nil {
		return errors.Wrapf(err, "failed to vendor %s", ref)
	}

	printResult(log.From(ctx), result)
	return nil
}

func printResult(logger log.Logger, result *run.Result) {
	if result.Skipped {
		return
	}

	report := result.Report
	if !report.Changed() && !result.Manifest.Changed {
		logger.Successf("%s is up to date", result.Package)
	} else {
		logger.Successf("Vendored %s", result.Package)
	}

	printGroup(logger, charm.Added, "created", report.Created, true)
	printGroup(logger, charm.Added, "copied", report.Copied, true)
	printGroup(logger, charm.Info, "patched", report.Patched, true)
	printGroup(logger, charm.Info, "recorded", report.Recorded, true)
	printGroup(logger, charm.Dimmed, "unchanged", report.Unchanged, false)
	printGroup(logger, charm.Dimmed, "kept (binary)", report.BinaryKept, true)

	if len(report.StalePatches) > 0 {
		logger.Warnf("%s no longer %s an upstream edit: %s",
			english.Plural(len(report.StalePatches), "patch record", ""),
			english.PluralWord(len(report.StalePatches), "describes", "describe"),
			strings.Join(report.StalePatches, ", "))
	}
}

func printGroup(logger log.Logger, style lipgloss.Style, label string, files []string, listFiles bool) {
	if len(files) == 0 {
		return
	}
	logger.Printf("%s %s", style.Render(label), english.Plural(len(files), "file", ""))
	if !listFiles {
		return
	}
	for _, file := range files {
		logger.PrintfStyled(charm.Dimmed, "  %s", file)
	}
}
