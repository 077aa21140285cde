package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/speakeasy-api/vendorpatch/cmd/patches"
	"github.com/speakeasy-api/vendorpatch/internal/charm"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/model"
)

const rootLong = `vendorpatch downloads a package archive from a registry, extracts it and copies its sources into your project.
Edits you make to the vendored files are recorded as patches and replayed on top of the upstream sources on every run.
New upstream files are created, your edits survive upgrades, and dependencies and features are merged into your
manifest without overwriting your own entries.
`

var commands = []model.Command{
	syncCmd,
	patches.PatchesCmd,
	configCmd,
}

func init() {
	// keep the order of commands as registered
	cobra.EnableCommandSorting = false
}

func newRootCmd(version, artifactArch string) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "vendorpatch",
		Short:         "Vendor a published package into your project and keep your edits to it as patches",
		Long:          rootLong,
		Version:       version + "\n" + artifactArch,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setLogLevel(cmd)
		},
	}

	root.PersistentFlags().String("logLevel", string(log.LevelInfo),
		fmt.Sprintf("the log level (available options: [%s])", strings.Join(log.Levels, ", ")))

	for _, command := range commands {
		c, err := command.Init()
		if err != nil {
			return nil, err
		}
		root.AddCommand(c)
	}

	return root, nil
}

// CmdForTest builds a fresh command tree for in-process runs.
func CmdForTest(version, artifactArch string) *cobra.Command {
	root, err := newRootCmd(version, artifactArch)
	if err != nil {
		panic(err)
	}
	return root
}

func Execute(version, artifactArch string) {
	l := log.New()

	root, err := newRootCmd(version, artifactArch)
	if err != nil {
		l.Error("", zap.Error(err))
		os.Exit(1)
	}

	if err := root.Execute(); err != nil {
		l.Error("", zap.Error(err))
		l.WithInteractiveOnly().PrintfStyled(charm.DimmedItalic, "Run '%s --help' for usage.", root.CommandPath())
		os.Exit(1)
	}
}

func setLogLevel(cmd *cobra.Command) error {
	logLevel, err := cmd.Flags().GetString("logLevel")
	if err != nil {
		return err
	}
	if !slices.Contains(log.Levels, logLevel) {
		return fmt.Errorf("log level must be one of: %s", strings.Join(log.Levels, ", "))
	}

	l := log.From(cmd.Context()).WithLevel(log.Level(logLevel))
	cmd.SetContext(log.With(cmd.Context(), l))
	return nil
}
