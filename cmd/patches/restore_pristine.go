package patches

import (
	"context"
	"fmt"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

var restorePristineCmd = &model.CommandGroup{
	Usage:    "restore-pristine",
	Short:    "Restore vendored files to their pristine (upstream) version, discarding custom edits",
	Commands: []model.Command{restorePristineAllCmd, restorePristineFileCmd},
}

type restorePristineFileFlags struct {
	Dir     string `json:"dir"`
	File    string `json:"file"`
	Package string `json:"package"`
}

var restorePristineFileCmd = &model.ExecutableCommand[restorePristineFileFlags]{
	Usage: "file",
	Short: "Restore a vendored file to its pristine version and delete its patch record",
	Run:   runRestorePristineFile,
	Flags: []flag.Flag{dirFlag, fileFlag, packageFlag},
}

func runRestorePristineFile(ctx context.Context, flags restorePristineFileFlags) error {
	p, err := loadProject(flags.Dir)
	if err != nil {
		return err
	}

	in, err := p.pristineTree(flags.Package)
	if err != nil {
		return err
	}

	if err := p.restoreFileToPristine(in, flags.File); err != nil {
		return err
	}

	fmt.Printf("Restored %s to pristine version\n", flags.File)
	return nil
}

type restorePristineAllFlags struct {
	Dir     string `json:"dir"`
	Package string `json:"package"`
}

var restorePristineAllCmd = &model.ExecutableCommand[restorePristineAllFlags]{
	Usage: "all",
	Short: "Restore every vendored file with a patch record to its pristine version",
	Run:   runRestorePristineAll,
	Flags: []flag.Flag{dirFlag, packageFlag},
}

func runRestorePristineAll(ctx context.Context, flags restorePristineAllFlags) error {
	p, err := loadProject(flags.Dir)
	if err != nil {
		return err
	}

	in, err := p.pristineTree(flags.Package)
	if err != nil {
		return err
	}

	records, err := p.Store.List()
	if err != nil {
		return err
	}

	var restored int
	for _, record := range records {
		ok, err := fsutil.Exists(p.Synchronizer.PristinePath(in, record.RelPath))
		if err != nil {
			return err
		}
		if !ok {
			if err := p.Store.Remove(record.RelPath); err != nil {
				return err
			}
			fmt.Printf("  Discarded %s, it no longer exists upstream\n", record.RelPath)
			continue
		}

		if err := p.restoreFileToPristine(in, record.RelPath); err != nil {
			return err
		}

		fmt.Printf("  Restored %s\n", record.RelPath)
		restored++
	}

	if restored == 0 {
		fmt.Println("No files with custom code recorded.")
	} else {
		fmt.Printf("Restored %d file(s) to pristine version\n", restored)
	}

	return nil
}
