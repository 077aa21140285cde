package patches

import (
	"context"

	"github.com/dustin/go-humanize/english"
	"github.com/pkg/errors"

	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

type checkFlags struct {
	Dir     string `json:"dir"`
	Package string `json:"package"`
}

var checkCmd = &model.ExecutableCommand[checkFlags]{
	Usage: "check",
	Short: "Verify that every patch record still applies to the pristine tree of a package",
	Long:  "Parses every patch record and applies it to the matching pristine file without touching the vendored tree. Use it before bumping a package version.",
	Run:   runCheck,
	Flags: []flag.Flag{dirFlag, packageFlag},
}

func runCheck(ctx context.Context, flags checkFlags) error {
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

	err = p.Store.Check(func(rel string) (string, error) {
		content, err := p.readPristine(in, rel)
		return string(content), err
	})
	if err != nil {
		return errors.Wrapf(err, "patch records do not apply to %s", flags.Package)
	}

	log.From(ctx).Successf("%s apply cleanly to %s", english.Plural(len(records), "patch record", ""), flags.Package)
	return nil
}
