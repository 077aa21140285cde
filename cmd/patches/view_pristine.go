package patches

import (
	"context"
	"fmt"

	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
)

type viewPristineFlags struct {
	Dir     string `json:"dir"`
	File    string `json:"file"`
	Package string `json:"package"`
}

var viewPristineCmd = &model.ExecutableCommand[viewPristineFlags]{
	Usage: "view-pristine",
	Short: "Show the pristine (upstream) version of a vendored file",
	Run:   runViewPristine,
	Flags: []flag.Flag{dirFlag, fileFlag, packageFlag},
}

func runViewPristine(ctx context.Context, flags viewPristineFlags) error {
	p, err := loadProject(flags.Dir)
	if err != nil {
		return err
	}

	in, err := p.pristineTree(flags.Package)
	if err != nil {
		return err
	}

	content, err := p.readPristine(in, flags.File)
	if err != nil {
		return err
	}

	fmt.Print(string(content))
	return nil
}
