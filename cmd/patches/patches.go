package patches

import (
	"github.com/speakeasy-api/vendorpatch/internal/model"
)

var PatchesCmd = &model.CommandGroup{
	Usage:    "patches",
	Short:    "Inspect and manage the patch records kept for vendored files",
	Commands: []model.Command{viewPristineCmd, viewDiffCmd, checkCmd, restorePristineCmd},
}
