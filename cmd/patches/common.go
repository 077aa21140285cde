package patches

import (
	"fmt"
	"os"

	"github.com/speakeasy-api/vendorpatch/internal/config"
	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
	"github.com/speakeasy-api/vendorpatch/internal/run"
	"github.com/speakeasy-api/vendorpatch/internal/vendortree"
)

var (
	dirFlag = flag.StringFlag{
		Name:         "dir",
		Shorthand:    "d",
		Description:  "project directory containing the consumer manifest",
		DefaultValue: ".",
	}
	fileFlag = flag.StringFlag{
		Name:        "file",
		Shorthand:   "f",
		Description: "path of the vendored file relative to the package source root (e.g. util.rs)",
		Required:    true,
	}
	packageFlag = flag.StringFlag{
		Name:        "package",
		Shorthand:   "p",
		Description: "vendored package as name@version, its pristine tree must already be extracted",
		Required:    true,
	}
)

// project is the configuration and pipeline pieces of one project directory.
type project struct {
	cfg *config.Config
	*run.Components
}

func loadProject(dir string) (*project, error) {
	cfg, err := config.Load(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", dir, err)
	}
	return &project{cfg: cfg, Components: run.NewComponents(cfg)}, nil
}

// pristineTree locates the extracted tree of pkg in the cache. Unlike a
// sync it never downloads anything.
func (p *project) pristineTree(pkg string) (vendortree.Input, error) {
	ref, err := pkgref.Parse(pkg)
	if err != nil {
		return vendortree.Input{}, err
	}

	dir := p.Extractor.Dir(ref)
	ok, err := fsutil.Exists(dir)
	if err != nil {
		return vendortree.Input{}, err
	}
	if !ok {
		return vendortree.Input{}, fmt.Errorf("no pristine tree for %s at %s, run `vendorpatch sync %s` first", ref, dir, ref)
	}

	layout, err := p.Merger.SourceLayout(dir)
	if err != nil {
		return vendortree.Input{}, err
	}

	return vendortree.Input{
		PristineDir: dir,
		SourceRoot:  layout.SourceRoot,
		EntryFile:   layout.EntryFile,
	}, nil
}

func (p *project) readPristine(in vendortree.Input, rel string) ([]byte, error) {
	content, err := os.ReadFile(p.Synchronizer.PristinePath(in, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read pristine %s: %w", rel, err)
	}
	return content, nil
}

// restoreFileToPristine overwrites the vendored copy of rel with the pristine
// content, preserving existing file permissions, and drops its patch record.
func (p *project) restoreFileToPristine(in vendortree.Input, rel string) error {
	content, err := p.readPristine(in, rel)
	if err != nil {
		return err
	}

	fullPath := p.Synchronizer.Target(in, rel)

	perm := os.FileMode(0o644)
	if info, err := os.Stat(fullPath); err == nil {
		perm = info.Mode().Perm()
	}

	if err := fsutil.WriteFileAtomic(fullPath, content, perm); err != nil {
		return fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	return p.Store.Remove(rel)
}
