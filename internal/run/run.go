// Package run executes one vendoring run: lock the cache, fetch and extract
// the package, merge its manifest and reconcile the working tree.
package run

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/speakeasy-api/vendorpatch/internal/archive"
	"github.com/speakeasy-api/vendorpatch/internal/config"
	"github.com/speakeasy-api/vendorpatch/internal/download"
	"github.com/speakeasy-api/vendorpatch/internal/env"
	"github.com/speakeasy-api/vendorpatch/internal/locks"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/manifest"
	"github.com/speakeasy-api/vendorpatch/internal/patches"
	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
	"github.com/speakeasy-api/vendorpatch/internal/vendortree"
)

type Result struct {
	// Skipped is set when another process held the cache lock; the output of
	// an earlier run is left as it is.
	Skipped     bool
	Package     pkgref.Reference
	ArchivePath string
	PristineDir string
	Manifest    *manifest.Result
	Report      *vendortree.Report
}

// Components builds the pipeline pieces for cfg. The patches commands use
// them to look at the same cache and store a run works on.
type Components struct {
	Provider     *download.Provider
	Extractor    *archive.Extractor
	Merger       *manifest.Merger
	Store        *patches.Store
	Synchronizer *vendortree.Synchronizer
}

func NewComponents(cfg *config.Config) *Components {
	store := patches.NewStore(cfg.PatchesDir)
	return &Components{
		Provider: download.New(download.Options{
			RegistryURL:      cfg.RegistryURL,
			ArchiveExtension: cfg.ArchiveExtension,
			CacheDir:         cfg.CacheDir,
			HTTPClient:       &http.Client{Timeout: cfg.HTTPTimeout},
		}),
		Extractor: archive.New(archive.Options{CacheDir: cfg.CacheDir}),
		Merger: manifest.New(manifest.Options{
			ManifestFile:      cfg.ManifestFile,
			DefaultSourceRoot: cfg.DefaultSourceRoot,
			DefaultEntryFile:  cfg.EntryFile,
		}),
		Store: store,
		Synchronizer: vendortree.New(vendortree.Options{
			WorkTree:          cfg.SourceDir,
			Store:             store,
			EntryTarget:       cfg.EntryTarget,
			HandAuthoredEntry: cfg.EntryFile,
			ManifestFile:      cfg.ManifestFile,
		}),
	}
}

// Run vendors ref into the project described by cfg. Every name in patchIDs
// must already have a patch record, otherwise Run fails before touching
// anything. All returned errors are *Error.
func Run(ctx context.Context, cfg *config.Config, ref pkgref.Reference, patchIDs []string) (*Result, error) {
	logger := log.From(ctx).With(zap.String("package", ref.String()))
	ctx = log.With(ctx, logger)
	c := NewComponents(cfg)

	if err := checkPatches(c.Store, patchIDs); err != nil {
		return nil, wrap(err)
	}

	if !env.IsConcurrencyLockDisabled() {
		mu := locks.New(locks.Opts{Dir: cfg.CacheDir, Name: cfg.LockFile})
		ok, err := mu.TryLock()
		if err != nil {
			return nil, wrap(err)
		}
		if !ok {
			logger.Warn("Another vendorpatch run holds the cache lock, using the output of a previous run", zap.String("lock", mu.Path()))
			return &Result{Skipped: true, Package: ref}, nil
		}
		defer func() {
			if err := mu.Unlock(); err != nil {
				logger.Warn("Failed to release the cache lock", zap.Error(err))
			}
		}()
	}

	result := &Result{Package: ref}

	archivePath, err := c.Provider.Fetch(ctx, ref)
	if err != nil {
		return nil, wrap(err)
	}
	result.ArchivePath = archivePath

	pristineDir, err := c.Extractor.Extract(ctx, archivePath, ref)
	if err != nil {
		return nil, wrap(err)
	}
	result.PristineDir = pristineDir

	merged, err := c.Merger.Merge(cfg.ManifestPath(), pristineDir)
	if err != nil {
		return nil, wrap(err)
	}
	result.Manifest = merged
	for _, section := range manifest.Sections {
		if keys := merged.Added[section]; len(keys) > 0 {
			logger.Info("Merged manifest entries", zap.String("section", section), zap.Strings("keys", keys))
		}
	}

	report, err := c.Synchronizer.Sync(ctx, vendortree.Input{
		PristineDir: pristineDir,
		SourceRoot:  merged.SourceRoot,
		EntryFile:   merged.EntryFile,
	})
	if err != nil {
		return nil, wrap(err)
	}
	result.Report = report

	return result, nil
}

func checkPatches(store *patches.Store, patchIDs []string) error {
	var result *multierror.Error
	for _, id := range patchIDs {
		_, ok, err := store.Read(id)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%w: no patch record for %s at %s", ErrUnknownPatch, id, store.Path(id)))
		}
	}
	return result.ErrorOrNil()
}
