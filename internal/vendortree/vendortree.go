// Package vendortree converges a consumer's working tree with a pristine
// upstream tree.
//
// Each vendored text file is fully described by three texts: its pristine
// content, the optional patch record, and the local content. A file absent
// locally is written as pristine with its record applied. A local file that
// differs from that baseline is authoritative: it is left alone and its record
// is regenerated as a diff from pristine to the local content, so it can be
// replayed onto a newer upstream version later. Binary files are copied once
// and never diffed.
package vendortree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/patches"
)

const (
	DefaultEntryTarget       = "lib.crate.rs"
	DefaultHandAuthoredEntry = "lib.rs"
	IgnoreMarker             = ".gitignore"
)

// ErrRoundTrip is returned when a freshly created patch does not reproduce
// the local content it was made from.
var ErrRoundTrip = errors.New("patch does not reproduce local content")

type Options struct {
	// WorkTree is the consumer's source directory that receives vendored files.
	WorkTree string
	Store    *patches.Store
	// EntryTarget is the name the package entry file is written under, so it
	// never collides with the consumer's own entry file.
	EntryTarget string
	// HandAuthoredEntry is the consumer-owned file the ignore marker exempts.
	HandAuthoredEntry string
	// ManifestFile is skipped when the source root is the package root.
	ManifestFile string
}

// Input describes one pristine tree.
type Input struct {
	PristineDir string
	// SourceRoot is slash-separated and relative to PristineDir.
	SourceRoot string
	// EntryFile is the package entry point inside SourceRoot.
	EntryFile string
}

// Report lists relative file paths by what happened to them.
type Report struct {
	// Created holds text files written because they were absent locally.
	Created []string
	// Copied holds binary files copied because they were absent locally.
	Copied []string
	// Unchanged holds text files already equal to their baseline.
	Unchanged []string
	// BinaryKept holds binary files left alone because a local copy exists.
	BinaryKept []string
	// Patched holds files whose baseline came from a patch record.
	Patched []string
	// Recorded holds files whose patch record was written this run.
	Recorded []string
	// StalePatches holds records that no longer describe an edit: the file is
	// gone upstream or the record is empty. They are never removed by Sync.
	StalePatches []string
}

// Changed reports whether the run wrote anything.
func (r *Report) Changed() bool {
	return len(r.Created) > 0 || len(r.Copied) > 0 || len(r.Recorded) > 0
}

// Synchronizer runs the reconciliation for one working tree and patch store.
type Synchronizer struct {
	opts Options
}

func New(opts Options) *Synchronizer {
	if opts.EntryTarget == "" {
		opts.EntryTarget = DefaultEntryTarget
	}
	if opts.HandAuthoredEntry == "" {
		opts.HandAuthoredEntry = DefaultHandAuthoredEntry
	}
	return &Synchronizer{opts: opts}
}

// TargetRel maps a relative file path to its path inside the working tree.
func (s *Synchronizer) TargetRel(in Input, rel string) string {
	if rel == in.EntryFile {
		return s.opts.EntryTarget
	}
	return rel
}

// Target is the working tree location of rel.
func (s *Synchronizer) Target(in Input, rel string) string {
	return filepath.Join(s.opts.WorkTree, filepath.FromSlash(s.TargetRel(in, rel)))
}

// PristinePath is the location of rel inside the pristine tree.
func (s *Synchronizer) PristinePath(in Input, rel string) string {
	return filepath.Join(in.PristineDir, filepath.FromSlash(in.SourceRoot), filepath.FromSlash(rel))
}

// Sync reconciles every file of the pristine tree with the working tree.
// It stops at the first failure; files handled before it stay converged.
func (s *Synchronizer) Sync(ctx context.Context, in Input) (*Report, error) {
	logger := log.From(ctx)

	if err := s.prepare(); err != nil {
		return nil, err
	}

	pristineFiles, err := s.pristineFiles(in)
	if err != nil {
		return nil, err
	}
	localFiles, err := listFiles(s.opts.WorkTree)
	if err != nil {
		return nil, fmt.Errorf("failed to list working tree: %w", err)
	}
	local := lo.SliceToMap(localFiles, func(rel string) (string, bool) { return rel, true })

	report := &Report{}
	for _, rel := range pristineFiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.reconcile(ctx, in, rel, local, report); err != nil {
			return report, err
		}
	}

	records, err := s.opts.Store.List()
	if err != nil {
		return report, fmt.Errorf("failed to list patches: %w", err)
	}
	for _, record := range records {
		stale := !lo.Contains(pristineFiles, record.RelPath)
		if !stale {
			p, _, err := s.opts.Store.Load(record.RelPath)
			stale = err == nil && len(p.Hunks) == 0
		}
		if stale {
			report.StalePatches = append(report.StalePatches, record.RelPath)
			logger.WithAssociatedFile(record.File).Warn("Patch no longer describes an edit", zap.String("file", record.RelPath))
		}
	}

	return report, nil
}

func (s *Synchronizer) reconcile(ctx context.Context, in Input, rel string, local map[string]bool, report *Report) error {
	logger := log.From(ctx).With(zap.String("file", rel))

	src := s.PristinePath(in, rel)
	pristine, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read pristine %s: %w", rel, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()

	target := s.Target(in, rel)

	if patches.IsBinary(pristine) {
		if local[s.TargetRel(in, rel)] {
			report.BinaryKept = append(report.BinaryKept, rel)
			return nil
		}
		if err := fsutil.WriteFileAtomic(target, pristine, perm); err != nil {
			return fmt.Errorf("failed to copy %s: %w", rel, err)
		}
		report.Copied = append(report.Copied, rel)
		logger.Info("Copied binary file")
		return nil
	}

	baseline := string(pristine)
	record, ok, err := s.opts.Store.Load(rel)
	if err != nil {
		return fmt.Errorf("failed to read patch for %s: %w", rel, err)
	}
	if ok {
		baseline, err = patches.Apply(record, string(pristine))
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
		report.Patched = append(report.Patched, rel)
	}

	current, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		if err := fsutil.WriteFileAtomic(target, []byte(baseline), perm); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
		report.Created = append(report.Created, rel)
		logger.Info("Vendored file")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}

	if bytes.Equal(current, []byte(baseline)) {
		report.Unchanged = append(report.Unchanged, rel)
		return nil
	}

	diff, err := patches.CreatePatch(rel, string(pristine), string(current))
	if err != nil {
		return fmt.Errorf("failed to diff %s: %w", rel, err)
	}
	replayed, err := patches.ApplyText(diff, string(pristine))
	if err != nil || replayed != string(current) {
		return fmt.Errorf("%w: %s", ErrRoundTrip, rel)
	}
	if err := s.opts.Store.Write(rel, diff); err != nil {
		return fmt.Errorf("failed to write patch for %s: %w", rel, err)
	}
	report.Recorded = append(report.Recorded, rel)
	logger.Info("Recorded local edit", zap.String("patch", s.opts.Store.Path(rel)))

	return nil
}

// prepare creates the working tree and patch directory and the ignore marker
// declaring everything but the hand-authored entry as generated. An existing
// marker is left as the consumer wrote it.
func (s *Synchronizer) prepare() error {
	if err := os.MkdirAll(s.opts.WorkTree, 0o755); err != nil {
		return fmt.Errorf("failed to create working tree: %w", err)
	}
	if err := os.MkdirAll(s.opts.Store.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create patch directory: %w", err)
	}

	marker := filepath.Join(s.opts.WorkTree, IgnoreMarker)
	ok, err := fsutil.Exists(marker)
	if err != nil || ok {
		return err
	}
	content := fmt.Sprintf("*\n!%s\n", s.opts.HandAuthoredEntry)
	if err := fsutil.WriteFileAtomic(marker, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write ignore marker: %w", err)
	}
	return nil
}

func (s *Synchronizer) pristineFiles(in Input) ([]string, error) {
	root := filepath.Join(in.PristineDir, filepath.FromSlash(in.SourceRoot))
	files, err := listFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list pristine sources: %w", err)
	}

	if path.Clean("/"+in.SourceRoot) == "/" && s.opts.ManifestFile != "" {
		files = lo.Without(files, s.opts.ManifestFile)
	}
	return files, nil
}

// listFiles returns the slash-separated paths of all regular files under
// root, sorted. A missing root holds no files.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
