// Package archive unpacks package archives into pristine trees in the cache.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
)

// ErrCorrupt is returned for an archive that cannot be decompressed or
// unpacked, or that holds entries escaping the destination.
var ErrCorrupt = errors.New("archive corrupt")

type Options struct {
	CacheDir string
}

// Extractor turns a gzip compressed tarball into <cache>/<name-version>/.
// An extracted tree is never touched again.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Dir is where the pristine tree for ref lives once extracted.
func (e *Extractor) Dir(ref pkgref.Reference) string {
	return filepath.Join(e.opts.CacheDir, ref.DirName())
}

// Extract unpacks archivePath unless the pristine tree for ref already
// exists, and returns the tree's path. The tree only appears once fully
// unpacked.
func (e *Extractor) Extract(ctx context.Context, archivePath string, ref pkgref.Reference) (string, error) {
	dest := e.Dir(ref)
	logger := log.From(ctx).With(zap.String("package", ref.String()))

	ok, err := fsutil.Exists(dest)
	if err != nil {
		return "", err
	}
	if ok {
		logger.Info("Using extracted sources", zap.String("path", dest))
		return dest, nil
	}

	if err := os.MkdirAll(e.opts.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.MkdirTemp(e.opts.CacheDir, ".extract-"+ref.DirName()+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := extractTarGZ(ctx, archivePath, tmp); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", archivePath, err)
	}

	root, err := packageRoot(tmp, ref)
	if err != nil {
		return "", err
	}
	if err := os.Rename(root, dest); err != nil {
		return "", fmt.Errorf("failed to move extracted sources into place: %w", err)
	}

	logger.Info("Extracted sources", zap.String("path", dest))

	return dest, nil
}

// packageRoot picks the single top-level name-version/ directory that crate
// archives carry, or the extraction directory itself for any other layout.
func packageRoot(dir string, ref pkgref.Reference) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() && entries[0].Name() == ref.DirName() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func extractTarGZ(ctx context.Context, archive, dest string) error {
	file, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer gz.Close()

	t := tar.NewReader(gz)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		target, err := entryPath(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(t, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, target, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		default:
			// devices, fifos, hard links and pax metadata carry no source
		}
	}

	return nil
}

func entryPath(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: illegal file path: %s", ErrCorrupt, name)
	}
	target := filepath.Join(dest, filepath.Clean(filepath.FromSlash(name)))
	if target != dest && !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: illegal file path: %s", ErrCorrupt, name)
	}
	return target, nil
}

func checkLink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: illegal link target: %s", ErrCorrupt, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !strings.HasPrefix(resolved, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: illegal link target: %s", ErrCorrupt, linkname)
	}
	return nil
}

func writeEntry(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chmod(target, perm)
}
