// Package download fetches package archives from a registry into a local
// cache. A cached archive is never fetched again.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
	"github.com/speakeasy-api/vendorpatch/internal/log"
	"github.com/speakeasy-api/vendorpatch/internal/pkgref"
)

const (
	DefaultRegistryURL      = "https://static.crates.io/crates"
	DefaultArchiveExtension = ".crate"
	DefaultTimeout          = 60 * time.Second
)

// ErrNetwork is returned when the registry cannot be reached or does not
// answer with the archive.
var ErrNetwork = errors.New("network failure")

type Options struct {
	RegistryURL      string
	ArchiveExtension string
	CacheDir         string
	HTTPClient       *http.Client
}

// Provider resolves a package reference to an archive in the cache.
type Provider struct {
	opts Options
}

func New(opts Options) *Provider {
	if opts.RegistryURL == "" {
		opts.RegistryURL = DefaultRegistryURL
	}
	if opts.ArchiveExtension == "" {
		opts.ArchiveExtension = DefaultArchiveExtension
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Provider{opts: opts}
}

// ArchivePath is where the archive for ref is cached.
func (p *Provider) ArchivePath(ref pkgref.Reference) string {
	return filepath.Join(p.opts.CacheDir, ref.ArchiveName(p.opts.ArchiveExtension))
}

// URL is the registry location of the archive for ref.
func (p *Provider) URL(ref pkgref.Reference) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(p.opts.RegistryURL, "/"), ref.Name, ref.ArchiveName(p.opts.ArchiveExtension))
}

// Fetch returns the cached archive path for ref, downloading it first when
// it is not cached yet.
func (p *Provider) Fetch(ctx context.Context, ref pkgref.Reference) (string, error) {
	outPath := p.ArchivePath(ref)
	logger := log.From(ctx).With(zap.String("package", ref.String()))

	ok, err := fsutil.Exists(outPath)
	if err != nil {
		return "", err
	}
	if ok {
		logger.Info("Using cached archive", zap.String("path", outPath))
		return outPath, nil
	}

	if err := os.MkdirAll(p.opts.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	url := p.URL(ref)
	logger.Info("Downloading archive", zap.String("url", url))

	res, err := p.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var size int64
	err = fsutil.WriteAtomic(outPath, 0o644, func(w io.Writer) error {
		n, err := io.Copy(w, res.Body)
		size = n
		if err != nil {
			return fmt.Errorf("%w: failed to read %s: %w", ErrNetwork, url, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Info("Downloaded archive", zap.String("size", humanize.Bytes(uint64(size))))

	return outPath, nil
}

func (p *Provider) fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %w", ErrNetwork, url, err)
	}

	var resErr error
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		resErr = fmt.Errorf("%w: %s not found", ErrNetwork, url)
	default:
		resErr = fmt.Errorf("%w: failed to download %s: %s", ErrNetwork, url, res.Status)
	}

	if resErr != nil {
		res.Body.Close()
		return nil, resErr
	}

	return res, nil
}
