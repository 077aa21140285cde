package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/speakeasy-api/vendorpatch/internal/archive"
	"github.com/speakeasy-api/vendorpatch/internal/download"
	"github.com/speakeasy-api/vendorpatch/internal/manifest"
	"github.com/speakeasy-api/vendorpatch/internal/patches"
)

// Kind groups run failures by what the operator has to fix.
type Kind string

const (
	NetworkFailure     Kind = "NetworkFailure"
	ArchiveCorrupt     Kind = "ArchiveCorrupt"
	ManifestParseError Kind = "ManifestParseError"
	PatchApplyFailure  Kind = "PatchApplyFailure"
	FilesystemError    Kind = "FilesystemError"
	// Internal covers cancellation and inconsistencies within vendorpatch itself.
	Internal Kind = "Internal"
)

// ErrUnknownPatch is returned for a requested patch that has no record.
var ErrUnknownPatch = errors.New("unknown patch")

// Error is every failure returned by Run. Every one of them is fatal.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an error chain to its Kind.
func Classify(err error) Kind {
	var runErr *Error
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var syscallErr *os.SyscallError

	switch {
	case errors.As(err, &runErr):
		return runErr.Kind
	case errors.Is(err, download.ErrNetwork):
		return NetworkFailure
	case errors.Is(err, archive.ErrCorrupt):
		return ArchiveCorrupt
	case errors.Is(err, manifest.ErrParse):
		return ManifestParseError
	case errors.Is(err, patches.ErrApply), errors.Is(err, patches.ErrMalformed), errors.Is(err, ErrUnknownPatch):
		return PatchApplyFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Internal
	case errors.As(err, &pathErr), errors.As(err, &linkErr), errors.As(err, &syscallErr):
		return FilesystemError
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrExist):
		return FilesystemError
	}

	return Internal
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var runErr *Error
	if errors.As(err, &runErr) {
		return err
	}
	return &Error{Kind: Classify(err), Err: err}
}
