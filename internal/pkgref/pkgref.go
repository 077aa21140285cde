// Package pkgref identifies one immutable version of an upstream package.
package pkgref

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Reference names exactly one archive in the registry.
type Reference struct {
	Name    string
	Version string
}

// New validates name and version and returns the reference.
func New(name, ver string) (Reference, error) {
	if !namePattern.MatchString(name) {
		return Reference{}, fmt.Errorf("invalid package name %q", name)
	}
	if _, err := version.NewSemver(ver); err != nil {
		return Reference{}, fmt.Errorf("invalid version %q for package %s: %w", ver, name, err)
	}
	return Reference{Name: name, Version: ver}, nil
}

// Parse accepts the "name@version" form.
func Parse(s string) (Reference, error) {
	name, ver, ok := strings.Cut(s, "@")
	if !ok {
		return Reference{}, fmt.Errorf("package reference %q must be of the form name@version", s)
	}
	return New(name, ver)
}

func (r Reference) String() string {
	return r.Name + "@" + r.Version
}

// DirName is the name of the extracted pristine tree.
func (r Reference) DirName() string {
	return r.Name + "-" + r.Version
}

// ArchiveName is the file name of the archive, ext includes the leading dot.
func (r Reference) ArchiveName(ext string) string {
	return r.DirName() + ext
}
