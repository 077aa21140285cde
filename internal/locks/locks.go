// Package locks provides inter-process mutual exclusion for vendoring runs.
package locks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Mutex provides file-based mutual exclusion between processes.
// The lock is automatically released if the holding process dies.
//
// See:
//   - Linux: https://linux.die.net/man/2/flock
//   - Windows: https://docs.microsoft.com/en-us/windows/win32/api/fileapi/nf-fileapi-lockfileex
type Mutex struct {
	Opts
	mu *flock.Flock
}

type Opts struct {
	// Dir holds the lock file. Defaults to the OS temp dir.
	Dir  string
	Name string
}

func DefaultOpts() Opts {
	return Opts{Name: "vendorpatch.lock"}
}

// New creates a mutex for the lock file described by o. The file itself is
// created on the first TryLock.
func New(o Opts) *Mutex {
	if o.Name == "" {
		o.Name = DefaultOpts().Name
	}
	if o.Dir == "" {
		o.Dir = os.TempDir()
	}

	return &Mutex{Opts: o, mu: flock.New(filepath.Join(o.Dir, o.Name))}
}

// Path is the lock file location.
func (m *Mutex) Path() string {
	return m.mu.Path()
}

// TryLock makes a single attempt at the lock and never waits. It reports
// false when another process holds it.
func (m *Mutex) TryLock() (bool, error) {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := m.mu.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock (pid %d): %w", os.Getpid(), err)
	}
	return ok, nil
}

func (m *Mutex) Unlock() error {
	return m.mu.Unlock()
}
