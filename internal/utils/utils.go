package utils

import (
	"os"

	"golang.org/x/term"
)

// IsInteractive reports whether stdout is a terminal.
func IsInteractive() bool {
	return IsTerminal(os.Stdout)
}

func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// WantsColor reports whether automatic coloring should be used: stdout is a
// terminal and NO_COLOR is unset.
func WantsColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsInteractive()
}
