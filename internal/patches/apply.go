package patches

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when a patch record is not a readable unified diff.
	ErrMalformed = errors.New("malformed patch")
	// ErrApply is returned when a hunk's context no longer matches the text.
	ErrApply = errors.New("patch does not apply")
)

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Patch is a parsed single-file unified diff.
type Patch struct {
	OldName string
	NewName string
	Hunks   []Hunk
}

// Hunk is one @@ section. Line texts keep their newline unless the file line
// had none.
type Hunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	Lines              []Line
}

// Line is a hunk line: Op is ' ', '-' or '+'.
type Line struct {
	Op   byte
	Text string
}

// Stats counts the added and removed lines.
func (p *Patch) Stats() DiffStats {
	var stats DiffStats
	for _, h := range p.Hunks {
		for _, l := range h.Lines {
			switch l.Op {
			case '+':
				stats.Added++
			case '-':
				stats.Removed++
			}
		}
	}
	return stats
}

func (h Hunk) oldSide() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Op != '+' {
			out = append(out, l.Text)
		}
	}
	return out
}

func (h Hunk) newSide() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Op != '-' {
			out = append(out, l.Text)
		}
	}
	return out
}

// Parse reads a unified diff for a single file. Text before the first hunk
// (diff, index, ---, +++ lines) is treated as header. An empty input is a
// valid patch with no hunks.
func Parse(text string) (*Patch, error) {
	p := &Patch{}
	lines := splitLines(text)

	i := 0
	for ; i < len(lines) && !strings.HasPrefix(lines[i], "@@"); i++ {
		line := strings.TrimRight(lines[i], "\r\n")
		switch {
		case strings.HasPrefix(line, "--- "):
			p.OldName = strings.TrimPrefix(line, "--- ")
		case strings.HasPrefix(line, "+++ "):
			p.NewName = strings.TrimPrefix(line, "+++ ")
		}
	}

	for i < len(lines) {
		header := strings.TrimRight(lines[i], "\r\n")
		m := hunkHeaderPattern.FindStringSubmatch(header)
		if m == nil {
			return nil, fmt.Errorf("%w: unexpected line %d: %q", ErrMalformed, i+1, header)
		}
		h := Hunk{
			OldStart: atoi(m[1], 0),
			OldLines: atoi(m[2], 1),
			NewStart: atoi(m[3], 0),
			NewLines: atoi(m[4], 1),
		}
		i++

		oldSeen, newSeen := 0, 0
		for oldSeen < h.OldLines || newSeen < h.NewLines {
			if i >= len(lines) {
				return nil, fmt.Errorf("%w: hunk %q is truncated", ErrMalformed, header)
			}
			line := lines[i]
			i++

			if strings.HasPrefix(line, `\`) {
				if err := dropNewline(&h); err != nil {
					return nil, err
				}
				continue
			}

			op, body := byte(' '), ""
			if line != "\n" {
				op, body = line[0], line[1:]
			}
			if !strings.HasSuffix(body, "\n") {
				body += "\n"
			}

			switch op {
			case ' ':
				oldSeen++
				newSeen++
			case '-':
				oldSeen++
			case '+':
				newSeen++
			default:
				return nil, fmt.Errorf("%w: unexpected line %d in hunk %q: %q", ErrMalformed, i, header, line)
			}
			h.Lines = append(h.Lines, Line{Op: op, Text: body})
		}

		if oldSeen != h.OldLines || newSeen != h.NewLines {
			return nil, fmt.Errorf("%w: hunk %q line counts do not match its header", ErrMalformed, header)
		}

		// the marker for the hunk's last line comes after the counted lines
		for i < len(lines) && strings.HasPrefix(lines[i], `\`) {
			if err := dropNewline(&h); err != nil {
				return nil, err
			}
			i++
		}

		p.Hunks = append(p.Hunks, h)
	}

	return p, nil
}

func dropNewline(h *Hunk) error {
	if len(h.Lines) == 0 {
		return fmt.Errorf("%w: no-newline marker without a preceding line", ErrMalformed)
	}
	last := &h.Lines[len(h.Lines)-1]
	last.Text = strings.TrimSuffix(last.Text, "\n")
	return nil
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Apply applies p to text. Every hunk must match exactly; a hunk is looked
// for at its recorded line first and then at growing offsets, never before
// the end of the previous hunk.
func Apply(p *Patch, text string) (string, error) {
	src := splitLines(text)
	out := make([]string, 0, len(src))
	pos := 0

	for n, h := range p.Hunks {
		old := h.oldSide()

		hint := h.OldStart - 1
		if h.OldLines == 0 {
			hint = h.OldStart
		}

		at, ok := locate(src, old, hint, pos)
		if !ok {
			return "", fmt.Errorf("%w: hunk %d (@@ -%d,%d +%d,%d @@) does not match", ErrApply, n+1, h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		}

		out = append(out, src[pos:at]...)
		out = append(out, h.newSide()...)
		pos = at + len(old)
	}
	out = append(out, src[pos:]...)

	return strings.Join(out, ""), nil
}

// ApplyText parses and applies a patch in one step.
func ApplyText(patchText, text string) (string, error) {
	p, err := Parse(patchText)
	if err != nil {
		return "", err
	}
	return Apply(p, text)
}

func locate(src, old []string, hint, floor int) (int, bool) {
	last := len(src) - len(old)
	if last < floor {
		return 0, false
	}
	hint = max(floor, min(hint, last))

	for offset := 0; ; offset++ {
		below, above := hint-offset, hint+offset
		if below < floor && above > last {
			return 0, false
		}
		if above <= last && matchAt(src, old, above) {
			return above, true
		}
		if offset > 0 && below >= floor && matchAt(src, old, below) {
			return below, true
		}
	}
}

func matchAt(src, old []string, at int) bool {
	for i, line := range old {
		if src[at+i] != line {
			return false
		}
	}
	return true
}
