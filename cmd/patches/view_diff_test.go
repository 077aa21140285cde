package patches

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/speakeasy-api/vendorpatch/internal/charm"
)

func TestColorize_ForcedColor(t *testing.T) {
	t.Parallel()

	styles := charm.NewDiffStyles(charm.ForcedColorRenderer(io.Discard))

	tests := []struct {
		name    string
		line    string
		colored bool
	}{
		{name: "added", line: "+added line\n", colored: true},
		{name: "removed", line: "-removed line\n", colored: true},
		{name: "hunk", line: "@@ -1,2 +1,2 @@\n", colored: true},
		{name: "file header", line: "+++ b/src/util.rs\n", colored: true},
		{name: "no newline marker", line: "\\ No newline at end of file", colored: true},
		{name: "context", line: " unchanged\n"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := colorize(styles, tc.line)
			if !tc.colored {
				assert.Equal(t, tc.line, got)
				return
			}

			body := strings.TrimSuffix(tc.line, "\n")
			assert.Contains(t, got, "\x1b[")
			assert.Contains(t, got, body)
			assert.Equal(t, strings.HasSuffix(tc.line, "\n"), strings.HasSuffix(got, "\n"))
		})
	}
}
