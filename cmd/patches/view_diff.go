package patches

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/speakeasy-api/vendorpatch/internal/charm"
	"github.com/speakeasy-api/vendorpatch/internal/model"
	"github.com/speakeasy-api/vendorpatch/internal/model/flag"
	"github.com/speakeasy-api/vendorpatch/internal/utils"
)

var viewDiffCmd = &model.CommandGroup{
	Usage:    "view-diff",
	Short:    "View the recorded edits to vendored files",
	Commands: []model.Command{viewDiffFileCmd, viewDiffFilesCmd},
}

type viewDiffFileFlags struct {
	Dir   string `json:"dir"`
	File  string `json:"file"`
	Color string `json:"color"`
}

var viewDiffFileCmd = &model.ExecutableCommand[viewDiffFileFlags]{
	Usage: "file",
	Short: "Show the patch recorded for a vendored file",
	Run:   runViewDiffFile,
	Flags: []flag.Flag{
		dirFlag,
		fileFlag,
		flag.EnumFlag{
			Name:          "color",
			Description:   "when to color the diff",
			DefaultValue:  "auto",
			AllowedValues: []string{"auto", "always", "never"},
		},
	},
}

func runViewDiffFile(ctx context.Context, flags viewDiffFileFlags) error {
	p, err := loadProject(flags.Dir)
	if err != nil {
		return err
	}

	text, ok, err := p.Store.Read(flags.File)
	if err != nil {
		return err
	}
	if !ok || strings.TrimSpace(text) == "" {
		fmt.Println("No custom code recorded for this file.")
		return nil
	}

	var renderer *lipgloss.Renderer
	switch {
	case flags.Color == "always":
		renderer = charm.ForcedColorRenderer(os.Stdout)
	case flags.Color == "auto" && utils.WantsColor():
		renderer = lipgloss.DefaultRenderer()
	default:
		fmt.Print(text)
		return nil
	}

	styles := charm.NewDiffStyles(renderer)
	for _, line := range strings.SplitAfter(text, "\n") {
		fmt.Print(colorize(styles, line))
	}
	return nil
}

func colorize(styles charm.DiffStyles, line string) string {
	body := strings.TrimSuffix(line, "\n")
	nl := line[len(body):]

	switch {
	case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"):
		return styles.FileHeader.Render(body) + nl
	case strings.HasPrefix(body, "@@"):
		return styles.HunkRange.Render(body) + nl
	case strings.HasPrefix(body, "+"):
		return styles.Added.Render(body) + nl
	case strings.HasPrefix(body, "-"):
		return styles.Removed.Render(body) + nl
	case strings.HasPrefix(body, `\`):
		return styles.Marker.Render(body) + nl
	default:
		return line
	}
}

type viewDiffFilesFlags struct {
	Dir  string `json:"dir"`
	JSON bool   `json:"json"`
}

var viewDiffFilesCmd = &model.ExecutableCommand[viewDiffFilesFlags]{
	Usage: "files",
	Short: "List vendored files that carry a patch record",
	Run:   runViewDiffFiles,
	Flags: []flag.Flag{
		dirFlag,
		flag.BooleanFlag{
			Name:        "json",
			Description: "print the records as JSON",
		},
	},
}

type recordJSON struct {
	Path    string `json:"path"`
	File    string `json:"file"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

func runViewDiffFiles(ctx context.Context, flags viewDiffFilesFlags) error {
	p, err := loadProject(flags.Dir)
	if err != nil {
		return err
	}

	records, err := p.Store.List()
	if err != nil {
		return err
	}

	if flags.JSON {
		out := make([]recordJSON, 0, len(records))
		for _, record := range records {
			out = append(out, recordJSON{
				Path:    record.RelPath,
				File:    record.File,
				Added:   record.Stats.Added,
				Removed: record.Stats.Removed,
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No files with custom code recorded.")
		return nil
	}

	fmt.Println("Files with custom code:")
	for _, record := range records {
		if record.Stats.Added+record.Stats.Removed == 0 {
			fmt.Printf("  ? %s (empty record)\n", record.RelPath)
			continue
		}
		fmt.Printf("  M %s (+%d/-%d)\n", record.RelPath, record.Stats.Added, record.Stats.Removed)
	}

	return nil
}
