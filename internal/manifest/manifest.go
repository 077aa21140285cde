// Package manifest merges the dependency and feature tables of a vendored
// package's manifest into the consumer's manifest.
//
// The merge is additive: a key the consumer already declares is never
// replaced, whatever its value. Editing happens on the document text, so
// everything the merge does not add is kept byte for byte.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/speakeasy-api/vendorpatch/internal/fsutil"
)

const (
	DefaultManifestFile = "Cargo.toml"
	DefaultSourceRoot   = "src"
	DefaultEntryFile    = "lib.rs"
)

// Sections is the allow-list of tables copied from the package manifest, in
// the order they are merged.
var Sections = []string{"dependencies", "dev-dependencies", "features"}

// ErrParse is returned for a manifest that is not a valid document or whose
// merged sections have an unexpected shape.
var ErrParse = errors.New("manifest parse error")

type Options struct {
	// ManifestFile is the package manifest's file name inside the pristine tree.
	ManifestFile      string
	DefaultSourceRoot string
	DefaultEntryFile  string
}

// Merger merges package manifests into a consumer manifest.
type Merger struct {
	opts Options
}

// Layout is where a package keeps its library sources.
type Layout struct {
	// SourceRoot is slash-separated and relative to the package root; "" is the root itself.
	SourceRoot string
	// EntryFile is the library entry point's file name inside SourceRoot.
	EntryFile string
}

// Result reports what a merge did.
type Result struct {
	Layout
	// Added lists the keys inserted per section, sorted.
	Added   map[string][]string
	Changed bool
}

func New(opts Options) *Merger {
	if opts.ManifestFile == "" {
		opts.ManifestFile = DefaultManifestFile
	}
	if opts.DefaultSourceRoot == "" {
		opts.DefaultSourceRoot = DefaultSourceRoot
	}
	if opts.DefaultEntryFile == "" {
		opts.DefaultEntryFile = DefaultEntryFile
	}
	return &Merger{opts: opts}
}

// ManifestFile is the package manifest's file name.
func (m *Merger) ManifestFile() string {
	return m.opts.ManifestFile
}

// Merge copies allow-listed entries from the manifest in pristineDir into the
// manifest at consumerPath. A missing consumer manifest is treated as empty
// and only created when something is added.
func (m *Merger) Merge(consumerPath, pristineDir string) (*Result, error) {
	pkgPath := filepath.Join(pristineDir, m.opts.ManifestFile)
	pkgData, err := os.ReadFile(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package manifest: %w", err)
	}
	pkgDoc, err := decode(pkgPath, pkgData)
	if err != nil {
		return nil, err
	}

	layout, err := m.layout(pkgPath, pkgDoc)
	if err != nil {
		return nil, err
	}

	perm := os.FileMode(0o644)
	data, err := os.ReadFile(consumerPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	default:
		if info, err := os.Stat(consumerPath); err == nil {
			perm = info.Mode().Perm()
		}
	}
	doc, err := decode(consumerPath, data)
	if err != nil {
		return nil, err
	}

	text, err := parseDocument(data, Sections)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, consumerPath, err)
	}

	result := &Result{Layout: layout, Added: map[string][]string{}}
	for _, section := range Sections {
		src, ok := pkgDoc[section].(map[string]any)
		if !ok {
			continue
		}

		existing, exists := doc[section]
		dst := map[string]any{}
		if exists {
			dst, ok = existing.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s: [%s] is not a table", ErrParse, consumerPath, section)
			}
		}

		var missing []string
		for key := range src {
			if _, ok := dst[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) == 0 && exists {
			continue
		}
		sort.Strings(missing)

		entries := make([]string, 0, len(missing))
		for _, key := range missing {
			entry, err := renderEntry(key, src[key])
			if err != nil {
				return nil, fmt.Errorf("failed to render %s.%s: %w", section, key, err)
			}
			entries = append(entries, entry)
			dst[key] = src[key]
		}
		doc[section] = dst

		text.add(section, entries)
		if len(missing) > 0 {
			result.Added[section] = missing
		}
	}

	if !text.changed() {
		return result, nil
	}

	out := text.bytes()
	merged, err := decode(consumerPath, out)
	if err != nil {
		return nil, fmt.Errorf("merged manifest is invalid: %w", err)
	}
	if !reflect.DeepEqual(merged, doc) {
		return nil, fmt.Errorf("%w: %s: merged manifest does not read back as the merged tables", ErrParse, consumerPath)
	}
	if err := fsutil.WriteFileAtomic(consumerPath, out, perm); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	result.Changed = true

	return result, nil
}

// SourceLayout reads the library source root and entry file from the
// package manifest in pristineDir.
func (m *Merger) SourceLayout(pristineDir string) (Layout, error) {
	pkgPath := filepath.Join(pristineDir, m.opts.ManifestFile)
	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read package manifest: %w", err)
	}
	doc, err := decode(pkgPath, data)
	if err != nil {
		return Layout{}, err
	}
	return m.layout(pkgPath, doc)
}

func (m *Merger) layout(file string, doc map[string]any) (Layout, error) {
	layout := Layout{SourceRoot: m.opts.DefaultSourceRoot, EntryFile: m.opts.DefaultEntryFile}

	lib, ok := doc["lib"].(map[string]any)
	if !ok {
		return layout, nil
	}
	raw, ok := lib["path"]
	if !ok {
		return layout, nil
	}
	libPath, ok := raw.(string)
	if !ok || libPath == "" {
		return Layout{}, fmt.Errorf("%w: %s: [lib].path must be a non-empty string", ErrParse, file)
	}

	libPath = path.Clean(filepath.ToSlash(libPath))
	layout.EntryFile = path.Base(libPath)
	layout.SourceRoot = path.Dir(libPath)
	if layout.SourceRoot == "." {
		layout.SourceRoot = ""
	}

	return layout, nil
}

func decode(file string, data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, file, err)
	}
	return doc, nil
}

// renderEntry renders one "key = value" line. Nested tables are inline so the
// entry stays inside its section, and strings are basic (double quoted)
// strings as Cargo writes them.
func renderEntry(key string, value any) (string, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetTablesInline(true)
	if err := enc.Encode(map[string]any{key: value}); err != nil {
		return "", err
	}
	return requoteLiterals(buf.Bytes())
}

// requoteLiterals rewrites the single-line literal strings and keys of a
// rendered TOML fragment as basic strings.
func requoteLiterals(data []byte) (string, error) {
	p := unstable.Parser{}
	p.Reset(data)

	var literals []unstable.Range
	var visit func(n *unstable.Node)
	visit = func(n *unstable.Node) {
		if n.Kind == unstable.String || n.Kind == unstable.Key {
			raw := p.Raw(n.Raw)
			if len(raw) >= 2 && raw[0] == '\'' && !bytes.HasPrefix(raw, []byte("'''")) {
				literals = append(literals, n.Raw)
			}
		}
		for it := n.Children(); it.Next(); {
			visit(it.Node())
		}
	}
	for p.NextExpression() {
		visit(p.Expression())
	}
	if err := p.Error(); err != nil {
		return "", err
	}

	sort.Slice(literals, func(i, j int) bool { return literals[i].Offset < literals[j].Offset })

	var out strings.Builder
	last := uint32(0)
	for _, r := range literals {
		out.Write(data[last:r.Offset])
		out.WriteString(basicString(data[r.Offset+1 : r.Offset+r.Length-1]))
		last = r.Offset + r.Length
	}
	out.Write(data[last:])
	return out.String(), nil
}

func basicString(s []byte) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
