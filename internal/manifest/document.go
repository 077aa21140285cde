package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
)

// sectionForm is the way a top-level table is written in a manifest.
type sectionForm int

const (
	// formAbsent: no definition, or only sub-table headers like [dependencies.serde]
	formAbsent sectionForm = iota
	// formHeader: a [dependencies] header and its block
	formHeader
	// formInline: dependencies = { ... }
	formInline
	// formDotted: root keys like dependencies.serde = "1"
	formDotted
)

type section struct {
	form sectionForm
	// at is the byte offset new entries are written at. For inline tables it
	// is just past the last entry, or past the opening brace when empty.
	at int
	// end is the offset of the closing brace of an inline table.
	end   int
	empty bool
}

// expression is one top-level line of the document as the parser saw it.
type expression struct {
	kind  unstable.Kind
	key   []string
	start int // offset of the line the expression starts on
	// inline and emptyInline describe an inline table value
	inline, emptyInline bool
	commAt              int // offset of a trailing comment, or -1
}

// document is a consumer manifest edited as text. Offsets come from the TOML
// parser, so headers and keys are never confused with string or array content.
type document struct {
	data     []byte
	sections map[string]section
	edits    []edit
}

type edit struct {
	at, end int
	text    string
}

func parseDocument(data []byte, names []string) (*document, error) {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(append([]byte(nil), data...), '\n')
	}

	exprs, err := scanExpressions(data)
	if err != nil {
		return nil, err
	}

	d := &document{data: data, sections: map[string]section{}}
	for _, name := range names {
		s, err := d.locate(exprs, name)
		if err != nil {
			return nil, err
		}
		d.sections[name] = s
	}
	return d, nil
}

func scanExpressions(data []byte) ([]expression, error) {
	p := unstable.Parser{KeepComments: true}
	p.Reset(data)

	var exprs []expression
	for p.NextExpression() {
		n := p.Expression()
		e := expression{kind: n.Kind, commAt: -1}

		switch n.Kind {
		case unstable.Comment:
			e.start = lineStart(data, int(n.Raw.Offset))
		case unstable.Table, unstable.ArrayTable, unstable.KeyValue:
			it := n.Key()
			for it.Next() {
				k := it.Node()
				if len(e.key) == 0 {
					e.start = lineStart(data, int(k.Raw.Offset))
				}
				e.key = append(e.key, string(k.Data))
			}
			if n.Kind == unstable.KeyValue && n.Value().Kind == unstable.InlineTable {
				e.inline = true
				e.emptyInline = n.Value().Child() == nil
			}
			if c := n.Next(); c != nil && c.Kind == unstable.Comment {
				e.commAt = int(c.Raw.Offset)
			}
		default:
			continue
		}
		exprs = append(exprs, e)
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return exprs, nil
}

func (d *document) locate(exprs []expression, name string) (section, error) {
	next := func(i int) int {
		if i+1 < len(exprs) {
			return exprs[i+1].start
		}
		return len(d.data)
	}
	isHeader := func(e expression) bool {
		return e.kind == unstable.Table || e.kind == unstable.ArrayTable
	}

	for i, e := range exprs {
		if e.kind != unstable.Table || !sameKey(e.key, name) {
			continue
		}
		last := i
		for j := i + 1; j < len(exprs) && !isHeader(exprs[j]); j++ {
			if exprs[j].kind == unstable.KeyValue {
				last = j
			}
		}
		return section{form: formHeader, at: d.trimBlankLines(next(last), exprs[last].start)}, nil
	}

	dotted := -1
	for i, e := range exprs {
		if isHeader(e) {
			break
		}
		if e.kind != unstable.KeyValue || len(e.key) == 0 || e.key[0] != name {
			continue
		}
		if len(e.key) > 1 {
			dotted = i
			continue
		}
		if !e.inline {
			return section{}, fmt.Errorf("%s is not a table", name)
		}

		end := next(i)
		if e.commAt >= 0 {
			end = e.commAt
		}
		closing := bytes.LastIndexByte(d.data[e.start:end], '}')
		if closing < 0 {
			return section{}, fmt.Errorf("cannot find the end of inline table %s", name)
		}
		closing += e.start
		at := closing
		for at > e.start && isSpace(d.data[at-1]) {
			at--
		}
		return section{form: formInline, at: at, end: closing, empty: e.emptyInline}, nil
	}
	if dotted >= 0 {
		return section{form: formDotted, at: d.trimBlankLines(next(dotted), exprs[dotted].start)}, nil
	}

	return section{form: formAbsent, at: len(d.data)}, nil
}

// add queues entry lines (each "key = value\n") for section name. With no
// entries it only makes sure the section exists.
func (d *document) add(name string, entries []string) {
	s := d.sections[name]

	switch s.form {
	case formHeader:
		if len(entries) > 0 {
			d.edits = append(d.edits, edit{at: s.at, end: s.at, text: strings.Join(entries, "")})
		}
	case formDotted:
		if len(entries) == 0 {
			return
		}
		var b strings.Builder
		for _, entry := range entries {
			b.WriteString(name + "." + entry)
		}
		d.edits = append(d.edits, edit{at: s.at, end: s.at, text: b.String()})
	case formInline:
		if len(entries) == 0 {
			return
		}
		pairs := make([]string, len(entries))
		for i, entry := range entries {
			pairs[i] = strings.TrimSuffix(entry, "\n")
		}
		if s.empty {
			d.edits = append(d.edits, edit{at: s.at, end: s.end, text: " " + strings.Join(pairs, ", ") + " "})
		} else {
			d.edits = append(d.edits, edit{at: s.at, end: s.at, text: ", " + strings.Join(pairs, ", ")})
		}
	default:
		var b strings.Builder
		if d.appendsAtEnd() || (len(bytes.TrimSpace(d.data)) > 0 && !bytes.HasSuffix(d.data, []byte("\n\n"))) {
			b.WriteString("\n")
		}
		b.WriteString("[" + name + "]\n")
		b.WriteString(strings.Join(entries, ""))
		d.edits = append(d.edits, edit{at: len(d.data), end: len(d.data), text: b.String()})
	}
}

func (d *document) appendsAtEnd() bool {
	for _, e := range d.edits {
		if e.at == len(d.data) {
			return true
		}
	}
	return false
}

func (d *document) changed() bool {
	return len(d.edits) > 0
}

// bytes applies the queued edits. Edits at the same offset keep the order
// they were added in.
func (d *document) bytes() []byte {
	edits := append([]edit(nil), d.edits...)
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].at < edits[j].at })

	var out bytes.Buffer
	last := 0
	for _, e := range edits {
		out.Write(d.data[last:e.at])
		out.WriteString(e.text)
		last = e.end
	}
	out.Write(d.data[last:])
	return out.Bytes()
}

// trimBlankLines moves at back over blank lines, without going above floor,
// so a blank separator before the next block stays after the new entries.
func (d *document) trimBlankLines(at, floor int) int {
	for at > floor {
		start := lineStart(d.data, at-1)
		if start < floor || len(bytes.TrimSpace(d.data[start:at])) > 0 {
			break
		}
		at = start
	}
	return at
}

func sameKey(key []string, name string) bool {
	return len(key) == 1 && key[0] == name
}

func lineStart(data []byte, offset int) int {
	return bytes.LastIndexByte(data[:offset], '\n') + 1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
