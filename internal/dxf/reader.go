package dxf

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// DefaultMaxEntities is the scan cap used when callers pass a non-positive cap.
const DefaultMaxEntities = 3000

// Document is a parsed drawing. Entity records are decoded lazily by
// Entities; only the group lists are held in memory.
type Document struct {
	Version  string // $ACADVER, e.g. "AC1027"
	CodePage string // $DWGCODEPAGE
	Units    int    // $INSUNITS, 0 when absent
	Layers   []string

	raw    []rawEntity
	decode func(string) string
}

// rawEntity is an entity's group list plus attached sub-entities
// (ATTRIB for INSERT, VERTEX for POLYLINE).
type rawEntity struct {
	typ      string
	groups   []Group
	children []rawEntity
}

// EntityError reports an entity that could not be decoded. The scan can
// continue past it.
type EntityError struct {
	Index int
	Type  string
	Err   error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// Open reads and parses the DXF file at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewAppError("PARSE_ERROR", "open "+path, errors.Join(common.ErrParse, err))
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse reads an ASCII DXF stream. Structural problems (bad group codes,
// truncated sections, no sections at all) fail with common.ErrParse.
func Parse(r io.Reader) (*Document, error) {
	lx, err := NewLexer(r)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	sections := 0

	for {
		g, err := lx.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError(lx, err)
		}
		if g.Code != 0 {
			continue
		}
		if g.Value == "EOF" {
			break
		}
		if g.Value != "SECTION" {
			continue
		}

		name, err := lx.Next()
		if err != nil {
			return nil, wrapReadError(lx, err)
		}
		if name.Code != 2 {
			return nil, parseError(lx.Line(), "SECTION without a name")
		}
		sections++

		switch strings.TrimSpace(name.Value) {
		case "HEADER":
			err = doc.readHeader(lx)
		case "TABLES":
			err = doc.readTables(lx)
		case "ENTITIES":
			err = doc.readEntities(lx)
		default:
			err = skipSection(lx)
		}
		if err != nil {
			return nil, err
		}
	}

	if sections == 0 {
		return nil, parseError(lx.Line(), "no sections found; not a DXF file")
	}

	doc.decode = newStringDecoder(doc.Version, doc.CodePage)
	for i, name := range doc.Layers {
		doc.Layers[i] = doc.decode(name)
	}
	if !contains(doc.Layers, "0") {
		// layer "0" always exists even when the table omits it
		doc.Layers = append([]string{"0"}, doc.Layers...)
	}
	return doc, nil
}

// TotalEntities is the modelspace entity count before any cap.
func (d *Document) TotalEntities() int {
	return len(d.raw)
}

// Entities yields at most max modelspace entities in file order; a
// non-positive max means DefaultMaxEntities. Entities that fail to decode
// are yielded as (nil, *EntityError).
func (d *Document) Entities(max int) iter.Seq2[Entity, error] {
	if max <= 0 {
		max = DefaultMaxEntities
	}
	n := min(max, len(d.raw))
	return func(yield func(Entity, error) bool) {
		for i := 0; i < n; i++ {
			e, err := d.decodeEntity(i, d.raw[i])
			if err != nil {
				if !yield(nil, &EntityError{Index: i, Type: d.raw[i].typ, Err: err}) {
					return
				}
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (d *Document) readHeader(lx *Lexer) error {
	variable := ""
	for {
		g, err := lx.Next()
		if err != nil {
			return truncated(lx, err, "HEADER")
		}
		switch {
		case g.Code == 0 && g.Value == "ENDSEC":
			return nil
		case g.Code == 9:
			variable = strings.TrimSpace(g.Value)
		case variable == "$ACADVER" && g.Code == 1:
			d.Version = strings.TrimSpace(g.Value)
		case variable == "$DWGCODEPAGE" && g.Code == 3:
			d.CodePage = strings.TrimSpace(g.Value)
		case variable == "$INSUNITS" && g.Code == 70:
			if n, err := strconv.Atoi(strings.TrimSpace(g.Value)); err == nil {
				d.Units = n
			}
		}
	}
}

func (d *Document) readTables(lx *Lexer) error {
	table := ""
	inEntry := false
	for {
		g, err := lx.Next()
		if err != nil {
			return truncated(lx, err, "TABLES")
		}
		if g.Code == 0 {
			switch g.Value {
			case "ENDSEC":
				return nil
			case "TABLE":
				name, err := lx.Next()
				if err != nil {
					return truncated(lx, err, "TABLES")
				}
				table = strings.TrimSpace(name.Value)
				inEntry = false
			case "ENDTAB":
				table = ""
				inEntry = false
			default:
				inEntry = table == "LAYER" && g.Value == "LAYER"
			}
			continue
		}
		if inEntry && g.Code == 2 {
			if !contains(d.Layers, g.Value) {
				d.Layers = append(d.Layers, g.Value)
			}
			inEntry = false
		}
	}
}

func (d *Document) readEntities(lx *Lexer) error {
	var all []rawEntity
	for {
		g, err := lx.Next()
		if err != nil {
			return truncated(lx, err, "ENTITIES")
		}
		if g.Code == 0 {
			if g.Value == "ENDSEC" {
				break
			}
			all = append(all, rawEntity{typ: strings.TrimSpace(g.Value)})
			continue
		}
		if len(all) == 0 {
			return parseError(lx.Line(), "group before first entity in ENTITIES")
		}
		cur := &all[len(all)-1]
		cur.groups = append(cur.groups, g)
	}
	d.raw = append(d.raw, attachAndFilter(all)...)
	return nil
}

// attachAndFilter folds ATTRIB/VERTEX/SEQEND into the preceding INSERT or
// POLYLINE and drops paperspace entities (group 67 = 1).
func attachAndFilter(all []rawEntity) []rawEntity {
	out := make([]rawEntity, 0, len(all))
	parent := -1
	for _, e := range all {
		switch e.typ {
		case "ATTRIB", "VERTEX", "SEQEND":
			if parent >= 0 {
				if e.typ != "SEQEND" {
					out[parent].children = append(out[parent].children, e)
				} else {
					parent = -1
				}
				continue
			}
			if e.typ == "SEQEND" {
				continue
			}
		}
		parent = -1
		if isPaperSpace(e) {
			continue
		}
		out = append(out, e)
		if e.typ == "INSERT" || e.typ == "POLYLINE" {
			parent = len(out) - 1
		}
	}
	return out
}

func isPaperSpace(e rawEntity) bool {
	for _, g := range e.groups {
		if g.Code == 67 {
			return strings.TrimSpace(g.Value) == "1"
		}
	}
	return false
}

func skipSection(lx *Lexer) error {
	for {
		g, err := lx.Next()
		if err != nil {
			return truncated(lx, err, "section")
		}
		if g.Code == 0 && g.Value == "ENDSEC" {
			return nil
		}
	}
}

func truncated(lx *Lexer, err error, section string) error {
	if err == io.EOF {
		return parseError(lx.Line(), "unexpected end of file in "+section)
	}
	return wrapReadError(lx, err)
}

func wrapReadError(lx *Lexer, err error) error {
	if errors.Is(err, common.ErrParse) {
		return err
	}
	return common.NewAppError("PARSE_ERROR", fmt.Sprintf("read error near line %d", lx.Line()), errors.Join(common.ErrParse, err))
}

func parseError(line int, msg string) error {
	if line > 0 {
		msg = fmt.Sprintf("line %d: %s", line, msg)
	}
	return common.NewAppError("PARSE_ERROR", msg, common.ErrParse)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
