package dxf

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

// fields is a decoded view over one entity's groups.
type fields struct {
	groups []Group
	decode func(string) string
}

func (f fields) str(code int) (string, bool) {
	for _, g := range f.groups {
		if g.Code == code {
			return f.decode(g.Value), true
		}
	}
	return "", false
}

func (f fields) float(code int) (float64, bool, error) {
	for _, g := range f.groups {
		if g.Code == code {
			v, err := parseNumber(g)
			return v, true, err
		}
	}
	return 0, false, nil
}

// parseNumber parses a real-valued group. NaN and infinities are rejected.
func parseNumber(g Group) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(g.Value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("group %d: invalid number %q", g.Code, truncate(g.Value, 32))
	}
	return v, nil
}

func (f fields) floatOr(code int, def float64) (float64, error) {
	v, ok, err := f.float(code)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (f fields) integer(code int) int {
	for _, g := range f.groups {
		if g.Code == code {
			n, _ := strconv.Atoi(strings.TrimSpace(g.Value))
			return n
		}
	}
	return 0
}

// point reads the coordinate triple at base, base+10, base+20. X and Y are
// required; Z defaults to 0.
func (f fields) point(base int) (Vec3, bool, error) {
	x, okX, err := f.float(base)
	if err != nil {
		return Vec3{}, false, err
	}
	y, okY, err := f.float(base + 10)
	if err != nil {
		return Vec3{}, false, err
	}
	if !okX && !okY {
		return Vec3{}, false, nil
	}
	if !okX || !okY {
		return Vec3{}, false, fmt.Errorf("group %d: incomplete coordinate", base)
	}
	z, err := f.floatOr(base+20, 0)
	if err != nil {
		return Vec3{}, false, err
	}
	return NewVec3(x, y, z), true, nil
}

func (f fields) requirePoint(base int) (Vec3, error) {
	p, ok, err := f.point(base)
	if err != nil {
		return Vec3{}, err
	}
	if !ok {
		return Vec3{}, fmt.Errorf("group %d: missing coordinate", base)
	}
	return p, nil
}

func (d *Document) decodeEntity(index int, raw rawEntity) (Entity, error) {
	f := fields{groups: raw.groups, decode: d.decode}
	h := Header{Index: index, Type: raw.typ}
	h.Handle, _ = f.str(5)
	h.Layer, _ = f.str(8)
	if h.Layer == "" {
		h.Layer = "0"
	}

	var (
		e   Entity
		err error
	)
	switch raw.typ {
	case "INSERT":
		e, err = decodeInsert(h, f, raw.children, d.decode)
	case "ATTDEF":
		e, err = decodeAttDef(h, f)
	case "TEXT":
		e, err = decodeText(h, f)
	case "MTEXT":
		e, err = decodeMText(h, f)
	case "LINE":
		e, err = decodeLine(h, f)
	case "LWPOLYLINE":
		e, err = decodeLWPolyline(h, raw.groups)
	case "POLYLINE":
		e, err = decodePolyline(h, f, raw.children)
	default:
		e = Other{Header: h}
	}
	if err != nil {
		return nil, common.NewAppError("PARSE_ERROR", err.Error(), common.ErrParse)
	}
	return e, nil
}

func decodeInsert(h Header, f fields, children []rawEntity, decode func(string) string) (Entity, error) {
	name, _ := f.str(2)
	insert, err := f.requirePoint(10)
	if err != nil {
		return nil, err
	}
	rotation, err := f.floatOr(50, 0)
	if err != nil {
		return nil, err
	}
	br := BlockReference{Header: h, Name: name, Insert: insert, Rotation: rotation}
	for _, c := range children {
		if c.typ != "ATTRIB" {
			continue
		}
		cf := fields{groups: c.groups, decode: decode}
		tag, _ := cf.str(2)
		value, _ := cf.str(1)
		br.Attributes = append(br.Attributes, Attribute{Tag: tag, Value: value})
	}
	return br, nil
}

func decodeAttDef(h Header, f fields) (Entity, error) {
	insert, err := f.requirePoint(10)
	if err != nil {
		return nil, err
	}
	rotation, err := f.floatOr(50, 0)
	if err != nil {
		return nil, err
	}
	ad := AttributeDefinition{Header: h, Insert: insert, Rotation: rotation}
	ad.Tag, _ = f.str(2)
	ad.Prompt, _ = f.str(3)
	ad.Default, _ = f.str(1)
	return ad, nil
}

func decodeText(h Header, f fields) (Entity, error) {
	t := Text{Header: h}
	t.Value, _ = f.str(1)
	p, ok, err := f.point(10)
	if err != nil {
		return nil, err
	}
	if ok {
		t.Insert = &p
	}
	return t, nil
}

func decodeMText(h Header, f fields) (Entity, error) {
	var b strings.Builder
	for _, g := range f.groups {
		if g.Code == 3 {
			b.WriteString(g.Value)
		}
	}
	if last, ok := f.str(1); ok {
		// code 3 chunks come first, code 1 carries the tail
		m := MText{Header: h, Raw: f.decode(b.String()) + last}
		return withMTextInsert(m, f)
	}
	return withMTextInsert(MText{Header: h, Raw: f.decode(b.String())}, f)
}

func withMTextInsert(m MText, f fields) (Entity, error) {
	p, ok, err := f.point(10)
	if err != nil {
		return nil, err
	}
	if ok {
		m.Insert = &p
	}
	return m, nil
}

func decodeLine(h Header, f fields) (Entity, error) {
	start, err := f.requirePoint(10)
	if err != nil {
		return nil, err
	}
	end, err := f.requirePoint(11)
	if err != nil {
		return nil, err
	}
	return Line{Header: h, Start: start, End: end}, nil
}

// decodeLWPolyline walks the groups in order: each code 10 opens a vertex
// and the following 20/40/41/42 belong to it.
func decodeLWPolyline(h Header, groups []Group) (Entity, error) {
	var (
		verts     []Vertex
		elevation float64
		flags     int
		haveY     []bool
	)
	for _, g := range groups {
		switch g.Code {
		case 38, 10, 20, 40, 41, 42:
		case 70:
			flags, _ = strconv.Atoi(strings.TrimSpace(g.Value))
			continue
		default:
			continue
		}
		v, err := parseNumber(g)
		if err != nil {
			return nil, err
		}
		if g.Code == 38 {
			elevation = v
			continue
		}
		if g.Code == 10 {
			verts = append(verts, Vertex{X: v})
			haveY = append(haveY, false)
			continue
		}
		if len(verts) == 0 {
			return nil, fmt.Errorf("group %d before first vertex", g.Code)
		}
		cur := &verts[len(verts)-1]
		switch g.Code {
		case 20:
			cur.Y = v
			haveY[len(haveY)-1] = true
		case 40:
			cur.StartWidth = v
		case 41:
			cur.EndWidth = v
		case 42:
			cur.Bulge = v
		}
	}

	p := Polyline{Header: h, Closed: flags&1 != 0}
	for i := range verts {
		if !haveY[i] {
			return nil, fmt.Errorf("vertex %d: missing y coordinate", i)
		}
		verts[i].Elevation = elevation
		p.Vertices = append(p.Vertices, verts[i])
	}
	return p, nil
}

// decodePolyline handles the legacy POLYLINE + VERTEX form. Polyface and
// mesh face records carry no position and are skipped.
func decodePolyline(h Header, f fields, children []rawEntity) (Entity, error) {
	p := Polyline{Header: h, Closed: f.integer(70)&1 != 0}
	for i, c := range children {
		if c.typ != "VERTEX" {
			continue
		}
		cf := fields{groups: c.groups, decode: f.decode}
		flags := cf.integer(70)
		if flags&128 != 0 && flags&64 == 0 {
			continue
		}
		pt, err := cf.requirePoint(10)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		p.Vertices = append(p.Vertices, geom.Vector([]float64{pt.X(), pt.Y(), pt.Z()}))
	}
	return p, nil
}
