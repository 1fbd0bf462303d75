package dxf

import "github.com/ironsheep/cad-analyzer-mcp/internal/geom"

// Kind is the closed set of entity variants the reader produces.
type Kind string

const (
	KindBlockReference      Kind = "INSERT"
	KindAttributeDefinition Kind = "ATTDEF"
	KindText                Kind = "TEXT"
	KindMText               Kind = "MTEXT"
	KindLine                Kind = "LINE"
	KindPolyline            Kind = "POLYLINE"
	KindOther               Kind = "OTHER"
)

// Entity is one modelspace primitive. The set of implementations is sealed:
// BlockReference, AttributeDefinition, Text, MText, Line, Polyline, Other.
type Entity interface {
	Kind() Kind
	Base() Header
	sealed()
}

// Header carries the fields every entity has.
type Header struct {
	Index  int    // position in modelspace order
	Type   string // DXF type name as written in the file
	Handle string
	Layer  string
}

func (h Header) Base() Header { return h }
func (Header) sealed()        {}

// Vec3 is the reader's native coordinate type.
type Vec3 struct {
	x, y, z float64
}

// NewVec3 builds a Vec3.
func NewVec3(x, y, z float64) Vec3 { return Vec3{x: x, y: y, z: z} }

func (v Vec3) X() float64 { return v.x }
func (v Vec3) Y() float64 { return v.y }
func (v Vec3) Z() float64 { return v.z }

// Vertex is an LWPOLYLINE vertex. Elevation is shared by the whole polyline.
type Vertex struct {
	X, Y       float64
	Elevation  float64
	StartWidth float64
	EndWidth   float64
	Bulge      float64
}

// Array returns (x, y, elevation).
func (v Vertex) Array() []float64 {
	return []float64{v.X, v.Y, v.Elevation}
}

// Attribute is an ATTRIB attached to a block reference.
type Attribute struct {
	Tag   string
	Value string
}

// BlockReference is an INSERT: a placed instance of a named block.
type BlockReference struct {
	Header
	Name       string
	Insert     Vec3
	Rotation   float64
	Attributes []Attribute
}

func (BlockReference) Kind() Kind { return KindBlockReference }

// AttributeDefinition is an ATTDEF. Its Tag is the name used for matching.
type AttributeDefinition struct {
	Header
	Tag      string
	Prompt   string
	Default  string
	Insert   Vec3
	Rotation float64
}

func (AttributeDefinition) Kind() Kind { return KindAttributeDefinition }

// Text is a single-line TEXT entity. Insert is nil when the file omits it.
type Text struct {
	Header
	Value  string
	Insert *Vec3
}

func (Text) Kind() Kind { return KindText }

// Plain returns the value with %% control codes expanded.
func (t Text) Plain() string { return expandControlCodes(t.Value) }

// MText is a multi-line MTEXT entity. Raw is the definition string with
// inline formatting codes.
type MText struct {
	Header
	Raw    string
	Insert *Vec3
}

func (MText) Kind() Kind { return KindMText }

// Plain returns the text with formatting codes removed.
func (m MText) Plain() string { return stripMTextFormatting(m.Raw) }

// Line is a LINE entity.
type Line struct {
	Header
	Start Vec3
	End   Vec3
}

func (Line) Kind() Kind { return KindLine }

// Polyline is an LWPOLYLINE (Vertex values) or a legacy POLYLINE
// ([]float64 per VERTEX). Header.Type tells which.
type Polyline struct {
	Header
	Vertices []geom.Vector
	Closed   bool
}

func (Polyline) Kind() Kind { return KindPolyline }

// Other is any entity type outside the supported set.
type Other struct {
	Header
}

func (Other) Kind() Kind { return KindOther }
