package extract

import (
	"encoding/json"

	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

// Metadata describes the drawing as a whole. TotalEntities is the modelspace
// count before the scan cap; the lists in Result only cover ScannedEntities.
type Metadata struct {
	Layers          []string `json:"layers"`
	Units           int      `json:"units"`
	TotalEntities   int      `json:"total_entities"`
	ScannedEntities int      `json:"scanned_entities"`
	SkippedEntities int      `json:"skipped_entities"`
}

// Truncated reports whether the scan cap cut the entity list short.
func (m Metadata) Truncated() bool {
	return m.ScannedEntities < m.TotalEntities
}

// DeviceType is the type reported for every security device.
const DeviceType = "block_reference"

// SecurityDevice is a block reference or attribute definition whose name
// matched a security keyword. Type is always DeviceType; EntityType keeps the
// DXF entity type (INSERT or ATTDEF).
type SecurityDevice struct {
	Type       string            `json:"type"`
	EntityType string            `json:"entity_type"`
	Name       string            `json:"name"`
	Layer      string            `json:"layer"`
	Position   geom.Point3       `json:"position"`
	Rotation   float64           `json:"rotation"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// TextAnnotation is a TEXT or MTEXT entity whose content matched.
type TextAnnotation struct {
	Type     string       `json:"type"`
	Text     string       `json:"text"`
	Layer    string       `json:"layer"`
	Position *geom.Point3 `json:"position"`
}

// WiringSegment is either labeled (Text set, from a cable annotation) or
// geometric (Type and Points set, from a LINE or polyline).
type WiringSegment struct {
	Type     string
	Text     string
	Position *geom.Point3
	Points   []geom.Point3
	Layer    string
}

// IsLabeled reports whether the segment came from an annotation.
func (w WiringSegment) IsLabeled() bool {
	return w.Type == ""
}

type labeledWire struct {
	Text     string       `json:"text"`
	Position *geom.Point3 `json:"position"`
	Layer    string       `json:"layer"`
}

type geometricWire struct {
	Type   string        `json:"type"`
	Points []geom.Point3 `json:"points"`
	Layer  string        `json:"layer"`
}

// MarshalJSON writes only the keys of the segment's variant.
func (w WiringSegment) MarshalJSON() ([]byte, error) {
	if w.IsLabeled() {
		return json.Marshal(labeledWire{Text: w.Text, Position: w.Position, Layer: w.Layer})
	}
	pts := w.Points
	if pts == nil {
		pts = []geom.Point3{}
	}
	return json.Marshal(geometricWire{Type: w.Type, Points: pts, Layer: w.Layer})
}

// UnmarshalJSON reads either variant.
func (w *WiringSegment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string        `json:"type"`
		Text     string        `json:"text"`
		Position *geom.Point3  `json:"position"`
		Points   []geom.Point3 `json:"points"`
		Layer    string        `json:"layer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = WiringSegment(raw)
	return nil
}

// Result is the structured output of one extraction pass.
type Result struct {
	Metadata        Metadata         `json:"metadata"`
	SecurityDevices []SecurityDevice `json:"security_devices"`
	TextAnnotations []TextAnnotation `json:"text_annotations"`
	Wiring          []WiringSegment  `json:"wiring"`
}

func newResult(meta Metadata) *Result {
	if meta.Layers == nil {
		meta.Layers = []string{}
	}
	return &Result{
		Metadata:        meta,
		SecurityDevices: []SecurityDevice{},
		TextAnnotations: []TextAnnotation{},
		Wiring:          []WiringSegment{},
	}
}
