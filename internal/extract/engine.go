package extract

import (
	"iter"

	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/classify"
	"github.com/ironsheep/cad-analyzer-mcp/internal/dxf"
	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

// Engine runs the single-pass classification over a drawing's entities.
// An Engine holds no per-pass state and is safe for concurrent use.
type Engine struct {
	classifier *classify.Classifier
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-entity warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine. A nil classifier means classify.Default().
func NewEngine(classifier *classify.Classifier, opts ...Option) *Engine {
	if classifier == nil {
		classifier = classify.Default()
	}
	e := &Engine{classifier: classifier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractDocument scans at most maxEntities modelspace entities of doc.
func (e *Engine) ExtractDocument(doc *dxf.Document, maxEntities int) *Result {
	meta := Metadata{
		Layers:        append([]string(nil), doc.Layers...),
		Units:         doc.Units,
		TotalEntities: doc.TotalEntities(),
	}
	return e.Extract(doc.Entities(maxEntities), meta)
}

// Extract folds entities into a Result in one forward pass. meta supplies
// layers, units and the untruncated total; the scanned and skipped counts
// are filled in here. Records that fail to decode or normalize are skipped
// with a warning.
func (e *Engine) Extract(entities iter.Seq2[dxf.Entity, error], meta Metadata) *Result {
	meta.ScannedEntities = 0
	meta.SkippedEntities = 0
	r := newResult(meta)

	for ent, err := range entities {
		r.Metadata.ScannedEntities++
		if err != nil {
			e.skip(r, err)
			continue
		}
		if err := e.visit(r, ent); err != nil {
			e.skip(r, err, zap.Int("index", ent.Base().Index), zap.String("type", ent.Base().Type))
		}
	}
	return r
}

func (e *Engine) skip(r *Result, err error, fields ...zap.Field) {
	r.Metadata.SkippedEntities++
	e.logger.Warn("skipping entity", append(fields, zap.Error(err))...)
}

func (e *Engine) visit(r *Result, ent dxf.Entity) error {
	switch ent := ent.(type) {
	case dxf.BlockReference:
		attrs := map[string]string(nil)
		if len(ent.Attributes) > 0 {
			attrs = make(map[string]string, len(ent.Attributes))
			for _, a := range ent.Attributes {
				attrs[a.Tag] = a.Value
			}
		}
		return e.device(r, ent.Header, ent.Name, ent.Insert, ent.Rotation, attrs)
	case dxf.AttributeDefinition:
		return e.device(r, ent.Header, ent.Tag, ent.Insert, ent.Rotation, nil)
	case dxf.Text:
		return e.annotation(r, ent.Header, firstNonEmpty(ent.Plain(), ent.Value), ent.Insert)
	case dxf.MText:
		return e.annotation(r, ent.Header, firstNonEmpty(ent.Plain(), ent.Raw), ent.Insert)
	case dxf.Line:
		return e.geometry(r, ent.Header, []geom.Vector{ent.Start, ent.End})
	case dxf.Polyline:
		return e.geometry(r, ent.Header, ent.Vertices)
	case dxf.Other:
	}
	return nil
}

func (e *Engine) device(r *Result, h dxf.Header, name string, insert dxf.Vec3, rotation float64, attrs map[string]string) error {
	if name == "" || !e.classifier.IsSecurityRelated(name) {
		return nil
	}
	pos, err := geom.ToPoint3(insert)
	if err != nil {
		return err
	}
	r.SecurityDevices = append(r.SecurityDevices, SecurityDevice{
		Type:       DeviceType,
		EntityType: h.Type,
		Name:       name,
		Layer:      h.Layer,
		Position:   pos,
		Rotation:   rotation,
		Attributes: attrs,
	})
	return nil
}

func (e *Engine) annotation(r *Result, h dxf.Header, text string, insert *dxf.Vec3) error {
	if text == "" || !e.classifier.IsSecurityRelated(text) {
		return nil
	}
	var pos *geom.Point3
	if insert != nil {
		p, err := geom.ToPoint3(*insert)
		if err != nil {
			return err
		}
		pos = &p
	}
	r.TextAnnotations = append(r.TextAnnotations, TextAnnotation{
		Type:     h.Type,
		Text:     text,
		Layer:    h.Layer,
		Position: pos,
	})
	if e.classifier.IsWiringLabel(text) {
		r.Wiring = append(r.Wiring, WiringSegment{Text: text, Position: pos, Layer: h.Layer})
	}
	return nil
}

func (e *Engine) geometry(r *Result, h dxf.Header, vertices []geom.Vector) error {
	pts, err := geom.ToPoints(vertices)
	if err != nil {
		return err
	}
	r.Wiring = append(r.Wiring, WiringSegment{Type: h.Type, Points: pts, Layer: h.Layer})
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
