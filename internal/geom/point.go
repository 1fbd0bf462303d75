// Package geom normalizes native point representations into Point3.
//
// Drawing readers hand out coordinates in several shapes: vector types with
// named accessors, vertex types that convert themselves to an array, and
// plain numeric sequences. ToPoint3 is the only place that knows about these
// shapes; everything downstream works with Point3.
package geom

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// Point3 is a normalized (x, y, z) triple. It serializes as [x, y, z].
type Point3 struct {
	X, Y, Z float64
}

// Vector is any native point representation accepted by ToPoint3.
type Vector any

// Arrayer is a representation that converts itself to a numeric array.
type Arrayer interface {
	Array() []float64
}

// Accessor is a representation exposing named coordinate accessors.
type Accessor interface {
	X() float64
	Y() float64
	Z() float64
}

// MarshalJSON encodes the point as a three-element array.
func (p Point3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

// UnmarshalJSON accepts a two- or three-element array.
func (p *Point3) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	pt, err := fromSlice(vals)
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

// Finite reports whether all coordinates are finite numbers.
func (p Point3) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// ToPoint3 converts a native vector. It tries, in order: Point3 itself, the
// array conversion, the named accessors, then numeric sequences ([]float64,
// []float32, []int, fixed arrays, iter.Seq[float64]). Two-element inputs get
// z = 0. Anything else, or any non-finite coordinate, fails with
// common.ErrGeometry; no default point is ever substituted.
func ToPoint3(v Vector) (Point3, error) {
	p, err := toPoint3(v)
	if err != nil {
		return Point3{}, err
	}
	if !p.Finite() {
		return Point3{}, geometryError(fmt.Sprintf("non-finite coordinate (%g, %g, %g)", p.X, p.Y, p.Z))
	}
	return p, nil
}

func toPoint3(v Vector) (Point3, error) {
	switch t := v.(type) {
	case nil:
		return Point3{}, geometryError("nil vector")
	case Point3:
		return t, nil
	case *Point3:
		if t == nil {
			return Point3{}, geometryError("nil vector")
		}
		return *t, nil
	case Arrayer:
		return fromSlice(t.Array())
	case Accessor:
		return Point3{X: t.X(), Y: t.Y(), Z: t.Z()}, nil
	case []float64:
		return fromSlice(t)
	case [3]float64:
		return Point3{X: t[0], Y: t[1], Z: t[2]}, nil
	case [2]float64:
		return Point3{X: t[0], Y: t[1]}, nil
	case []float32:
		vals := make([]float64, len(t))
		for i, f := range t {
			vals[i] = float64(f)
		}
		return fromSlice(vals)
	case []int:
		vals := make([]float64, len(t))
		for i, n := range t {
			vals[i] = float64(n)
		}
		return fromSlice(vals)
	case iter.Seq[float64]:
		return fromSeq(t)
	case func(func(float64) bool):
		return fromSeq(t)
	default:
		return Point3{}, geometryError(fmt.Sprintf("unsupported point representation %T", v))
	}
}

// ToPoints converts a list of native vectors, failing on the first bad one.
func ToPoints(vs []Vector) ([]Point3, error) {
	out := make([]Point3, 0, len(vs))
	for i, v := range vs {
		p, err := ToPoint3(v)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func fromSeq(seq iter.Seq[float64]) (Point3, error) {
	var vals []float64
	for f := range seq {
		vals = append(vals, f)
		if len(vals) == 3 {
			break
		}
	}
	return fromSlice(vals)
}

// fromSlice takes the first three values; trailing values (widths, bulge)
// are ignored.
func fromSlice(vals []float64) (Point3, error) {
	switch {
	case len(vals) < 2:
		return Point3{}, geometryError(fmt.Sprintf("need at least 2 coordinates, got %d", len(vals)))
	case len(vals) == 2:
		return Point3{X: vals[0], Y: vals[1]}, nil
	default:
		return Point3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
	}
}

func geometryError(msg string) error {
	return common.NewAppError("GEOMETRY_ERROR", msg, common.ErrGeometry)
}
