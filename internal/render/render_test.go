package render

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/ironsheep/cad-analyzer-mcp/internal/extract"
	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

func sampleResult() *extract.Result {
	return &extract.Result{
		SecurityDevices: []extract.SecurityDevice{
			{Type: extract.DeviceType, EntityType: "INSERT", Name: "CAM-01", Layer: "SEC", Position: geom.Point3{X: 0, Y: 0}},
		},
		Wiring: []extract.WiringSegment{
			{Type: "LINE", Layer: "WIRING", Points: []geom.Point3{{X: -10, Y: 0}, {X: 10, Y: 0}}},
			{Text: "RVVP 4x0.5", Layer: "SEC"},
		},
	}
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

func rgb8(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestRender_Dimensions(t *testing.T) {
	r, err := New(Options{Size: 400})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	data, err := r.Render(sampleResult())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	img := decodePNG(t, data)
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 400 {
		t.Errorf("dimensions: got %dx%d, want 400x400", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestRender_MarkersAndWiring(t *testing.T) {
	res := sampleResult()
	r, err := New(Options{Size: 400})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data, err := r.Render(res)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img := decodePNG(t, data)

	devices, wires := drawable(res)
	vp := newViewport(400, devices, wires)

	// device marker centre is the device colour
	x, y := vp.project(res.SecurityDevices[0].Position)
	cr, cg, cb := rgb8(img, int(x), int(y))
	if cr < 150 || cg > 100 || cb > 100 {
		t.Errorf("marker at (%d,%d): got (%d,%d,%d), want reddish", int(x), int(y), cr, cg, cb)
	}

	// a point on the wire away from the marker and off the grid
	x, y = vp.project(geom.Point3{X: 2.5, Y: 0})
	wr, _, wb := rgb8(img, int(x), int(y))
	if int(wb) < int(wr)+50 {
		t.Errorf("wire at (%d,%d): got r=%d b=%d, want bluish", int(x), int(y), wr, wb)
	}

	// far corner of the plot stays background
	br, bg, bb := rgb8(img, vp.left+3, vp.top+vp.plot-3)
	if br < 200 || bg < 200 || bb < 200 {
		t.Errorf("background: got (%d,%d,%d), want near white", br, bg, bb)
	}
}

func TestRender_EmptyAndNil(t *testing.T) {
	r, err := New(Options{Size: 300})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for name, res := range map[string]*extract.Result{
		"empty": {},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			data, err := r.Render(res)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			decodePNG(t, data)
		})
	}
}

func TestRender_SkipsUnplottableData(t *testing.T) {
	res := &extract.Result{
		SecurityDevices: []extract.SecurityDevice{
			{Name: "bad", Position: geom.Point3{X: math.NaN()}},
			{Name: "ok", Position: geom.Point3{X: 5, Y: 5}},
		},
		Wiring: []extract.WiringSegment{
			{Type: "LINE", Points: []geom.Point3{{X: 1, Y: 1}}},
			{Type: "LWPOLYLINE", Points: []geom.Point3{{X: 0, Y: 0}, {X: math.Inf(1), Y: 0}}},
			{Type: "LWPOLYLINE", Points: nil},
		},
	}

	devices, wires := drawable(res)
	if len(devices) != 1 || devices[0].Name != "ok" {
		t.Errorf("devices: got %+v, want only \"ok\"", devices)
	}
	if len(wires) != 0 {
		t.Errorf("wires: got %d, want 0", len(wires))
	}

	r, err := New(Options{Size: 300})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := r.Render(res); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}

func TestViewport_SquareAspect(t *testing.T) {
	wires := [][]geom.Point3{{{X: 0, Y: 0}, {X: 100, Y: 10}}}
	vp := newViewport(600, nil, wires)

	x0, y0 := vp.project(geom.Point3{X: 0, Y: 0})
	x1, y1 := vp.project(geom.Point3{X: 10, Y: 10})
	dx, dy := x1-x0, y0-y1
	if math.Abs(float64(dx-dy)) > 0.01 {
		t.Errorf("unequal scale: dx=%f dy=%f", dx, dy)
	}
	if dy <= 0 {
		t.Errorf("y axis not flipped: dy=%f", dy)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"too small", Options{Size: 50}},
		{"bad device colour", Options{DeviceColor: "red"}},
		{"bad wiring colour", Options{WiringColor: "#12"}},
		{"missing font", Options{FontPath: "/nonexistent/font.ttf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{2.75, 5},
		{0.13, 0.2},
		{1, 1},
		{7, 10},
		{1500, 2000},
		{0, 1},
	}
	for _, tt := range tests {
		if got := niceStep(tt.raw); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("niceStep(%v): got %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestTicks(t *testing.T) {
	got := ticks(-11, 11, 5)
	want := []float64{-10, -5, 0, 5, 10}
	if len(got) != len(want) {
		t.Fatalf("ticks: got %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("tick %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTicks_Bounded(t *testing.T) {
	// step below the float spacing at lo
	if got := ticks(1e17, 1e17+1.1, 0.2); got != nil {
		t.Errorf("ticks at 1e17: got %d ticks, want none", len(got))
	}
	if got := ticks(0, 1e6, 1); len(got) != maxTicks+1 {
		t.Errorf("ticks over a wide range: got %d, want %d", len(got), maxTicks+1)
	}
	if got := ticks(5, 1, 1); got != nil {
		t.Errorf("ticks on an empty range: got %v, want none", got)
	}
}

func TestRender_FarOffCoordinates(t *testing.T) {
	r, err := New(Options{Size: 400})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res := &extract.Result{
		SecurityDevices: []extract.SecurityDevice{
			{Name: "CAM-FAR", Layer: "SEC", Position: geom.Point3{X: 1e17, Y: 1e17}},
		},
		Wiring: []extract.WiringSegment{
			{Type: "LINE", Layer: "WIRING", Points: []geom.Point3{{X: 1e17, Y: 1e17}, {X: 1e17 + 64, Y: 1e17}}},
		},
	}

	data, err := r.Render(res)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if img := decodePNG(t, data); img.Bounds().Dx() != 400 {
		t.Errorf("width: got %d, want 400", img.Bounds().Dx())
	}
}
