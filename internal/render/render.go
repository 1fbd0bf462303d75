package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/vector"

	"github.com/ironsheep/cad-analyzer-mcp/internal/extract"
	"github.com/ironsheep/cad-analyzer-mcp/internal/geom"
)

// Options controls the preview image.
type Options struct {
	Size        int    // canvas edge in pixels; the image is always square
	FontPath    string // TTF/OTF used for labels; empty means the built-in bitmap face
	FontSize    float64
	DeviceColor string // hex, e.g. "#d62728"
	WiringColor string
	Title       string
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Size:        1800,
		FontSize:    18,
		DeviceColor: "#d62728",
		WiringColor: "#1f77b4",
		Title:       "Security Device Layout",
	}
}

const minSize = 200

var (
	white = colorful.Color{R: 1, G: 1, B: 1}
	black = colorful.Color{}
)

// Renderer draws extraction results. It is safe for concurrent use: each
// Render call builds its own canvas and font face.
type Renderer struct {
	opts   Options
	font   *opentype.Font
	device colorful.Color
	wiring colorful.Color
	grid   colorful.Color
	frame  colorful.Color
}

// New validates opts and loads the label font, if any.
func New(opts Options) (*Renderer, error) {
	def := DefaultOptions()
	if opts.Size == 0 {
		opts.Size = def.Size
	}
	if opts.Size < minSize {
		return nil, fmt.Errorf("render size %d is below the minimum of %d", opts.Size, minSize)
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	if opts.DeviceColor == "" {
		opts.DeviceColor = def.DeviceColor
	}
	if opts.WiringColor == "" {
		opts.WiringColor = def.WiringColor
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}

	device, err := colorful.Hex(opts.DeviceColor)
	if err != nil {
		return nil, fmt.Errorf("device color %q: %w", opts.DeviceColor, err)
	}
	wiring, err := colorful.Hex(opts.WiringColor)
	if err != nil {
		return nil, fmt.Errorf("wiring color %q: %w", opts.WiringColor, err)
	}

	r := &Renderer{
		opts:   opts,
		device: device,
		wiring: wiring,
		grid:   black.BlendLab(white, 0.88).Clamped(),
		frame:  black.BlendLab(white, 0.45).Clamped(),
	}

	if opts.FontPath != "" {
		data, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %s: %w", opts.FontPath, err)
		}
		r.font = f
	}
	return r, nil
}

func (r *Renderer) newFace() (font.Face, error) {
	if r.font == nil {
		return basicfont.Face7x13, nil
	}
	return opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    r.opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Render draws devices as labeled markers and wiring as polylines and
// returns PNG bytes. Devices with non-finite positions and wiring with
// fewer than two usable points are left out.
func (r *Renderer) Render(res *extract.Result) ([]byte, error) {
	face, err := r.newFace()
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	devices, wires := drawable(res)
	size := r.opts.Size
	vp := newViewport(size, devices, wires)

	canvas := imaging.New(size, size, white)

	r.drawGrid(canvas, face, vp)

	z := vector.NewRasterizer(size, size)
	lineWidth := float32(math.Max(1.5, float64(size)/900))
	for _, w := range wires {
		for i := 1; i < len(w); i++ {
			x0, y0 := vp.project(w[i-1])
			x1, y1 := vp.project(w[i])
			strokeSegment(z, x0, y0, x1, y1, lineWidth)
		}
	}
	z.Draw(canvas, canvas.Bounds(), image.NewUniform(r.wiring), image.Point{})

	z.Reset(size, size)
	radius := float32(math.Max(4, float64(size)/200))
	for _, d := range devices {
		x, y := vp.project(d.Position)
		fillCircle(z, x, y, radius)
	}
	z.Draw(canvas, canvas.Bounds(), image.NewUniform(r.device), image.Point{})

	labelColor := r.device.BlendLab(black, 0.45).Clamped()
	for _, d := range devices {
		x, y := vp.project(d.Position)
		drawText(canvas, face, int(x+radius)+2, int(y-radius)-2, d.Name, labelColor)
	}

	r.drawLegend(canvas, face, vp)
	r.drawTitle(canvas, face)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// drawable filters out devices and segments that cannot be plotted.
func drawable(res *extract.Result) ([]extract.SecurityDevice, [][]geom.Point3) {
	if res == nil {
		return nil, nil
	}
	var devices []extract.SecurityDevice
	for _, d := range res.SecurityDevices {
		if d.Position.Finite() {
			devices = append(devices, d)
		}
	}
	var wires [][]geom.Point3
	for _, w := range res.Wiring {
		if w.IsLabeled() || len(w.Points) < 2 {
			continue
		}
		ok := true
		for _, p := range w.Points {
			if !p.Finite() {
				ok = false
				break
			}
		}
		if ok {
			wires = append(wires, w.Points)
		}
	}
	return devices, wires
}

// viewport maps drawing coordinates onto a square plot area with equal
// scale on both axes. Y grows upward in the drawing and downward in pixels.
type viewport struct {
	minX, minY float64
	span       float64
	left, top  int
	plot       int
}

func newViewport(size int, devices []extract.SecurityDevice, wires [][]geom.Point3) viewport {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	add := func(p geom.Point3) {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	for _, d := range devices {
		add(d.Position)
	}
	for _, w := range wires {
		for _, p := range w {
			add(p)
		}
	}
	if math.IsInf(minX, 1) {
		minX, minY, maxX, maxY = 0, 0, 1, 1
	}

	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	span *= 1.1
	cx, cy := (minX+maxX)/2, (minY+maxY)/2

	margin := size / 12
	return viewport{
		minX: cx - span/2,
		minY: cy - span/2,
		span: span,
		left: margin,
		top:  margin,
		plot: size - 2*margin,
	}
}

func (v viewport) project(p geom.Point3) (float32, float32) {
	scale := float64(v.plot) / v.span
	x := float64(v.left) + (p.X-v.minX)*scale
	y := float64(v.top) + (v.minY+v.span-p.Y)*scale
	return float32(x), float32(y)
}

func (v viewport) bounds() image.Rectangle {
	return image.Rect(v.left, v.top, v.left+v.plot, v.top+v.plot)
}

// strokeSegment adds a w-wide quad around the segment. Every quad has the
// same winding so overlaps do not cancel.
func strokeSegment(z *vector.Rasterizer, x0, y0, x1, y1, w float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*w/2, dx/l*w/2
	z.MoveTo(x0+nx, y0+ny)
	z.LineTo(x1+nx, y1+ny)
	z.LineTo(x1-nx, y1-ny)
	z.LineTo(x0-nx, y0-ny)
	z.ClosePath()
}

func fillCircle(z *vector.Rasterizer, cx, cy, radius float32) {
	const steps = 24
	z.MoveTo(cx+radius, cy)
	for i := 1; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		z.LineTo(cx+radius*float32(math.Cos(a)), cy+radius*float32(math.Sin(a)))
	}
	z.ClosePath()
}

func drawText(dst draw.Image, face font.Face, x, y int, s string, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixedPoint(x, y),
	}
	d.DrawString(s)
}
