package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// gridLines is the number of grid intervals aimed for across the plot.
const gridLines = 8

// niceStep rounds raw up to 1, 2 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 || math.IsInf(raw, 0) || math.IsNaN(raw) {
		return 1
	}
	exp := math.Floor(math.Log10(raw))
	base := math.Pow(10, exp)
	switch f := raw / base; {
	case f <= 1:
		return base
	case f <= 2:
		return 2 * base
	case f <= 5:
		return 5 * base
	default:
		return 10 * base
	}
}

// maxTicks bounds the tick count per axis.
const maxTicks = 4 * gridLines

// ticks returns the multiples of step within [lo, hi], at most maxTicks+1 of
// them. It returns nil when step is too small to move lo.
func ticks(lo, hi, step float64) []float64 {
	if step <= 0 || lo+step == lo {
		return nil
	}
	first := math.Ceil(lo / step)
	n := math.Floor(hi/step+1e-9) - first
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return nil
	}
	n = math.Min(n, maxTicks)
	out := make([]float64, 0, int(n)+1)
	for i := 0; i <= int(n); i++ {
		out = append(out, (first+float64(i))*step)
	}
	return out
}

func formatTick(v float64) string {
	if math.Abs(v) < 1e-9 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func (r *Renderer) drawGrid(canvas *image.NRGBA, face font.Face, vp viewport) {
	plot := vp.bounds()
	step := niceStep(vp.span / gridLines)
	labelColor := r.frame
	scale := float64(vp.plot) / vp.span

	for _, x := range ticks(vp.minX, vp.minX+vp.span, step) {
		px := vp.left + int(math.Round((x-vp.minX)*scale))
		fillRect(canvas, image.Rect(px, plot.Min.Y, px+1, plot.Max.Y), r.grid)
		label := formatTick(x)
		w := font.MeasureString(face, label).Round()
		drawText(canvas, face, px-w/2, plot.Max.Y+face.Metrics().Height.Round()+4, label, labelColor)
	}
	for _, y := range ticks(vp.minY, vp.minY+vp.span, step) {
		py := vp.top + int(math.Round((vp.minY+vp.span-y)*scale))
		fillRect(canvas, image.Rect(plot.Min.X, py, plot.Max.X, py+1), r.grid)
		label := formatTick(y)
		w := font.MeasureString(face, label).Round()
		drawText(canvas, face, plot.Min.X-w-6, py+face.Metrics().Ascent.Round()/2, label, labelColor)
	}

	// frame
	fillRect(canvas, image.Rect(plot.Min.X, plot.Min.Y, plot.Max.X, plot.Min.Y+1), r.frame)
	fillRect(canvas, image.Rect(plot.Min.X, plot.Max.Y-1, plot.Max.X, plot.Max.Y), r.frame)
	fillRect(canvas, image.Rect(plot.Min.X, plot.Min.Y, plot.Min.X+1, plot.Max.Y), r.frame)
	fillRect(canvas, image.Rect(plot.Max.X-1, plot.Min.Y, plot.Max.X, plot.Max.Y), r.frame)
}

func (r *Renderer) drawLegend(canvas *image.NRGBA, face font.Face, vp viewport) {
	const (
		deviceLabel = "Security device"
		wiringLabel = "Wiring"
	)
	lineH := face.Metrics().Height.Round() + 8
	textW := max(font.MeasureString(face, deviceLabel).Round(), font.MeasureString(face, wiringLabel).Round())
	swatch := 28
	pad := 10

	plot := vp.bounds()
	box := image.Rect(0, 0, pad*3+swatch+textW, pad*2+lineH*2).
		Add(image.Pt(plot.Max.X-pad*3-swatch-textW-12, plot.Min.Y+12))
	fillRect(canvas, box, white)
	fillRect(canvas, image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+1), r.frame)
	fillRect(canvas, image.Rect(box.Min.X, box.Max.Y-1, box.Max.X, box.Max.Y), r.frame)
	fillRect(canvas, image.Rect(box.Min.X, box.Min.Y, box.Min.X+1, box.Max.Y), r.frame)
	fillRect(canvas, image.Rect(box.Max.X-1, box.Min.Y, box.Max.X, box.Max.Y), r.frame)

	// the rasterizer covers only the legend box; its origin is box.Min
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	cy := float32(pad + lineH/2)
	fillCircle(z, float32(pad+swatch/2), cy, 6)
	z.Draw(canvas, box, image.NewUniform(r.device), image.Point{})

	z.Reset(box.Dx(), box.Dy())
	wy := cy + float32(lineH)
	strokeSegment(z, float32(pad), wy, float32(pad+swatch), wy, 2)
	z.Draw(canvas, box, image.NewUniform(r.wiring), image.Point{})

	textX := box.Min.X + pad*2 + swatch
	baseline := face.Metrics().Ascent.Round() / 2
	drawText(canvas, face, textX, box.Min.Y+int(cy)+baseline, deviceLabel, black)
	drawText(canvas, face, textX, box.Min.Y+int(wy)+baseline, wiringLabel, black)
}

func (r *Renderer) drawTitle(canvas *image.NRGBA, face font.Face) {
	w := font.MeasureString(face, r.opts.Title).Round()
	x := (r.opts.Size - w) / 2
	y := r.opts.Size / 24
	drawText(canvas, face, x, y, r.opts.Title, black)
}

func fillRect(dst draw.Image, rect image.Rectangle, c color.Color) {
	draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

func fixedPoint(x, y int) fixed.Point26_6 {
	return fixed.P(x, y)
}
