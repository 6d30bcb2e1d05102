// Package chart renders simple line charts as PNG images.
package chart

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/vector"
)

const (
	defaultWidth  = 1200
	defaultHeight = 600

	// Default border sizes in pixels
	defaultTopBorder    = 50
	defaultLeftBorder   = 80
	defaultBottomBorder = 70
	defaultRightBorder  = 40

	lineWidth  = 2.0
	markerSize = 3.0
)

// ErrNoData is returned when a chart has no plottable point.
var ErrNoData = errors.New("chart has no data")

// Palette is used for series without an explicit color.
var Palette = []color.RGBA{
	{R: 0x1f, G: 0x4e, B: 0xd8, A: 0xff}, // blue
	{R: 0x16, G: 0x9c, B: 0x3c, A: 0xff}, // green
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}, // red
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}, // orange
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}, // purple
}

// Series is one line of the chart. X and Y must have the same length.
type Series struct {
	Name  string
	X     []float64
	Y     []float64
	Color color.Color
}

// Chart describes what to draw. Nil axis limits are derived from the data.
type Chart struct {
	Title  string
	XLabel string
	YLabel string
	Info   string

	XMin, XMax *float64
	YMin, YMax *float64

	Width  int
	Height int

	Series []Series
}

type bounds struct {
	xMin, xMax, yMin, yMax float64
}

func (c *Chart) bounds() (bounds, error) {
	b := bounds{xMin: math.Inf(1), xMax: math.Inf(-1), yMin: math.Inf(1), yMax: math.Inf(-1)}
	for _, s := range c.Series {
		if len(s.X) != len(s.Y) {
			return b, fmt.Errorf("series '%s': %d x values, %d y values", s.Name, len(s.X), len(s.Y))
		}
		for i := range s.X {
			if math.IsNaN(s.X[i]) || math.IsNaN(s.Y[i]) {
				continue
			}
			b.xMin, b.xMax = math.Min(b.xMin, s.X[i]), math.Max(b.xMax, s.X[i])
			b.yMin, b.yMax = math.Min(b.yMin, s.Y[i]), math.Max(b.yMax, s.Y[i])
		}
	}
	if math.IsInf(b.xMin, 1) {
		return b, ErrNoData
	}

	if c.XMin != nil {
		b.xMin = *c.XMin
	}
	if c.XMax != nil {
		b.xMax = *c.XMax
	}
	if c.YMin != nil {
		b.yMin = *c.YMin
	}
	if c.YMax != nil {
		b.yMax = *c.YMax
	}

	// flat ranges still need a visible span
	if b.xMax <= b.xMin {
		b.xMin, b.xMax = b.xMin-0.5, b.xMin+0.5
	}
	if b.yMax <= b.yMin {
		b.yMin, b.yMax = b.yMin-0.5, b.yMin+0.5
	}
	return b, nil
}

// Render draws the chart.
func (c Chart) Render() (*image.RGBA, error) {
	if c.Width == 0 {
		c.Width = defaultWidth
	}
	if c.Height == 0 {
		c.Height = defaultHeight
	}

	b, err := c.bounds()
	if err != nil {
		return nil, err
	}

	w := c.Width - defaultLeftBorder - defaultRightBorder
	h := c.Height - defaultTopBorder - defaultBottomBorder
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("chart size %dx%d is too small", c.Width, c.Height)
	}
	plot := image.Rect(defaultLeftBorder, defaultTopBorder, defaultLeftBorder+w, defaultTopBorder+h)

	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ann, err := newAnnotator(plot, b)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, &c); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	for i, s := range c.Series {
		col := s.Color
		if col == nil {
			col = Palette[i%len(Palette)]
		}
		drawSeries(img, plot, b, s, col)
	}

	return img, nil
}

// toPixel maps a data point into the plot area.
func toPixel(plot image.Rectangle, b bounds, x, y float64) (float32, float32) {
	px := float64(plot.Min.X) + (x-b.xMin)/(b.xMax-b.xMin)*float64(plot.Dx())
	py := float64(plot.Max.Y) - (y-b.yMin)/(b.yMax-b.yMin)*float64(plot.Dy())
	return float32(px), float32(py)
}

func drawSeries(img *image.RGBA, plot image.Rectangle, b bounds, s Series, col color.Color) {
	// the rasterizer covers the plot area only, which clips lines that leave
	// fixed axis limits
	r := vector.NewRasterizer(plot.Dx(), plot.Dy())
	ox, oy := float32(plot.Min.X), float32(plot.Min.Y)

	var prevX, prevY float32
	havePrev := false
	for i := range s.X {
		if math.IsNaN(s.X[i]) || math.IsNaN(s.Y[i]) {
			havePrev = false
			continue
		}
		x, y := toPixel(plot, b, s.X[i], s.Y[i])
		x, y = x-ox, y-oy
		if havePrev {
			segment(r, prevX, prevY, x, y, lineWidth)
		}
		square(r, x, y, markerSize)
		prevX, prevY, havePrev = x, y, true
	}

	r.Draw(img, plot, image.NewUniform(col), image.Point{})
}

// segment adds a line of width w from (x0, y0) to (x1, y1) as a quad.
func segment(r *vector.Rasterizer, x0, y0, x1, y1, w float32) {
	dx, dy := x1-x0, y1-y0
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}
	nx, ny := -dy/l*w/2, dx/l*w/2

	r.MoveTo(x0+nx, y0+ny)
	r.LineTo(x1+nx, y1+ny)
	r.LineTo(x1-nx, y1-ny)
	r.LineTo(x0-nx, y0-ny)
	r.ClosePath()
}

func square(r *vector.Rasterizer, x, y, half float32) {
	r.MoveTo(x-half, y-half)
	r.LineTo(x+half, y-half)
	r.LineTo(x+half, y+half)
	r.LineTo(x-half, y+half)
	r.ClosePath()
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// WritePNG renders c into a PNG file at path.
func WritePNG(path string, c Chart) (err error) {
	img, err := c.Render()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", cErr)
		}
	}()

	if err = Encode(f, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
