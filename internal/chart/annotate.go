package chart

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	fontSize       = 10.0
	tickMarkLength = 5
	pixelsPerLabel = 120.0
	legendSwatch   = 14
)

var gridColor = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	plot     image.Rectangle
	bounds   bounds
}

func newAnnotator(plot image.Rectangle, b bounds) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		plot:    plot,
		bounds:  b,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, c *Chart) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *Chart) error
	}{
		{"drawing X scale", a.drawXScale},
		{"drawing Y scale", a.drawYScale},
		{"drawing frame", a.drawFrame},
		{"drawing title", a.drawTitle},
		{"drawing legend", a.drawLegend},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, c); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawString(s string, x, y int) error {
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawXScale(img *image.RGBA, c *Chart) error {
	b := a.bounds
	step := niceStep(b.xMax-b.xMin, a.plot.Dx())
	textY := a.plot.Max.Y + tickMarkLength + a.fontHeight()

	for v := math.Ceil(b.xMin/step) * step; v <= b.xMax; v += step {
		x, _ := toPixel(a.plot, b, v, b.yMin)
		px := int(x)

		for y := a.plot.Min.Y; y < a.plot.Max.Y; y++ {
			img.Set(px, y, gridColor)
		}
		for y := a.plot.Max.Y; y < a.plot.Max.Y+tickMarkLength; y++ {
			img.Set(px, y, color.Black)
		}

		label := formatTick(v, step)
		width := font.MeasureString(a.fontFace, label).Round()
		if err := a.drawString(label, px-width/2, textY); err != nil {
			return fmt.Errorf("drawing label: %w", err)
		}
	}

	if c.XLabel != "" {
		width := font.MeasureString(a.fontFace, c.XLabel).Round()
		x := a.plot.Min.X + (a.plot.Dx()-width)/2
		if err := a.drawString(c.XLabel, x, textY+a.fontHeight()+4); err != nil {
			return fmt.Errorf("drawing axis label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawYScale(img *image.RGBA, c *Chart) error {
	b := a.bounds
	step := niceStep(b.yMax-b.yMin, a.plot.Dy())
	metrics := a.fontFace.Metrics()

	for v := math.Ceil(b.yMin/step) * step; v <= b.yMax; v += step {
		_, y := toPixel(a.plot, b, b.xMin, v)
		py := int(y)

		for x := a.plot.Min.X; x < a.plot.Max.X; x++ {
			img.Set(x, py, gridColor)
		}
		for x := a.plot.Min.X - tickMarkLength; x < a.plot.Min.X; x++ {
			img.Set(x, py, color.Black)
		}

		label := formatTick(v, step)
		width := font.MeasureString(a.fontFace, label).Round()
		textY := py + (metrics.Ascent.Round()-metrics.Descent.Round())/2
		if err := a.drawString(label, a.plot.Min.X-tickMarkLength-3-width, textY); err != nil {
			return fmt.Errorf("drawing label: %w", err)
		}
	}

	if c.YLabel != "" {
		if err := a.drawString(c.YLabel, 3, a.plot.Min.Y-6); err != nil {
			return fmt.Errorf("drawing axis label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawFrame(img *image.RGBA, _ *Chart) error {
	p := a.plot
	for x := p.Min.X; x <= p.Max.X; x++ {
		img.Set(x, p.Min.Y, color.Black)
		img.Set(x, p.Max.Y, color.Black)
	}
	for y := p.Min.Y; y <= p.Max.Y; y++ {
		img.Set(p.Min.X, y, color.Black)
		img.Set(p.Max.X, y, color.Black)
	}
	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, c *Chart) error {
	if c.Title == "" {
		return nil
	}
	width := font.MeasureString(a.fontFace, c.Title).Round()
	x := (img.Bounds().Dx() - width) / 2
	return a.drawString(c.Title, x, a.fontHeight()+4)
}

// drawLegend lists named series in the top right corner of the plot.
func (a *annotator) drawLegend(img *image.RGBA, c *Chart) error {
	lineHeight := a.fontHeight() + 4
	y := a.plot.Min.Y + 8

	for i, s := range c.Series {
		if s.Name == "" {
			continue
		}
		col := s.Color
		if col == nil {
			col = Palette[i%len(Palette)]
		}

		width := font.MeasureString(a.fontFace, s.Name).Round()
		x := a.plot.Max.X - width - legendSwatch - 14
		for dy := 0; dy < legendSwatch/2; dy++ {
			for dx := 0; dx < legendSwatch; dx++ {
				img.Set(x+dx, y+legendSwatch/4+dy, col)
			}
		}
		if err := a.drawString(s.Name, x+legendSwatch+4, y+a.fontFace.Metrics().Ascent.Round()); err != nil {
			return err
		}
		y += lineHeight
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, c *Chart) error {
	var points int
	for _, s := range c.Series {
		points += len(s.X)
	}

	info := fmt.Sprintf("%s points", humanize.Comma(int64(points)))
	if c.Info != "" {
		info = c.Info + "; " + info
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 4
	return a.drawString(info, a.plot.Min.X, textY)
}

// niceStep picks a 1, 2 or 5 times power of ten tick step that puts about
// one label per pixelsPerLabel pixels.
func niceStep(span float64, pixels int) float64 {
	desiredSteps := math.Max(float64(pixels)/pixelsPerLabel, 1)
	target := span / desiredSteps

	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

func formatTick(v, step float64) string {
	// snap values like 0.30000000000000004
	v = math.Round(v/step) * step

	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
	}
	return humanize.FtoaWithDigits(v, decimals)
}
