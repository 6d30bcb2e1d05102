package chart

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span   float64
		pixels int
		want   float64
	}{
		{100, 1200, 10},
		{3600, 1200, 500},
		{1.5, 600, 0.5},
		{7, 120, 10},
	}
	for _, tt := range tests {
		if got := niceStep(tt.span, tt.pixels); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("niceStep(%v, %d): expected %v, got %v", tt.span, tt.pixels, tt.want, got)
		}
	}
}

func TestFormatTick(t *testing.T) {
	tests := []struct {
		v, step float64
		want    string
	}{
		{10, 5, "10"},
		{0.30000000000000004, 0.1, "0.3"},
		{-3.25, 0.05, "-3.25"},
	}
	for _, tt := range tests {
		if got := formatTick(tt.v, tt.step); got != tt.want {
			t.Errorf("formatTick(%v, %v): expected %s, got %s", tt.v, tt.step, tt.want, got)
		}
	}
}

func TestRender(t *testing.T) {
	c := Chart{
		Title:  "Battery",
		XLabel: "hours",
		YLabel: "V",
		Width:  640,
		Height: 320,
		Series: []Series{
			{Name: "voltage", X: []float64{0, 1, 2, 3}, Y: []float64{4.1, 4.0, 3.95, math.NaN()}},
		},
	}

	img, err := c.Render()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 320 {
		t.Errorf("Expected 640x320, got %v", img.Bounds())
	}

	// the first point sits on the left edge of the plot area
	b, err := c.bounds()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	plot := image.Rect(defaultLeftBorder, defaultTopBorder, 640-defaultRightBorder, 320-defaultBottomBorder)
	x, y := toPixel(plot, b, 0, 4.1)
	r, g, bl, _ := img.At(int(x), int(y)).RGBA()
	if r == 0xffff && g == 0xffff && bl == 0xffff {
		t.Errorf("Expected a line pixel at (%v, %v)", x, y)
	}

	var buf bytes.Buffer
	if err = Encode(&buf, img); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err = png.Decode(&buf); err != nil {
		t.Errorf("Expected a valid PNG, got %v", err)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := (Chart{}).Render(); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}

	c := Chart{Series: []Series{{X: []float64{1, 2}, Y: []float64{1}}}}
	if _, err := c.Render(); err == nil {
		t.Errorf("Expected an error for mismatched series")
	}

	c = Chart{Width: 50, Height: 50, Series: []Series{{X: []float64{1}, Y: []float64{1}}}}
	if _, err := c.Render(); err == nil {
		t.Errorf("Expected an error for a too small chart")
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	c := Chart{Series: []Series{{X: []float64{0, 1}, Y: []float64{-80, -80}}}}

	if err := WritePNG(path, c); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("Expected a non-empty file, got %v", err)
	}
}
