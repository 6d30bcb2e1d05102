package benchmark

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/lora-locator/internal/chart"
)

// Chart plots the accuracy, zone accuracy and floor accuracy of every run
// in percent.
func Chart(runs []Run) chart.Chart {
	minY, maxY := 50.0, 100.0
	c := chart.Chart{
		Title:  "Benchmark accuracy over multiple runs",
		XLabel: "Benchmark run",
		YLabel: "Accuracy (%)",
		YMin:   &minY,
		YMax:   &maxY,
	}

	names := []string{"Benchmark accuracy", "Zone accuracy", "Floor accuracy"}
	values := make([][]float64, len(names))
	x := make([]float64, len(runs))
	for i, r := range runs {
		x[i] = float64(i)
		values[0] = append(values[0], 100*r.Accuracy.Overall())
		values[1] = append(values[1], 100*r.Accuracy.Zone())
		values[2] = append(values[2], 100*r.Accuracy.Floor())
	}
	for i, name := range names {
		c.Series = append(c.Series, chart.Series{Name: name, X: x, Y: values[i]})
	}

	overall, _, _, meanError := Mean(runs)
	c.Info = fmt.Sprintf("%d runs, mean accuracy %s%%", len(runs), humanize.FtoaWithDigits(100*overall, 1))
	if !math.IsNaN(meanError) {
		c.Info += fmt.Sprintf(", mean error %s m", humanize.FtoaWithDigits(meanError, 1))
	}
	return c
}
