// Package battery extracts the device battery voltage from uplinks and
// estimates its discharge rate.
package battery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sajari/regression"

	"github.com/roman-kulish/lora-locator/internal/chart"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// Voltage axis limits of the battery charts.
const (
	MinVoltage = 3.25
	MaxVoltage = 4.1
)

// ErrNotEnoughData is returned when a trend cannot be fitted.
var ErrNotEnoughData = errors.New("not enough battery readings")

// Point is one battery reading.
type Point struct {
	Seconds float64
	Voltage float64
}

// Series returns the battery readings of uplinks, timed in seconds since the
// first uplink, which need not carry a reading itself. Uplinks must be
// ordered oldest first.
func Series(uplinks []ttn.Uplink) []Point {
	if len(uplinks) == 0 {
		return nil
	}
	begin := uplinks[0].ReceivedAt

	var points []Point
	for _, u := range uplinks {
		r, ok := ttn.ReadingOf(u.Payload)
		if !ok || r.Battery == nil {
			continue
		}
		points = append(points, Point{
			Seconds: u.ReceivedAt.Sub(begin).Seconds(),
			Voltage: *r.Battery,
		})
	}
	return points
}

// Trend is a straight line fitted through battery readings.
type Trend struct {
	// Rate is the voltage change in volts per hour, negative while discharging.
	Rate float64

	// Initial is the fitted voltage at second zero.
	Initial float64

	R2 float64
}

// Remaining estimates how long until the fitted voltage drops to cutoff. It
// returns false when the battery is not discharging.
func (t Trend) Remaining(cutoff float64) (time.Duration, bool) {
	if t.Rate >= 0 {
		return 0, false
	}
	hours := (cutoff - t.Initial) / t.Rate
	if hours < 0 {
		return 0, true
	}
	return time.Duration(hours * float64(time.Hour)), true
}

// Fit fits a linear discharge trend through points.
func Fit(points []Point) (Trend, error) {
	if len(points) < 2 {
		return Trend{}, fmt.Errorf("%w: %d readings", ErrNotEnoughData, len(points))
	}
	distinct := false
	for _, p := range points[1:] {
		if p.Seconds != points[0].Seconds {
			distinct = true
			break
		}
	}
	if !distinct {
		return Trend{}, fmt.Errorf("%w: all readings share one timestamp", ErrNotEnoughData)
	}

	var r regression.Regression
	r.SetObserved("voltage")
	r.SetVar(0, "hours")
	for _, p := range points {
		r.Train(regression.DataPoint(p.Voltage, []float64{p.Seconds / 3600}))
	}
	if err := r.Run(); err != nil {
		return Trend{}, fmt.Errorf("fitting trend: %w", err)
	}

	return Trend{
		Initial: r.Coeff(0),
		Rate:    r.Coeff(1),
		R2:      r.R2,
	}, nil
}

// Monitor polls the latest uplink of src every interval, count times, and
// collects the battery readings. Readings are timed by the poll index, so a
// missing reading leaves a gap. It stops early when ctx is cancelled and
// returns what was collected so far.
func Monitor(ctx context.Context, src source.Source, interval time.Duration, count int, logger *slog.Logger) ([]Point, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var points []Point
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return points, ctx.Err()
			case <-ticker.C:
			}
		}

		uplinks, err := src.Latest(ctx, 1)
		if err != nil {
			if errors.Is(err, source.ErrExhausted) {
				return points, nil
			}
			logger.Warn("Failed to read latest uplink", slog.Any("error", err))
			continue
		}
		if len(uplinks) == 0 {
			continue
		}

		r, ok := ttn.ReadingOf(uplinks[len(uplinks)-1].Payload)
		if !ok || r.Battery == nil {
			logger.Debug("Latest uplink has no battery reading")
			continue
		}

		p := Point{Seconds: float64(i) * interval.Seconds(), Voltage: *r.Battery}
		logger.Info("Battery reading", slog.Float64("seconds", p.Seconds), slog.Float64("voltage", p.Voltage))
		points = append(points, p)
	}
	return points, nil
}

// Chart builds a voltage over time chart with one line per series.
func Chart(names []string, series ...[]Point) chart.Chart {
	minV, maxV := MinVoltage, MaxVoltage
	c := chart.Chart{
		Title:  "Battery level over time",
		XLabel: "Seconds (s)",
		YLabel: "Voltage (V)",
		YMin:   &minV,
		YMax:   &maxV,
	}

	for i, points := range series {
		s := chart.Series{X: make([]float64, len(points)), Y: make([]float64, len(points))}
		if i < len(names) {
			s.Name = names[i]
		}
		for j, p := range points {
			s.X[j], s.Y[j] = p.Seconds, p.Voltage
		}
		c.Series = append(c.Series, s)
	}
	return c
}
