package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"github.com/paulmach/orb"

	"github.com/roman-kulish/lora-locator/internal/benchmark"
	"github.com/roman-kulish/lora-locator/internal/chart"
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/timemap"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func Run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	m, err := cfg.Fingerprints.Map()
	if err != nil {
		return fmt.Errorf("failed to load fingerprints: %w", err)
	}

	places, err := timemap.Load(cfg.TimeMap, os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to read places: %w", err)
	}

	uplinks, err := source.LoadRecorded(ctx, cfg.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to load uplinks: %w", err)
	}

	recorded, err := createPlaces(places, uplinks, logger)
	if err != nil {
		return err
	}
	if len(recorded) == 0 {
		return errors.New("no uplinks were received at any place")
	}

	b, err := createBenchmark(cfg, m, logger)
	if err != nil {
		return err
	}

	if !cfg.SkipCalibration {
		best, sentinels, err := b.BestSentinel(recorded, cfg.Calibration)
		if err != nil {
			return fmt.Errorf("failed to calibrate sentinel: %w", err)
		}
		logger.Info("Best sentinel",
			slog.Float64("mean", best),
			slog.Any("runs", sentinels),
			slog.Float64("configured", cfg.Fingerprints.Sentinel))
	}

	runs, err := b.Runs(recorded)
	if err != nil {
		return fmt.Errorf("failed to run benchmark: %w", err)
	}

	overall, floor, zone, meanError := benchmark.Mean(runs)
	attrs := []any{
		slog.Int("runs", len(runs)),
		slog.String("accuracy", percent(overall)),
		slog.String("floor", percent(floor)),
		slog.String("zone", percent(zone)),
	}
	if !math.IsNaN(meanError) {
		attrs = append(attrs, slog.String("meanError", fmt.Sprintf("%0.1fm", meanError)))
	}
	logger.Info("Benchmark finished", attrs...)

	if cfg.OutputFile == "" {
		return nil
	}
	if err = chart.WritePNG(cfg.OutputFile, benchmark.Chart(runs)); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	logger.Info("Chart written", slog.String("path", cfg.OutputFile))
	return nil
}

func createBenchmark(cfg *Config, m *fingerprint.Map, logger *slog.Logger) (*benchmark.Benchmark, error) {
	coords, err := cfg.LabelCoordinates()
	if err != nil {
		return nil, fmt.Errorf("failed to load coordinates: %w", err)
	}
	points := make(map[fingerprint.Label]orb.Point, len(coords))
	for label, c := range coords {
		points[label] = c.Point()
	}

	options := []func(b *benchmark.Benchmark){
		benchmark.WithLogger(logger),
		benchmark.WithCoordinates(points),
	}
	if cfg.Seed != nil {
		options = append(options, benchmark.WithRand(rand.New(rand.NewPCG(*cfg.Seed, *cfg.Seed))))
	}
	if cfg.Locator.IgnoreUnknownGateways {
		options = append(options, benchmark.WithIgnoreUnknownGateways())
	}

	return benchmark.New(m, cfg.Fingerprints.Params(), cfg.Runs, cfg.Buckets, options...), nil
}

func createPlaces(places []timemap.Place, uplinks []ttn.Uplink, logger *slog.Logger) ([]benchmark.Place, error) {
	var out []benchmark.Place
	for _, rec := range timemap.Split(places, uplinks) {
		label, err := rec.Place.Label()
		if err != nil {
			return nil, fmt.Errorf("place '%s': %w", rec.Place.Name, err)
		}
		if len(rec.Uplinks) == 0 {
			logger.Warn("No uplinks received at place", slog.String("place", rec.Place.String()))
			continue
		}
		out = append(out, benchmark.Place{Label: label, Uplinks: rec.Uplinks})
	}
	return out, nil
}

func percent(v float64) string {
	return fmt.Sprintf("%0.2f%%", v*100)
}
