package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roman-kulish/lora-locator/internal/battery"
	"github.com/roman-kulish/lora-locator/internal/chart"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/timemap"
)

func Run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	var names []string
	var series [][]battery.Point
	var err error
	if cfg.Monitor {
		names, series, err = monitor(ctx, cfg, logger)
	} else {
		names, series, err = recorded(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	for i, points := range series {
		logTrend(names[i], points, logger)
	}

	if err = chart.WritePNG(cfg.OutputFile, battery.Chart(names, series...)); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	logger.Info("Chart written", slog.String("path", cfg.OutputFile))
	return nil
}

func recorded(ctx context.Context, cfg *Config, logger *slog.Logger) ([]string, [][]battery.Point, error) {
	places, err := timemap.Load(cfg.TimeMap, os.Stdin, os.Stdout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read time ranges: %w", err)
	}
	if len(places) == 0 {
		return nil, nil, errors.New("no time ranges given")
	}

	uplinks, err := source.LoadRecorded(ctx, cfg.Config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load uplinks: %w", err)
	}

	var names []string
	var series [][]battery.Point
	for _, rec := range timemap.Split(places, uplinks) {
		points := battery.Series(rec.Uplinks)
		if len(points) == 0 {
			logger.Warn("No battery readings in range", slog.String("range", rec.Place.String()))
			continue
		}
		names = append(names, rec.Place.Name)
		series = append(series, points)
	}
	if len(series) == 0 {
		return nil, nil, errors.New("no battery readings in any range")
	}
	return names, series, nil
}

func monitor(ctx context.Context, cfg *Config, logger *slog.Logger) (names []string, series [][]battery.Point, err error) {
	src, closeSource, err := source.New(ctx, cfg.Config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create source: %w", err)
	}
	defer func() {
		err = errors.Join(err, closeSource())
	}()

	logger.Info("Monitoring battery",
		slog.Duration("interval", cfg.Interval),
		slog.Int("count", cfg.Count))

	points, err := battery.Monitor(ctx, src, cfg.Interval, cfg.Count, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, nil, fmt.Errorf("failed to monitor battery: %w", err)
	}
	if len(points) == 0 {
		return nil, nil, errors.New("no battery readings received")
	}
	return []string{"Battery"}, [][]battery.Point{points}, nil
}

func logTrend(name string, points []battery.Point, logger *slog.Logger) {
	trend, err := battery.Fit(points)
	if err != nil {
		logger.Warn("No discharge trend", slog.String("series", name), slog.Any("error", err))
		return
	}

	attrs := []any{
		slog.String("series", name),
		slog.Int("readings", len(points)),
		slog.String("rate", fmt.Sprintf("%0.4fV/h", trend.Rate)),
		slog.Float64("r2", trend.R2),
	}
	if remaining, ok := trend.Remaining(battery.MinVoltage); ok {
		attrs = append(attrs, slog.Duration("untilEmpty", remaining))
	}
	logger.Info("Discharge trend", attrs...)
}
