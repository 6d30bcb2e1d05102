package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/mapbuilder"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/timemap"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

func Run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	places, err := timemap.Load(cfg.TimeMap, os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to read places: %w", err)
	}
	if len(places) == 0 {
		return errors.New("no places to build the map from")
	}

	uplinks, err := source.LoadRecorded(ctx, cfg.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to load uplinks: %w", err)
	}

	samples, err := createSamples(places, uplinks, logger)
	if err != nil {
		return err
	}

	fc := mapbuilder.Build(samples, cfg.Sentinel, cfg.Method)
	if len(fc.Entries) == 0 {
		return errors.New("no uplinks were received at any place")
	}
	if err = config.WriteFingerprints(cfg.OutputFile, fc); err != nil {
		return fmt.Errorf("failed to write fingerprints: %w", err)
	}

	logger.Info("Fingerprints written",
		slog.String("path", cfg.OutputFile),
		slog.String("method", cfg.Method.String()),
		slog.Float64("sentinel", fc.Sentinel),
		slog.Int("entries", len(fc.Entries)),
		slog.Any("gateways", fc.Gateways))
	return nil
}

func createSamples(places []timemap.Place, uplinks []ttn.Uplink, logger *slog.Logger) ([]mapbuilder.Sample, error) {
	var samples []mapbuilder.Sample
	for _, rec := range timemap.Split(places, uplinks) {
		label, err := rec.Place.Label()
		if err != nil {
			return nil, fmt.Errorf("place '%s': %w", rec.Place.Name, err)
		}
		if len(rec.Uplinks) == 0 {
			logger.Warn("No uplinks received at place", slog.String("place", rec.Place.String()))
			continue
		}

		averages := mapbuilder.GatewayAverages(rec.Uplinks)
		attrs := make([]any, 0, len(averages))
		for _, gateway := range slices.Sorted(maps.Keys(averages)) {
			attrs = append(attrs, slog.String(gateway, fmt.Sprintf("%0.2fdBm", averages[gateway])))
		}
		logger.Info("Place recorded",
			slog.String("label", label.String()),
			slog.String("uplinks", humanize.Comma(int64(len(rec.Uplinks)))),
			slog.Group("averages", attrs...))

		samples = append(samples, mapbuilder.Sample{Label: label, Uplinks: rec.Uplinks})
	}
	return samples, nil
}
