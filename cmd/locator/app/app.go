package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/lora-locator/internal/locator"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/telemetry"
	"github.com/roman-kulish/lora-locator/internal/web"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	src, closeSource, err := source.New(ctx, config.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	defer func() {
		err = errors.Join(err, closeSource())
	}()

	publisher, err := web.NewClient(config.Locator.MapServerURL, &http.Client{Timeout: config.TTN.Timeout.Std()})
	if err != nil {
		return fmt.Errorf("failed to create map server client: %w", err)
	}

	registry := prometheus.NewRegistry()
	loc, err := locator.FromConfig(src, publisher, config.Config,
		locator.WithLogger(logger),
		locator.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}

	logger.Info("Starting locator",
		slog.String("source", string(config.Locator.Source)),
		slog.Int("messages", config.Locator.Messages),
		slog.Duration("interval", config.Locator.PollInterval.Std()),
		slog.String("mapServer", config.Locator.MapServerURL))

	if config.Locator.MetricsListen == "" {
		return loc.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := telemetry.NewServer(config.Locator.MetricsListen, registry,
		telemetry.WithRuntimeMetrics(),
		telemetry.WithLogger(logger))

	var wg sync.WaitGroup
	var metricsErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		metricsErr = metrics.Run(ctx)
	}()

	runErr := loc.Run(ctx)
	cancel()
	wg.Wait()

	return errors.Join(runErr, metricsErr)
}
