package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/locator"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/web"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	src, closeSource, srcErr := source.New(ctx, config.Config, logger)
	defer func() {
		err = errors.Join(err, closeSource())
	}()
	if srcErr != nil {
		if config.Locate {
			return fmt.Errorf("failed to create source: %w", srcErr)
		}
		logger.Warn("GPS status is disabled", slog.Any("error", srcErr))
	}

	server, err := web.NewServer(config.Web, serverOptions(config, src, registry, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create map server: %w", err)
	}

	if !config.Locate {
		return server.Run(ctx)
	}

	loc, err := locator.FromConfig(src, server, config.Config,
		locator.WithLogger(logger),
		locator.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var locErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		locErr = loc.Run(ctx)
	}()

	serverErr := server.Run(ctx)
	cancel()
	wg.Wait()

	return errors.Join(serverErr, locErr)
}

func serverOptions(cfg *Config, src source.Source, registry *prometheus.Registry, logger *slog.Logger) []func(s *web.Server) {
	options := []func(s *web.Server){
		web.WithLogger(logger),
		web.WithRegistry(registry),
	}

	// a replay cursor must only be advanced by the locator
	if src != nil && !(cfg.Locate && cfg.Locator.Source == config.SourceReplay) {
		options = append(options, web.WithSource(src))
	}

	if gps := source.NewDownlinker(cfg.Config, logger); gps != nil {
		options = append(options, web.WithGPSController(gps))
	} else {
		logger.Warn("GPS downlinks are disabled, no device downlink URL configured")
	}
	return options
}
