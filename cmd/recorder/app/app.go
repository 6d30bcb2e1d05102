package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/storage"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

const sourceName = "ttn-storage"

func Run(ctx context.Context, cfg *Config, logger *slog.Logger) (err error) {
	if cfg.List {
		return listSessions(ctx, cfg.DBPath, logger)
	}

	dbPath, err := storagePath(cfg)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	client, err := source.NewStorageClient(cfg.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create ttn client: %w", err)
	}

	query := createQuery(cfg)
	logger.Info("Fetching stored uplinks", slog.Any("query", query))

	uplinks, err := client.Fetch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to fetch uplinks: %w", err)
	}
	if len(uplinks) == 0 {
		return errors.New("ttn storage returned no uplinks")
	}

	store := storage.NewSqliteStore(dbPath)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	sessionID, err := store.CreateSession(ctx, sourceName, cfg.Description, query)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	stored, err := store.StoreUplinks(ctx, sessionID, uplinks)
	if err != nil {
		return fmt.Errorf("failed to store uplinks: %w", err)
	}

	logger.Info("Session recorded",
		slog.String("path", dbPath),
		slog.Int64("session", sessionID),
		slog.String("fetched", humanize.Comma(int64(len(uplinks)))),
		slog.String("stored", humanize.Comma(int64(stored))),
		slog.String("from", humanize.Time(uplinks[0].ReceivedAt)),
		slog.String("to", humanize.Time(uplinks[len(uplinks)-1].ReceivedAt)))

	return logGatewayStats(ctx, store, sessionID, logger)
}

func createQuery(cfg *Config) ttn.Query {
	q := ttn.Query{Last: cfg.Last, Order: ttn.OrderOldestFirst}
	if cfg.After != nil {
		q.After = *cfg.After
	}
	if cfg.Before != nil {
		q.Before = *cfg.Before
	}
	return q
}

func logGatewayStats(ctx context.Context, store storage.Store, sessionID int64, logger *slog.Logger) error {
	stats, err := store.GatewayStats(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read gateway stats: %w", err)
	}
	for _, s := range stats {
		logger.Info("Gateway",
			slog.String("id", s.GatewayID),
			slog.String("receptions", humanize.Comma(s.Receptions)),
			slog.String("meanRSSI", fmt.Sprintf("%0.2fdBm", s.MeanRSSI)),
			slog.String("minRSSI", fmt.Sprintf("%0.2fdBm", s.MinRSSI)),
			slog.String("maxRSSI", fmt.Sprintf("%0.2fdBm", s.MaxRSSI)))
	}
	return nil
}

func listSessions(ctx context.Context, dbPath string, logger *slog.Logger) (err error) {
	if _, err = os.Stat(dbPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", dbPath, err)
	}

	store := storage.NewSqliteStore(dbPath)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, s := range sessions {
		logger.Info("Session",
			slog.Int64("id", s.ID),
			slog.String("started", s.StartTime.UTC().Format(time.DateTime)),
			slog.String("source", s.Source),
			slog.String("description", s.Description))
	}
	return nil
}

func storagePath(cfg *Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := cfg.Storage.DataDirectory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return "", err
	}
	if !stat.IsDir() {
		return "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return filepath.Join(dir, fmt.Sprintf("lora_session_%s.sqlite", time.Now().UTC().Format("20060102_150405"))), nil
}
