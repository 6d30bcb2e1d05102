package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/storage"
	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// Decoder returns the uplink decoder configured for the deployment.
func Decoder(cfg *config.Config) ttn.Decoder {
	return ttn.Decoder{UsedChannelField: cfg.TTN.UsedChannelField}
}

func retryConfig(c config.RetryConfig) ttn.RetryConfig {
	return ttn.RetryConfig{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.InitialDelay.Std(),
		MaxDelay:      c.MaxDelay.Std(),
		BackoffFactor: c.BackoffFactor,
	}
}

// NewStorageClient creates a TTN storage integration client from cfg.
func NewStorageClient(cfg *config.Config, logger *slog.Logger) (*ttn.StorageClient, error) {
	if cfg.TTN.StorageURL == "" {
		return nil, errors.New("ttn storage url is not configured")
	}
	if cfg.TTN.APIKey == "" {
		return nil, fmt.Errorf("ttn api key is not configured, set it in the file or with %s", config.APIKeyEnv)
	}

	retry := ttn.DefaultRetryConfig()
	if cfg.TTN.Retry.MaxAttempts > 0 {
		retry = retryConfig(cfg.TTN.Retry)
	}

	return ttn.NewStorageClient(cfg.TTN.StorageURL, cfg.TTN.APIKey,
		ttn.WithHTTPClient(&http.Client{Timeout: cfg.TTN.Timeout.Std()}),
		ttn.WithRetry(retry),
		ttn.WithDecoder(Decoder(cfg)),
		ttn.WithStorageLogger(logger)), nil
}

// NewDownlinker creates the GPS downlink client, or returns nil when no
// device downlink URL is configured.
func NewDownlinker(cfg *config.Config, logger *slog.Logger) *ttn.Downlinker {
	if len(cfg.TTN.DownlinkURLs) == 0 {
		return nil
	}

	retry := ttn.DefaultRetryConfig()
	if cfg.TTN.Retry.MaxAttempts > 0 {
		retry = retryConfig(cfg.TTN.Retry)
	}

	return ttn.NewDownlinker(cfg.TTN.DownlinkURLs, cfg.TTN.APIKey,
		ttn.WithDownlinkHTTPClient(&http.Client{Timeout: cfg.TTN.Timeout.Std()}),
		ttn.WithDownlinkRetry(retry),
		ttn.WithDownlinkLogger(logger))
}

// LoadSession reads every uplink of a recorded session.
func LoadSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (uplinks []ttn.Uplink, err error) {
	rc := cfg.Locator.Replay
	if rc.DBPath == "" {
		return nil, errors.New("replay database path is not configured")
	}

	store := storage.NewSqliteStore(rc.DBPath)
	defer func() {
		if cErr := store.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	uplinks, err = storage.LoadUplinks(ctx, store, rc.SessionID, storage.WithReaderDecoder(Decoder(cfg)))
	if err != nil {
		return nil, fmt.Errorf("loading session %d from '%s': %w", rc.SessionID, rc.DBPath, err)
	}

	logger.Info("Loaded recorded session",
		slog.Int64("session", rc.SessionID),
		slog.String("uplinks", humanize.Comma(int64(len(uplinks)))))
	return uplinks, nil
}

// LoadRecorded returns the full uplink history: the recorded session when
// the source is a replay, otherwise everything kept by the TTN storage
// integration.
func LoadRecorded(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]ttn.Uplink, error) {
	if cfg.Locator.Source == config.SourceReplay {
		return LoadSession(ctx, cfg, logger)
	}

	client, err := NewStorageClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return client.All(ctx)
}

// New creates the live source selected by cfg. The returned close function
// releases the source and is never nil.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Source, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Locator.Source {
	case config.SourceTTN:
		client, err := NewStorageClient(cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		return client, noop, nil

	case config.SourceMQTT:
		mc := cfg.TTN.MQTT
		sub := ttn.NewSubscriber(ttn.MQTTConfig{
			Broker:   mc.Broker,
			ClientID: mc.ClientID,
			Username: mc.Username,
			Password: mc.Password,
			Topic:    mc.Topic,
			Buffer:   mc.Buffer,
		}, ttn.WithSubscriberLogger(logger), ttn.WithSubscriberDecoder(Decoder(cfg)))
		if err := sub.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("connecting to mqtt broker: %w", err)
		}
		return sub, sub.Close, nil

	case config.SourceReplay:
		uplinks, err := LoadSession(ctx, cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		return NewReplay(uplinks), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown source '%s'", cfg.Locator.Source)
	}
}
