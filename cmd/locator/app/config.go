package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/roman-kulish/lora-locator/internal/config"
)

type Config struct {
	*config.Config
}

func NewConfigFromCLI() (*Config, error) {
	var configPath, sourceType, dbPath, mapServerURL string
	var sessionID int64
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&sourceType, "source", "", "Override the uplink source. [ttn, mqtt, replay]")
	flag.StringVar(&dbPath, "db", "", "Path to the recording database, implies -source replay")
	flag.Int64Var(&sessionID, "s", 1, "Recorded session ID to replay")
	flag.StringVar(&mapServerURL, "map-server", "", "Override the map server URL")
	flag.Parse()

	if configPath == "" {
		flag.Usage()
		return nil, errors.New("no configuration file provided")
	}

	base, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
	}
	c := &Config{Config: base}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			c.Locator.Source = config.SourceType(sourceType)
		case "db":
			c.Locator.Source = config.SourceReplay
			c.Locator.Replay.DBPath = dbPath
		case "s":
			c.Locator.Replay.SessionID = sessionID
		case "map-server":
			c.Locator.MapServerURL = mapServerURL
		}
	})

	if err = c.Validate(); err != nil {
		flag.Usage()
		return nil, err
	}
	if c.Locator.MapServerURL == "" {
		flag.Usage()
		return nil, errors.New("map server url is required")
	}
	return c, nil
}
