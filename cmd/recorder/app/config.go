package app

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/timemap"
)

type Config struct {
	*config.Config

	DBPath      string
	Description string
	Last        time.Duration
	After       *time.Time
	Before      *time.Time
	List        bool
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	var configPath, after, before string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file, a new file in the data directory when empty")
	flag.StringVar(&c.Description, "d", "", "Session description")
	flag.DurationVar(&c.Last, "last", 0, "Only record uplinks received within this duration, e.g. 48h")
	flag.StringVar(&after, "after", "", "Only record uplinks received after this time (format "+timemap.Layout+")")
	flag.StringVar(&before, "before", "", "Only record uplinks received before this time (format "+timemap.Layout+")")
	flag.BoolVar(&c.List, "list", false, "List the sessions recorded in -db and exit")
	flag.Parse()

	var err error
	if configPath == "" {
		err = errors.New("no configuration file provided")
	} else if c.List && c.DBPath == "" {
		err = errors.New("db path is required to list sessions")
	} else if c.Last < 0 {
		err = errors.New("last must be positive")
	}
	if err == nil && after != "" {
		c.After, err = parseTime(after)
	}
	if err == nil && before != "" {
		c.Before, err = parseTime(before)
	}
	if err == nil && c.After != nil && c.Before != nil && c.Before.Before(*c.After) {
		err = errors.New("before must not precede after")
	}
	if err != nil {
		flag.Usage()
		return nil, err
	}

	if c.Config, err = config.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
	}
	return c, nil
}

func parseTime(s string) (*time.Time, error) {
	t, err := timemap.ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
