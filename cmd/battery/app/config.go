package app

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/roman-kulish/lora-locator/internal/config"
)

const (
	defaultInterval = 10 * time.Second
	defaultCount    = 90
)

type Config struct {
	*config.Config

	TimeMap    string
	OutputFile string
	Monitor    bool
	Interval   time.Duration
	Count      int
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&c.TimeMap, "timemap", "", "Path to a begin,end,name CSV file, prompts interactively when empty")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output chart")
	flag.BoolVar(&c.Monitor, "monitor", false, "Sample the latest uplink of the live source instead of recorded ranges")
	flag.DurationVar(&c.Interval, "interval", defaultInterval, "Sampling interval of -monitor")
	flag.IntVar(&c.Count, "count", defaultCount, "Number of samples taken by -monitor")
	flag.Parse()

	var err error
	if configPath == "" {
		err = errors.New("no configuration file provided")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Monitor && c.Interval <= 0 {
		err = errors.New("interval must be positive")
	} else if c.Monitor && c.Count <= 0 {
		err = errors.New("count must be positive")
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
