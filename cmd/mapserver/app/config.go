package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/roman-kulish/lora-locator/internal/config"
)

type Config struct {
	*config.Config

	// Locate runs the locator in the same process, publishing points
	// without going through HTTP.
	Locate bool
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	var configPath, listen string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&listen, "listen", "", "Override the listen address")
	flag.BoolVar(&c.Locate, "locate", false, "Run the locator in the same process")
	flag.Parse()

	if configPath == "" {
		flag.Usage()
		return nil, errors.New("no configuration file provided")
	}

	base, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
	}
	c.Config = base

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "listen" {
			c.Web.Listen = listen
		}
	})

	if c.Web.Listen == "" {
		flag.Usage()
		return nil, errors.New("listen address is required")
	}
	return c, nil
}
