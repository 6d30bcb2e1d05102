package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/mapbuilder"
)

const defaultSentinel = -200

type Config struct {
	*config.Config

	TimeMap    string
	OutputFile string
	Method     mapbuilder.Method
	Sentinel   float64
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	var configPath, method string
	var sentinel float64
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&c.TimeMap, "timemap", "", "Path to a begin,end,place CSV file, prompts interactively when empty")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output fingerprints file")
	flag.StringVar(&method, "method", string(mapbuilder.MethodAverage), "Channel estimate. [avg, gauss-mad, gauss-std]")
	flag.Float64Var(&sentinel, "sentinel", defaultSentinel, "Sentinel written to the fingerprints file (format nn.n)")
	flag.Parse()

	var err error
	if configPath == "" {
		err = errors.New("no configuration file provided")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Method, err = mapbuilder.ParseMethod(method); err != nil {
		err = fmt.Errorf("invalid method: %w", err)
	}
	if err != nil {
		flag.Usage()
		return nil, err
	}

	if c.Config, err = config.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load configuration file '%s': %w", configPath, err)
	}

	c.Sentinel = sentinel
	if c.Fingerprints.Sentinel != 0 {
		c.Sentinel = c.Fingerprints.Sentinel
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "sentinel" {
			c.Sentinel = sentinel
		}
	})

	return c, nil
}
