package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/roman-kulish/lora-locator/internal/benchmark"
	"github.com/roman-kulish/lora-locator/internal/config"
)

type Config struct {
	*config.Config

	TimeMap         string
	OutputFile      string
	Runs            int
	Buckets         int
	Seed            *uint64
	SkipCalibration bool
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	var configPath string
	var seed uint64
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&c.TimeMap, "timemap", "", "Path to a begin,end,place CSV file, prompts interactively when empty")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the accuracy chart, no chart when empty")
	flag.IntVar(&c.Runs, "runs", benchmark.DefaultRuns, "Number of benchmark runs")
	flag.IntVar(&c.Buckets, "buckets", benchmark.DefaultBuckets, "Number of test observations per place and run")
	flag.Uint64Var(&seed, "seed", 0, "Random seed, for repeatable test sets")
	flag.BoolVar(&c.SkipCalibration, "skip-calibration", false, "Skip the sentinel sweep")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			c.Seed = &seed
		}
	})

	var err error
	if configPath == "" {
		err = errors.New("no configuration file provided")
	} else if c.Runs <= 0 {
		err = errors.New("runs must be positive")
	} else if c.Buckets <= 0 {
		err = errors.New("buckets must be positive")
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
